// Package store implements the Durable Store: records and settings keyed by identifier,
// persisted in an embedded SQLite engine with a transparent flat key-value fallback.
//
// Every operation is fallback-safe. If the primary engine is unsupported, failed to
// open, or errors on a call, the same call re-runs against the fallback backend, so
// callers never special-case engine health. After a failed call the primary stays
// retired for the lifetime of the Store.
package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/ganhos-keeper/internal/kv"
	"github.com/and161185/ganhos-keeper/internal/model"
)

// SchemaVersion is the goose version the primary engine must reach on Init.
const SchemaVersion = 1

// engine is implemented by the SQLite primary and the key-value fallback.
type engine interface {
	saveRecord(ctx context.Context, r model.Record) error
	allRecords(ctx context.Context) ([]model.Record, error)
	deleteRecord(ctx context.Context, id string) error
	saveSettings(ctx context.Context, s model.Settings) error
	// settings reports ok=false when nothing was ever saved.
	settings(ctx context.Context) (s model.Settings, ok bool, err error)
	clear(ctx context.Context) error
	lastWrite(ctx context.Context) (time.Time, error)
	close() error
}

// Opener opens the primary engine at path.
type Opener func(ctx context.Context, path string) (engine, error)

// Store is the Durable Store. The zero value is not usable; construct with New.
type Store struct {
	path     string
	open     Opener
	fallback *kvEngine
	log      *zap.Logger

	mu          sync.RWMutex
	primary     engine
	initialized bool
}

// Option customizes a Store.
type Option func(*Store)

// WithOpener replaces the primary engine opener (tests simulate engine failures with it).
func WithOpener(o Opener) Option { return func(s *Store) { s.open = o } }

// New constructs a Store over the SQLite file at path with the given fallback bucket.
// An empty path means the primary engine is unsupported. Init must be called before use;
// until then every call goes to the fallback.
func New(path string, fallback kv.Bucket, log *zap.Logger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		path:     path,
		open:     openSQLite,
		fallback: newKVEngine(fallback),
		log:      log.Named("store"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init opens (or creates) the primary engine at SchemaVersion. On any failure the engine
// is marked unavailable for the lifetime of the Store and all calls use the fallback.
// It never fails; the result reports whether the primary engine is active.
func (s *Store) Init(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return s.primary != nil
	}
	s.initialized = true

	if s.path == "" {
		s.log.Warn("primary engine unsupported, using fallback")
		return false
	}
	e, err := s.open(ctx, s.path)
	if err != nil {
		s.log.Error("primary engine unavailable, using fallback", zap.String("path", s.path), zap.Error(err))
		return false
	}
	s.primary = e
	s.log.Info("primary engine ready", zap.String("path", s.path), zap.Int("schema", SchemaVersion))
	return true
}

// Primary reports whether the primary engine is in use.
func (s *Store) Primary() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.primary != nil
}

// primaryCall runs fn on the primary engine and reports whether it succeeded. A failed
// call retires the primary for the rest of the process, so reads and writes never split
// between the two engines.
func (s *Store) primaryCall(ctx context.Context, op string, fn func(engine) error) bool {
	s.mu.RLock()
	p := s.primary
	if p == nil {
		s.mu.RUnlock()
		return false
	}
	err := fn(p)
	s.mu.RUnlock()
	if err == nil {
		return true
	}
	s.degrade(ctx, p, op, err)
	return false
}

// degrade switches to the fallback after p failed. Whatever p can still read is copied
// over first; in-flight primary calls have finished once the write lock is held.
func (s *Store) degrade(ctx context.Context, p engine, op string, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.primary != p {
		return
	}
	s.primary = nil
	log := s.log.With(zap.String("op", op))
	log.Error("primary engine failed, using fallback from now on", zap.Error(cause))

	recs, err := p.allRecords(ctx)
	if err == nil {
		err = s.fallback.replace(recs)
	}
	if err != nil {
		log.Warn("records not carried over to fallback", zap.Error(err))
	}
	if st, ok, err := p.settings(ctx); err == nil && ok {
		if err := s.fallback.saveSettings(ctx, st); err != nil {
			log.Warn("settings not carried over to fallback", zap.Error(err))
		}
	}
	if err := p.close(); err != nil {
		log.Warn("close primary engine", zap.Error(err))
	}
}

// SaveRecord upserts r by id. It returns false only if the fallback write also failed.
func (s *Store) SaveRecord(ctx context.Context, r model.Record) bool {
	if s.primaryCall(ctx, "save", func(p engine) error { return p.saveRecord(ctx, r) }) {
		return true
	}
	if err := s.fallback.saveRecord(ctx, r); err != nil {
		s.log.Error("fallback save failed", zap.String("record_id", r.ID), zap.Error(err))
		return false
	}
	return true
}

// GetAllRecords returns every stored record, unordered. It never fails; an unreadable
// store yields an empty list.
func (s *Store) GetAllRecords(ctx context.Context) []model.Record {
	var out []model.Record
	if s.primaryCall(ctx, "read", func(p engine) (err error) {
		out, err = p.allRecords(ctx)
		return err
	}) {
		return nonNil(out)
	}
	out, err := s.fallback.allRecords(ctx)
	if err != nil {
		s.log.Error("fallback read failed", zap.Error(err))
		return []model.Record{}
	}
	return nonNil(out)
}

// DeleteRecord removes id. Deleting a missing id succeeds.
func (s *Store) DeleteRecord(ctx context.Context, id string) bool {
	if s.primaryCall(ctx, "delete", func(p engine) error { return p.deleteRecord(ctx, id) }) {
		return true
	}
	if err := s.fallback.deleteRecord(ctx, id); err != nil {
		s.log.Error("fallback delete failed", zap.String("record_id", id), zap.Error(err))
		return false
	}
	return true
}

// SaveSettings replaces the single settings slot.
func (s *Store) SaveSettings(ctx context.Context, st model.Settings) bool {
	if s.primaryCall(ctx, "save settings", func(p engine) error { return p.saveSettings(ctx, st) }) {
		return true
	}
	if err := s.fallback.saveSettings(ctx, st); err != nil {
		s.log.Error("fallback settings save failed", zap.Error(err))
		return false
	}
	return true
}

// GetSettings returns the stored settings or model.DefaultSettings when absent.
func (s *Store) GetSettings(ctx context.Context) model.Settings {
	var (
		st model.Settings
		ok bool
	)
	if s.primaryCall(ctx, "read settings", func(p engine) (err error) {
		st, ok, err = p.settings(ctx)
		return err
	}) {
		if !ok {
			return model.DefaultSettings()
		}
		return st
	}
	st, ok, err := s.fallback.settings(ctx)
	if err != nil {
		s.log.Error("fallback settings read failed", zap.Error(err))
	}
	if err != nil || !ok {
		return model.DefaultSettings()
	}
	return st
}

// Clear removes all records, settings and metadata.
func (s *Store) Clear(ctx context.Context) bool {
	if s.primaryCall(ctx, "clear", func(p engine) error { return p.clear(ctx) }) {
		return true
	}
	if err := s.fallback.clear(ctx); err != nil {
		s.log.Error("fallback clear failed", zap.Error(err))
		return false
	}
	return true
}

// Info reports which engine is active, the record count and the last write time.
func (s *Store) Info(ctx context.Context) model.StorageInfo {
	var info model.StorageInfo
	s.primaryCall(ctx, "info", func(p engine) (err error) {
		info.LastWrite, err = p.lastWrite(ctx)
		return err
	})
	info.RecordCount = len(s.GetAllRecords(ctx))
	info.PrimaryEngine = s.Primary()
	return info
}

// Close releases the primary engine.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.primary == nil {
		return nil
	}
	err := s.primary.close()
	s.primary = nil
	return err
}

func nonNil(rs []model.Record) []model.Record {
	if rs == nil {
		return []model.Record{}
	}
	return rs
}
