// Package client is the façade used by the user interface. Mutations always succeed
// locally and are queued for replay when the backend cannot confirm them right away.
package client

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/and161185/ganhos-keeper/internal/backend"
	"github.com/and161185/ganhos-keeper/internal/connectivity"
	"github.com/and161185/ganhos-keeper/internal/errs"
	"github.com/and161185/ganhos-keeper/internal/model"
	"github.com/and161185/ganhos-keeper/internal/queue"
	"github.com/and161185/ganhos-keeper/internal/store"
	"github.com/and161185/ganhos-keeper/internal/syncer"
)

// Client ties together the durable store, the pending queue and the sync coordinator.
type Client struct {
	store   *store.Store
	queue   *queue.Queue
	backend backend.Backend
	monitor *connectivity.Monitor
	coord   *syncer.Coordinator
	log     *zap.Logger

	closers []func() error
}

// New assembles a Client from started components. Open is the usual constructor.
func New(st *store.Store, q *queue.Queue, b backend.Backend, m *connectivity.Monitor, c *syncer.Coordinator, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{store: st, queue: q, backend: b, monitor: m, coord: c, log: log.Named("client")}
}

// Save stores rec. When online the backend is tried first; otherwise, or if that fails,
// the record is written locally and queued. The error is non-nil only when the local
// write failed too, and then wraps errs.ErrLocalWrite.
func (c *Client) Save(ctx context.Context, rec model.Record) error {
	return c.mutate(ctx, model.OpSave, rec)
}

// Delete removes the record with id, with the same guarantees as Save.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.mutate(ctx, model.OpDelete, model.Record{ID: id})
}

func (c *Client) mutate(ctx context.Context, kind model.OpKind, rec model.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: empty id", errs.ErrValidation)
	}
	var err error
	// no replay of rec.ID may interleave with the write and the discard below
	c.coord.Exclusive(rec.ID, func() { err = c.mutateLocked(ctx, kind, rec) })
	return err
}

func (c *Client) mutateLocked(ctx context.Context, kind model.OpKind, rec model.Record) error {
	log := c.log.With(zap.String("kind", string(kind)), zap.String("record_id", rec.ID))

	if c.monitor.Online() {
		err := c.apply(ctx, kind, rec)
		if err == nil {
			// a queued older write must not replay over this one
			if err := c.queue.Discard(rec.ID); err != nil {
				log.Warn("discard superseded operation", zap.Error(err))
			}
			if !backend.WritesStore(c.backend) && !c.writeLocal(ctx, kind, rec) {
				log.Warn("local copy not updated after confirmed write")
			}
			return nil
		}
		log.Warn("immediate write failed, queueing", zap.Error(err))
	}

	ok := c.writeLocal(ctx, kind, rec)
	if _, err := c.coord.Enqueue(kind, rec); err != nil {
		log.Error("enqueue", zap.Error(err))
	}
	if !ok {
		return fmt.Errorf("%w: %s %s", errs.ErrLocalWrite, kind, rec.ID)
	}
	return nil
}

func (c *Client) apply(ctx context.Context, kind model.OpKind, rec model.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", errs.ErrBackendUnavailable, r)
		}
	}()
	if kind == model.OpDelete {
		return c.backend.Delete(ctx, rec.ID)
	}
	return c.backend.Upsert(ctx, rec)
}

func (c *Client) writeLocal(ctx context.Context, kind model.OpKind, rec model.Record) bool {
	if kind == model.OpDelete {
		return c.store.DeleteRecord(ctx, rec.ID)
	}
	return c.store.SaveRecord(ctx, rec)
}

// List returns the locally stored records ordered by date, then id.
func (c *Client) List(ctx context.Context) []model.Record {
	recs := c.store.GetAllRecords(ctx)
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Date != recs[j].Date {
			return recs[i].Date < recs[j].Date
		}
		return recs[i].ID < recs[j].ID
	})
	return recs
}

// Summary totals the local records with the current settings.
func (c *Client) Summary(ctx context.Context) model.Summary {
	return model.Summarize(c.List(ctx), c.GetSettings(ctx))
}

// Status reports connectivity and sync progress for display.
func (c *Client) Status() model.SyncStatus { return c.coord.Status() }

// ForceSync runs a sync now, including operations that exhausted automatic retries. If an
// automatic run is already in flight it waits for it and then runs again.
func (c *Client) ForceSync(ctx context.Context) (syncer.Result, error) {
	return c.coord.Run(ctx, syncer.ReasonManual)
}

// Flush waits for pending automatic work when online. Exhausted operations are left alone.
func (c *Client) Flush(ctx context.Context) error {
	if !c.monitor.Online() {
		return nil
	}
	_, err := c.coord.Run(ctx, syncer.ReasonEnqueue)
	return err
}

// SetOnline feeds an externally observed connectivity state.
func (c *Client) SetOnline(online bool) { c.monitor.Set(online) }

// SaveSettings replaces the settings.
func (c *Client) SaveSettings(ctx context.Context, s model.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if !c.store.SaveSettings(ctx, s) {
		return fmt.Errorf("%w: settings", errs.ErrLocalWrite)
	}
	return nil
}

// GetSettings returns the stored settings or the defaults.
func (c *Client) GetSettings(ctx context.Context) model.Settings { return c.store.GetSettings(ctx) }

// StorageInfo describes the local store.
func (c *Client) StorageInfo(ctx context.Context) model.StorageInfo { return c.store.Info(ctx) }

// ClearPending drops every queued operation without replaying it.
func (c *Client) ClearPending() error { return c.queue.Clear() }

// ClearData removes all local records and settings and the pending queue.
func (c *Client) ClearData(ctx context.Context) error {
	if err := c.queue.Clear(); err != nil {
		return err
	}
	if !c.store.Clear(ctx) {
		return fmt.Errorf("%w: clear", errs.ErrLocalWrite)
	}
	return nil
}

// RetryFailed makes exhausted operations eligible for automatic retry again and
// requests a run when online. It returns how many were reset.
func (c *Client) RetryFailed() (int, error) {
	n, err := c.queue.RetryExhausted()
	if n > 0 && c.monitor.Online() {
		c.coord.Trigger(syncer.ReasonManual)
	}
	return n, err
}

// Close stops background sync and releases the store.
func (c *Client) Close() error {
	c.coord.Stop()
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	if err := c.store.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
