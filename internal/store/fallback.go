package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/and161185/ganhos-keeper/internal/kv"
	"github.com/and161185/ganhos-keeper/internal/model"
)

// Fallback slot names.
const (
	RecordsKey  = "ganhospro_records"
	SettingsKey = "ganhospro_settings"
)

// kvEngine keeps all records as one JSON document in a flat bucket.
type kvEngine struct {
	b  kv.Bucket
	mu sync.Mutex
}

func newKVEngine(b kv.Bucket) *kvEngine {
	if b == nil {
		b = kv.NewMemory()
	}
	return &kvEngine{b: b}
}

func (e *kvEngine) load() ([]model.Record, error) {
	raw, ok, err := e.b.Get(RecordsKey)
	if err != nil || !ok {
		return nil, err
	}
	var out []model.Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *kvEngine) store(rs []model.Record) error {
	if rs == nil {
		rs = []model.Record{}
	}
	raw, err := json.Marshal(rs)
	if err != nil {
		return err
	}
	return e.b.Set(RecordsKey, raw)
}

func (e *kvEngine) saveRecord(_ context.Context, r model.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rs, err := e.load()
	if err != nil {
		return err
	}
	for i := range rs {
		if rs[i].ID == r.ID {
			rs[i] = r
			return e.store(rs)
		}
	}
	return e.store(append(rs, r))
}

// replace overwrites the stored records with rs.
func (e *kvEngine) replace(rs []model.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store(rs)
}

func (e *kvEngine) allRecords(context.Context) ([]model.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.load()
}

func (e *kvEngine) deleteRecord(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rs, err := e.load()
	if err != nil {
		return err
	}
	kept := rs[:0]
	for _, r := range rs {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	return e.store(kept)
}

func (e *kvEngine) saveSettings(_ context.Context, s model.Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return e.b.Set(SettingsKey, raw)
}

func (e *kvEngine) settings(context.Context) (model.Settings, bool, error) {
	raw, ok, err := e.b.Get(SettingsKey)
	if err != nil || !ok {
		return model.Settings{}, false, err
	}
	var s model.Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return model.Settings{}, false, err
	}
	return s, true, nil
}

func (e *kvEngine) clear(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.b.Delete(RecordsKey); err != nil {
		return err
	}
	return e.b.Delete(SettingsKey)
}

func (e *kvEngine) lastWrite(context.Context) (time.Time, error) { return time.Time{}, nil }

func (e *kvEngine) close() error { return nil }
