package store

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/and161185/ganhos-keeper/internal/kv"
	"github.com/and161185/ganhos-keeper/internal/model"
)

func rec(id, day, gross, km string) model.Record {
	return model.Record{
		ID:            id,
		Date:          day,
		TotalEarnings: decimal.RequireFromString(gross),
		KmDriven:      decimal.RequireFromString(km),
	}
}

func byID(rs []model.Record) []model.Record {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
	return rs
}

func newPrimary(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "data", "ganhos.db"), kv.NewMemory(), nil)
	require.True(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newFallbackOnly(t *testing.T) *Store {
	t.Helper()
	failing := func(context.Context, string) (engine, error) { return nil, errors.New("boom") }
	s := New("ignored.db", kv.NewMemory(), nil, WithOpener(failing))
	require.False(t, s.Init(context.Background()))
	return s
}

// exercise runs the same behavioural checks against any Store configuration.
func exercise(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	require.Empty(t, s.GetAllRecords(ctx))
	require.NotNil(t, s.GetAllRecords(ctx))

	a := rec("a", "2025-03-01", "210.50", "180")
	a.HoursWorked = decimal.NewNullDecimal(decimal.RequireFromString("8.5"))
	b := rec("b", "2025-03-02", "99.9", "75.2")
	require.True(t, s.SaveRecord(ctx, a))
	require.True(t, s.SaveRecord(ctx, b))

	got := byID(s.GetAllRecords(ctx))
	require.Len(t, got, 2)
	require.True(t, got[0].Equal(a), "got %+v", got[0])
	require.True(t, got[1].Equal(b))

	// full replacement
	a2 := a
	a2.TotalEarnings = decimal.RequireFromString("300")
	a2.HoursWorked = decimal.NullDecimal{}
	a2.AdditionalCosts = decimal.NewNullDecimal(decimal.RequireFromString("12.3"))
	require.True(t, s.SaveRecord(ctx, a2))
	got = byID(s.GetAllRecords(ctx))
	require.Len(t, got, 2)
	require.True(t, got[0].Equal(a2), "got %+v", got[0])

	require.True(t, s.DeleteRecord(ctx, "a"))
	require.True(t, s.DeleteRecord(ctx, "does-not-exist"))
	got = s.GetAllRecords(ctx)
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].ID)

	require.True(t, s.GetSettings(ctx).CostPerKm.Equal(model.DefaultCostPerKm))
	require.True(t, s.SaveSettings(ctx, model.Settings{CostPerKm: decimal.RequireFromString("1.10")}))
	require.True(t, s.GetSettings(ctx).CostPerKm.Equal(decimal.RequireFromString("1.1")))

	require.True(t, s.Clear(ctx))
	require.Empty(t, s.GetAllRecords(ctx))
	require.True(t, s.GetSettings(ctx).CostPerKm.Equal(model.DefaultCostPerKm))
}

func TestStore_Primary(t *testing.T) {
	s := newPrimary(t)
	require.True(t, s.Primary())
	exercise(t, s)
}

func TestStore_FallbackTransparency(t *testing.T) {
	s := newFallbackOnly(t)
	require.False(t, s.Primary())
	exercise(t, s)
}

func TestStore_EmptyPathIsUnsupported(t *testing.T) {
	s := New("", kv.NewMemory(), nil)
	require.False(t, s.Init(context.Background()))
	exercise(t, s)
}

func TestStore_InitIsSticky(t *testing.T) {
	calls := 0
	opener := func(context.Context, string) (engine, error) {
		calls++
		return nil, errors.New("locked")
	}
	s := New("x.db", kv.NewMemory(), nil, WithOpener(opener))
	require.False(t, s.Init(context.Background()))
	require.False(t, s.Init(context.Background()))
	require.Equal(t, 1, calls, "engine stays unavailable for the Store lifetime")
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ganhos.db")

	s := New(path, kv.NewMemory(), nil)
	require.True(t, s.Init(ctx))
	require.True(t, s.SaveRecord(ctx, rec("a", "2025-01-01", "10", "1")))
	require.NoError(t, s.Close())

	s2 := New(path, kv.NewMemory(), nil)
	require.True(t, s2.Init(ctx))
	defer s2.Close()
	got := s2.GetAllRecords(ctx)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].ID)
}

func TestStore_Info(t *testing.T) {
	ctx := context.Background()
	s := newPrimary(t)
	before := time.Now().Add(-time.Second)
	require.True(t, s.SaveRecord(ctx, rec("a", "2025-01-01", "10", "1")))

	info := s.Info(ctx)
	require.True(t, info.PrimaryEngine)
	require.Equal(t, 1, info.RecordCount)
	require.True(t, info.LastWrite.After(before))

	fb := newFallbackOnly(t)
	require.True(t, fb.SaveRecord(ctx, rec("a", "2025-01-01", "10", "1")))
	info = fb.Info(ctx)
	require.False(t, info.PrimaryEngine)
	require.Equal(t, 1, info.RecordCount)
}

// brokenEngine fails every call, forcing the per-call fallback path.
type brokenEngine struct{}

var errBroken = errors.New("disk I/O error")

func (brokenEngine) saveRecord(context.Context, model.Record) error     { return errBroken }
func (brokenEngine) allRecords(context.Context) ([]model.Record, error) { return nil, errBroken }
func (brokenEngine) deleteRecord(context.Context, string) error         { return errBroken }
func (brokenEngine) saveSettings(context.Context, model.Settings) error { return errBroken }
func (brokenEngine) clear(context.Context) error                        { return errBroken }
func (brokenEngine) lastWrite(context.Context) (time.Time, error)       { return time.Time{}, errBroken }
func (brokenEngine) close() error                                       { return nil }
func (brokenEngine) settings(context.Context) (model.Settings, bool, error) {
	return model.Settings{}, false, errBroken
}

func TestStore_CallFailureFallsBack(t *testing.T) {
	s := New("x.db", kv.NewMemory(), nil,
		WithOpener(func(context.Context, string) (engine, error) { return brokenEngine{}, nil }))
	require.True(t, s.Init(context.Background()))
	exercise(t, s)
	require.False(t, s.Primary())
}

// flakyWrites is a real SQLite engine whose writes start failing on demand while reads
// keep working.
type flakyWrites struct {
	engine
	fail atomic.Bool
}

func (f *flakyWrites) saveRecord(ctx context.Context, r model.Record) error {
	if f.fail.Load() {
		return errBroken
	}
	return f.engine.saveRecord(ctx, r)
}

func (f *flakyWrites) deleteRecord(ctx context.Context, id string) error {
	if f.fail.Load() {
		return errBroken
	}
	return f.engine.deleteRecord(ctx, id)
}

func newFlaky(t *testing.T) (*Store, *flakyWrites) {
	t.Helper()
	ctx := context.Background()
	var f *flakyWrites
	s := New(filepath.Join(t.TempDir(), "ganhos.db"), kv.NewMemory(), nil,
		WithOpener(func(ctx context.Context, path string) (engine, error) {
			e, err := openSQLite(ctx, path)
			if err != nil {
				return nil, err
			}
			f = &flakyWrites{engine: e}
			return f, nil
		}))
	require.True(t, s.Init(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s, f
}

func TestStore_FailedWriteStaysVisible(t *testing.T) {
	ctx := context.Background()
	s, f := newFlaky(t)

	a := rec("a", "2025-03-01", "100", "10")
	require.True(t, s.SaveRecord(ctx, a))
	st := model.Settings{CostPerKm: decimal.RequireFromString("0.9")}
	require.True(t, s.SaveSettings(ctx, st))

	f.fail.Store(true)
	b := rec("b", "2025-03-02", "50", "5")
	require.True(t, s.SaveRecord(ctx, b))
	require.False(t, s.Primary())

	got := byID(s.GetAllRecords(ctx))
	require.Len(t, got, 2)
	require.True(t, got[0].Equal(a))
	require.True(t, got[1].Equal(b))
	require.True(t, s.GetSettings(ctx).CostPerKm.Equal(st.CostPerKm))

	require.True(t, s.DeleteRecord(ctx, "a"))
	got = s.GetAllRecords(ctx)
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].ID)
	require.Equal(t, 1, s.Info(ctx).RecordCount)
	require.False(t, s.Info(ctx).PrimaryEngine)
}

func TestStore_FailedDeleteStaysDeleted(t *testing.T) {
	ctx := context.Background()
	s, f := newFlaky(t)

	require.True(t, s.SaveRecord(ctx, rec("a", "2025-03-01", "100", "10")))
	require.True(t, s.SaveRecord(ctx, rec("b", "2025-03-02", "50", "5")))

	f.fail.Store(true)
	require.True(t, s.DeleteRecord(ctx, "a"))

	got := s.GetAllRecords(ctx)
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].ID)
}

// failingBucket makes the fallback itself fail.
type failingBucket struct{}

func (failingBucket) Get(string) ([]byte, bool, error) { return nil, false, errBroken }
func (failingBucket) Set(string, []byte) error         { return errBroken }
func (failingBucket) Delete(string) error              { return errBroken }

func TestStore_GenuineWriteFailure(t *testing.T) {
	ctx := context.Background()
	s := New("", failingBucket{}, nil)
	s.Init(ctx)
	require.False(t, s.SaveRecord(ctx, rec("a", "2025-01-01", "1", "1")))
	require.False(t, s.DeleteRecord(ctx, "a"))
	require.Empty(t, s.GetAllRecords(ctx))
	require.True(t, s.GetSettings(ctx).CostPerKm.Equal(model.DefaultCostPerKm))
}

func TestStore_CorruptFallbackDocument(t *testing.T) {
	ctx := context.Background()
	b := kv.NewMemory()
	require.NoError(t, b.Set(RecordsKey, []byte("{not json")))
	s := New("", b, nil)
	s.Init(ctx)
	require.Empty(t, s.GetAllRecords(ctx))
}
