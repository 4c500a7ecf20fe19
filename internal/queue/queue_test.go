package queue

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/and161185/ganhos-keeper/internal/errs"
	"github.com/and161185/ganhos-keeper/internal/kv"
	"github.com/and161185/ganhos-keeper/internal/model"
)

type fakeClock struct{ ms int64 }

func (c *fakeClock) now() time.Time { return time.UnixMilli(c.ms) }
func (c *fakeClock) set(ms int64)   { c.ms = ms }

func record(id, gross string) model.Record {
	return model.Record{
		ID:            id,
		Date:          "2025-05-01",
		TotalEarnings: decimal.RequireFromString(gross),
		KmDriven:      decimal.RequireFromString("10"),
	}
}

func newQueue(t *testing.T) (*Queue, *fakeClock, *kv.Memory) {
	t.Helper()
	clk := &fakeClock{ms: 1}
	b := kv.NewMemory()
	return New(b, nil, WithClock(clk.now)), clk, b
}

func TestEnqueue_DeleteSupersedesSave(t *testing.T) {
	q, clk, _ := newQueue(t)

	clk.set(100)
	_, err := q.Enqueue(model.OpSave, record("a", "10"))
	require.NoError(t, err)
	clk.set(200)
	del, err := q.Enqueue(model.OpDelete, model.Record{ID: "a"})
	require.NoError(t, err)

	ops := q.Pending()
	require.Len(t, ops, 1)
	require.Equal(t, del.ID, ops[0].ID)
	require.Equal(t, model.OpDelete, ops[0].Kind)
	require.Equal(t, int64(200), ops[0].Timestamp)
	require.Equal(t, 0, ops[0].RetryCount)
}

func TestDedupe_KeepsGreatestTimestampPerResource(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		var ops []model.PendingOperation
		maxTS := map[string]int64{}
		for i := 0; i < 20; i++ {
			id := string(rune('a' + rng.Intn(3)))
			ts := rng.Int63n(1000)
			kind := model.OpSave
			if rng.Intn(2) == 0 {
				kind = model.OpDelete
			}
			ops = append(ops, model.PendingOperation{
				ID: model.NewOperationID(time.UnixMilli(ts)), Kind: kind,
				Data: model.Record{ID: id}, Timestamp: ts,
			})
			if ts > maxTS[id] {
				maxTS[id] = ts
			}
		}
		out := Dedupe(ops)
		require.Len(t, out, len(maxTS))
		seen := map[string]bool{}
		for i, op := range out {
			require.False(t, seen[op.ResourceID()], "duplicate resource %s", op.ResourceID())
			seen[op.ResourceID()] = true
			require.Equal(t, maxTS[op.ResourceID()], op.Timestamp)
			if i > 0 {
				require.LessOrEqual(t, out[i-1].Timestamp, op.Timestamp)
			}
		}
	}
}

func TestDedupe_TieGoesToLater(t *testing.T) {
	first := model.PendingOperation{ID: "1", Kind: model.OpSave, Data: model.Record{ID: "a"}, Timestamp: 5}
	second := model.PendingOperation{ID: "2", Kind: model.OpDelete, Data: model.Record{ID: "a"}, Timestamp: 5}
	out := Dedupe([]model.PendingOperation{first, second})
	require.Len(t, out, 1)
	require.Equal(t, "2", out[0].ID)
}

func TestEnqueue_OfflineBurstCollapsesPerResource(t *testing.T) {
	q, clk, _ := newQueue(t)
	writes := []struct {
		ts    int64
		id    string
		gross string
	}{
		{10, "x", "1"}, {20, "y", "2"}, {30, "x", "3"}, {40, "z", "4"}, {50, "y", "5"},
	}
	for _, w := range writes {
		clk.set(w.ts)
		_, err := q.Enqueue(model.OpSave, record(w.id, w.gross))
		require.NoError(t, err)
	}

	ops := q.Snapshot(false)
	require.Len(t, ops, 3)
	require.Equal(t, []string{"x", "z", "y"}, []string{ops[0].ResourceID(), ops[1].ResourceID(), ops[2].ResourceID()})
	require.True(t, ops[0].Data.TotalEarnings.Equal(decimal.RequireFromString("3")))
	require.True(t, ops[2].Data.TotalEarnings.Equal(decimal.RequireFromString("5")))
}

func TestEnqueue_Validation(t *testing.T) {
	q, _, _ := newQueue(t)
	_, err := q.Enqueue("patch", record("a", "1"))
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = q.Enqueue(model.OpSave, model.Record{})
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Zero(t, q.Len())
}

func TestPersist_SlotSchemaAndReload(t *testing.T) {
	q, clk, b := newQueue(t)
	clk.set(100)
	_, err := q.Enqueue(model.OpSave, record("a", "12.5"))
	require.NoError(t, err)
	clk.set(200)
	_, err = q.Enqueue(model.OpDelete, record("b", "1"))
	require.NoError(t, err)

	raw, ok, err := b.Get(DefaultSlot)
	require.NoError(t, err)
	require.True(t, ok)

	var wire []map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	require.Len(t, wire, 2)
	require.Equal(t, "save", wire[0]["type"])
	require.Equal(t, "a", wire[0]["data"].(map[string]any)["id"])
	require.EqualValues(t, 100, wire[0]["timestamp"])
	require.EqualValues(t, 0, wire[0]["retryCount"])
	require.Equal(t, map[string]any{"id": "b"}, wire[1]["data"])

	q2 := New(b, nil)
	require.NoError(t, q2.Load())
	got := q2.Pending()
	require.Len(t, got, 2)
	require.True(t, got[0].Data.Equal(record("a", "12.5")))
	require.Equal(t, model.OpDelete, got[1].Kind)
	require.Equal(t, "b", got[1].ResourceID())
}

func TestLoad_CorruptSlotStartsEmpty(t *testing.T) {
	b := kv.NewMemory()
	require.NoError(t, b.Set(DefaultSlot, []byte(`{"oops"`)))
	q := New(b, nil)
	err := q.Load()
	require.ErrorIs(t, err, errs.ErrQueueCorrupt)
	require.Zero(t, q.Len())
}

func TestLoad_SkipsMalformedEntriesAndDedupes(t *testing.T) {
	b := kv.NewMemory()
	slot := `[
 {"id":"1","type":"save","data":{"id":"a","date":"2025-01-01","totalEarnings":"1","kmDriven":"1"},"timestamp":10,"retryCount":0},
 {"id":"2","type":"teleport","data":{"id":"a"},"timestamp":20,"retryCount":0},
 {"id":"3","type":"delete","data":{"id":"a"},"timestamp":30,"retryCount":1},
 {"id":"4","type":"update","data":{"id":"c","date":"2025-01-02","totalEarnings":2,"kmDriven":3},"timestamp":5,"retryCount":0}
]`
	require.NoError(t, b.Set(DefaultSlot, []byte(slot)))
	q := New(b, nil)
	require.NoError(t, q.Load())

	ops := q.Pending()
	require.Len(t, ops, 2)
	require.Equal(t, "4", ops[0].ID)
	require.Equal(t, "3", ops[1].ID)
	require.Equal(t, 1, ops[1].RetryCount)
}

func TestLoad_MissingSlot(t *testing.T) {
	q := New(kv.NewMemory(), nil)
	require.NoError(t, q.Load())
	require.Zero(t, q.Len())
}

func TestRequeueFailed_ExhaustsAfterMaxRetries(t *testing.T) {
	q, clk, _ := newQueue(t)
	clk.set(100)
	op, err := q.Enqueue(model.OpSave, record("x", "1"))
	require.NoError(t, err)

	for i := 1; i <= MaxRetries; i++ {
		clk.set(int64(100 + i*1000))
		snap := q.Snapshot(false)
		require.Len(t, snap, 1, "attempt %d", i)
		retry, err := q.RequeueFailed(snap)
		require.NoError(t, err)

		cur := q.Pending()[0]
		require.Equal(t, op.ID, cur.ID)
		require.Equal(t, i, cur.RetryCount)
		require.Equal(t, int64(100+i*1000), cur.Timestamp)
		if i < MaxRetries {
			require.Len(t, retry, 1)
		} else {
			require.Empty(t, retry)
		}
	}

	require.Equal(t, 1, q.Len(), "exhausted operation stays queued")
	require.Equal(t, 1, q.FailedLen())
	require.Empty(t, q.Snapshot(false))
	require.Len(t, q.Snapshot(true), 1)

	n, err := q.RetryExhausted()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Zero(t, q.FailedLen())
	require.Len(t, q.Snapshot(false), 1)
}

func TestRequeueFailed_IgnoresSupersededOperation(t *testing.T) {
	q, clk, _ := newQueue(t)
	clk.set(100)
	old, _ := q.Enqueue(model.OpSave, record("a", "1"))
	clk.set(200)
	newer, _ := q.Enqueue(model.OpSave, record("a", "2"))

	retry, err := q.RequeueFailed([]model.PendingOperation{old})
	require.NoError(t, err)
	require.Empty(t, retry)

	ops := q.Pending()
	require.Len(t, ops, 1)
	require.Equal(t, newer.ID, ops[0].ID)
	require.Zero(t, ops[0].RetryCount)
}

func TestDequeueConfirmed(t *testing.T) {
	q, clk, b := newQueue(t)
	clk.set(1)
	a, _ := q.Enqueue(model.OpSave, record("a", "1"))
	clk.set(2)
	_, _ = q.Enqueue(model.OpSave, record("b", "1"))

	require.NoError(t, q.DequeueConfirmed(a.ID, "unknown"))
	ops := q.Pending()
	require.Len(t, ops, 1)
	require.Equal(t, "b", ops[0].ResourceID())

	q2 := New(b, nil)
	require.NoError(t, q2.Load())
	require.Equal(t, 1, q2.Len())
}

func TestClear(t *testing.T) {
	q, _, b := newQueue(t)
	_, _ = q.Enqueue(model.OpSave, record("a", "1"))
	require.NoError(t, q.Clear())
	require.Zero(t, q.Len())
	_, ok, _ := b.Get(DefaultSlot)
	require.False(t, ok)
}

func TestDiscard(t *testing.T) {
	q, clk, _ := newQueue(t)
	clk.set(1)
	_, _ = q.Enqueue(model.OpSave, record("a", "1"))
	clk.set(2)
	_, _ = q.Enqueue(model.OpSave, record("b", "1"))

	require.NoError(t, q.Discard("a"))
	require.NoError(t, q.Discard("missing"))
	ops := q.Pending()
	require.Len(t, ops, 1)
	require.Equal(t, "b", ops[0].ResourceID())
}

func TestHas(t *testing.T) {
	q, clk, _ := newQueue(t)
	clk.set(1)
	old, err := q.Enqueue(model.OpSave, record("a", "1"))
	require.NoError(t, err)
	require.True(t, q.Has(old.ID))

	clk.set(2)
	newer, err := q.Enqueue(model.OpSave, record("a", "2"))
	require.NoError(t, err)
	require.False(t, q.Has(old.ID), "superseded by dedup")
	require.True(t, q.Has(newer.ID))

	require.NoError(t, q.Discard("a"))
	require.False(t, q.Has(newer.ID))
}
