// Package queue maintains the deduplicated, timestamp-ordered log of mutations that
// the sync backend has not confirmed yet, persisted in a flat key-value slot.
package queue

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/ganhos-keeper/internal/errs"
	"github.com/and161185/ganhos-keeper/internal/kv"
	"github.com/and161185/ganhos-keeper/internal/model"
)

const (
	// DefaultSlot is the key holding the persisted JSON array.
	DefaultSlot = "ganhospro_pending_ops"
	// MaxRetries is the number of failed replays after which automatic retry stops.
	MaxRetries = 3
)

// Queue is safe for concurrent use. Every mutation rewrites the persisted slot.
type Queue struct {
	bucket     kv.Bucket
	slot       string
	maxRetries int
	now        func() time.Time
	log        *zap.Logger

	mu  sync.Mutex
	ops []model.PendingOperation // deduplicated, sorted by Timestamp
}

// Option customizes a Queue.
type Option func(*Queue)

// WithClock sets the time source used for enqueue and retry timestamps.
func WithClock(now func() time.Time) Option { return func(q *Queue) { q.now = now } }

// WithSlot sets the persisted slot key.
func WithSlot(slot string) Option { return func(q *Queue) { q.slot = slot } }

// WithMaxRetries overrides MaxRetries.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

// New constructs an empty queue over bucket. Call Load to restore a previous session.
func New(bucket kv.Bucket, log *zap.Logger, opts ...Option) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	q := &Queue{
		bucket:     bucket,
		slot:       DefaultSlot,
		maxRetries: MaxRetries,
		now:        time.Now,
		log:        log.Named("queue"),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Dedupe keeps, per resource id, the operation with the greatest timestamp (the later
// one on ties) and returns the survivors sorted by timestamp ascending.
func Dedupe(ops []model.PendingOperation) []model.PendingOperation {
	out := make([]model.PendingOperation, 0, len(ops))
	pos := make(map[string]int, len(ops))
	for _, op := range ops {
		i, ok := pos[op.ResourceID()]
		if !ok {
			pos[op.ResourceID()] = len(out)
			out = append(out, op)
			continue
		}
		if out[i].Timestamp <= op.Timestamp {
			out[i] = op
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Load replaces the in-memory set with the persisted one, deduplicated. A corrupt slot
// leaves the queue empty and returns an error wrapping errs.ErrQueueCorrupt;
// individually malformed entries are skipped.
func (q *Queue) Load() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = nil

	raw, ok, err := q.bucket.Get(q.slot)
	if err != nil {
		return fmt.Errorf("queue: load: %w", err)
	}
	if !ok || len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		q.log.Warn("persisted queue is corrupt, starting empty", zap.Error(err))
		return fmt.Errorf("%w: %v", errs.ErrQueueCorrupt, err)
	}
	ops := make([]model.PendingOperation, 0, len(items))
	for i, it := range items {
		var op model.PendingOperation
		if err := json.Unmarshal(it, &op); err != nil {
			q.log.Warn("skipping malformed queued operation", zap.Int("index", i), zap.Error(err))
			continue
		}
		ops = append(ops, op)
	}
	q.ops = Dedupe(ops)
	q.log.Debug("queue loaded", zap.Int("ops", len(q.ops)))
	return nil
}

// Enqueue records a mutation of rec (only rec.ID is used for deletes), replacing any
// pending operation for the same resource, and persists the set.
// The returned operation is kept in memory even if persisting fails.
func (q *Queue) Enqueue(kind model.OpKind, rec model.Record) (model.PendingOperation, error) {
	if !kind.Valid() {
		return model.PendingOperation{}, fmt.Errorf("%w: operation kind %q", errs.ErrValidation, kind)
	}
	if rec.ID == "" {
		return model.PendingOperation{}, fmt.Errorf("%w: empty resource id", errs.ErrValidation)
	}
	if kind == model.OpDelete {
		rec = model.Record{ID: rec.ID}
	}
	now := q.now()
	op := model.PendingOperation{
		ID:        model.NewOperationID(now),
		Kind:      kind,
		Data:      rec,
		Timestamp: now.UnixMilli(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = Dedupe(append(q.ops, op))
	q.log.Debug("enqueued",
		zap.String("op_id", op.ID),
		zap.String("kind", string(kind)),
		zap.String("record_id", rec.ID),
	)
	return op, q.persistLocked()
}

// DequeueConfirmed removes the operations with the given operation ids.
// Ids that are no longer queued (superseded meanwhile) are ignored.
func (q *Queue) DequeueConfirmed(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.ops)
	q.ops = slices.DeleteFunc(q.ops, func(op model.PendingOperation) bool {
		return slices.Contains(ids, op.ID)
	})
	if len(q.ops) == n {
		return nil
	}
	return q.persistLocked()
}

// Has reports whether the operation with id is still queued.
func (q *Queue) Has(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.ContainsFunc(q.ops, func(op model.PendingOperation) bool { return op.ID == id })
}

// Discard drops the pending operation for resourceID, if any. It is used when a newer
// write for the same record was confirmed without going through the queue.
func (q *Queue) Discard(resourceID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.ops)
	q.ops = slices.DeleteFunc(q.ops, func(op model.PendingOperation) bool {
		return op.ResourceID() == resourceID
	})
	if len(q.ops) == n {
		return nil
	}
	return q.persistLocked()
}

// RequeueFailed increments the retry count and refreshes the timestamp of each failed
// operation still queued under the same operation id, and returns the ones that remain
// eligible for automatic retry. Exhausted operations stay persisted.
func (q *Queue) RequeueFailed(failed []model.PendingOperation) ([]model.PendingOperation, error) {
	if len(failed) == 0 {
		return nil, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UnixMilli()
	var retry []model.PendingOperation
	for _, f := range failed {
		i := slices.IndexFunc(q.ops, func(op model.PendingOperation) bool { return op.ID == f.ID })
		if i < 0 {
			continue
		}
		q.ops[i].RetryCount++
		q.ops[i].Timestamp = now
		if q.ops[i].RetryCount < q.maxRetries {
			retry = append(retry, q.ops[i])
		} else {
			q.log.Warn("operation exhausted automatic retries",
				zap.String("op_id", f.ID),
				zap.String("record_id", f.ResourceID()),
				zap.Int("retry", q.ops[i].RetryCount),
			)
		}
	}
	sort.SliceStable(q.ops, func(i, j int) bool { return q.ops[i].Timestamp < q.ops[j].Timestamp })
	return retry, q.persistLocked()
}

// Exhausted reports whether op has used up its automatic retries.
func (q *Queue) Exhausted(op model.PendingOperation) bool { return op.RetryCount >= q.maxRetries }

// Snapshot returns a copy of the queued operations in replay order.
// Exhausted operations are included only on request.
func (q *Queue) Snapshot(includeExhausted bool) []model.PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.PendingOperation, 0, len(q.ops))
	for _, op := range q.ops {
		if includeExhausted || !q.Exhausted(op) {
			out = append(out, op)
		}
	}
	return out
}

// Pending returns every queued operation, exhausted ones included.
func (q *Queue) Pending() []model.PendingOperation { return q.Snapshot(true) }

// Len is the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// FailedLen is the number of exhausted operations.
func (q *Queue) FailedLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, op := range q.ops {
		if q.Exhausted(op) {
			n++
		}
	}
	return n
}

// RetryExhausted resets exhausted operations so automatic retry picks them up again.
func (q *Queue) RetryExhausted() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for i := range q.ops {
		if q.Exhausted(q.ops[i]) {
			q.ops[i].RetryCount = 0
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	q.log.Info("reset exhausted operations", zap.Int("count", n))
	return n, q.persistLocked()
}

// Clear drops every queued operation.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = nil
	return q.bucket.Delete(q.slot)
}

func (q *Queue) persistLocked() error {
	ops := q.ops
	if ops == nil {
		ops = []model.PendingOperation{}
	}
	raw, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("queue: encode: %w", err)
	}
	if err := q.bucket.Set(q.slot, raw); err != nil {
		q.log.Error("persist queue", zap.Error(err))
		return fmt.Errorf("queue: persist: %w", err)
	}
	return nil
}
