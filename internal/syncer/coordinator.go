// Package syncer implements the Sync Coordinator: it replays the pending-operation
// queue against a backend when connectivity allows, one run at a time, and retries
// failures with capped exponential backoff.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/ganhos-keeper/internal/backend"
	"github.com/and161185/ganhos-keeper/internal/connectivity"
	"github.com/and161185/ganhos-keeper/internal/errs"
	"github.com/and161185/ganhos-keeper/internal/model"
	"github.com/and161185/ganhos-keeper/internal/queue"
)

// Reason tells why a run was requested.
type Reason string

const (
	ReasonStartup Reason = "startup"
	ReasonOnline  Reason = "online"
	ReasonEnqueue Reason = "enqueue"
	ReasonTimer   Reason = "timer"
	// ReasonManual also replays operations that exhausted automatic retries.
	ReasonManual Reason = "manual"
)

// Result summarizes one run.
type Result struct {
	Reason    Reason
	Attempted int
	Succeeded int
	Failed    int
	Exhausted int           // failed operations no longer retried automatically
	NextRetry time.Duration // zero when no retry was scheduled
}

// Timer is the handle of a scheduled retry. *time.Timer implements it.
type Timer interface{ Stop() bool }

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithBackoff overrides the retry delay bounds.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Coordinator) {
		if base > 0 {
			c.base = base
		}
		if max >= c.base {
			c.max = max
		}
	}
}

// WithAfterFunc replaces time.AfterFunc for retry scheduling.
func WithAfterFunc(f AfterFunc) Option { return func(c *Coordinator) { c.afterFunc = f } }

// WithClock sets the time source of LastSyncTime.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

const flightKey = "sync"

// Coordinator owns the sync state of the process. Construct with New, call Start once
// and Stop on shutdown.
type Coordinator struct {
	queue   *queue.Queue
	backend backend.Backend
	monitor *connectivity.Monitor
	log     *zap.Logger

	base, max time.Duration
	afterFunc AfterFunc
	now       func() time.Time

	flight  singleflight.Group
	records recordLocks
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	// afterRun, if set, runs at the end of every run while it still holds the flight.
	afterRun func()

	mu          sync.Mutex
	timer       Timer
	syncing     bool
	flights     int // Run calls inside flight.Do, leaders and joiners
	dirty       bool
	initialized bool
	stopped     bool
	lastSync    time.Time
	unsubscribe func()
}

// New wires a coordinator. The queue should already be loaded.
func New(q *queue.Queue, b backend.Backend, m *connectivity.Monitor, log *zap.Logger, opts ...Option) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		queue:   q,
		backend: b,
		monitor: m,
		log:     log.Named("syncer"),
		base:    DefaultBaseDelay,
		max:     DefaultMaxDelay,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Delay is the retry delay after an operation that had failed n times before fails again.
func (c *Coordinator) Delay(n int) time.Duration { return Backoff(c.base, c.max, n) }

// Start marks the coordinator initialized, reacts to offline→online transitions and
// kicks off a run if work is already pending while online.
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.initialized || c.stopped {
		c.mu.Unlock()
		return
	}
	c.initialized = true
	ch, unsubscribe := c.monitor.Subscribe()
	c.unsubscribe = unsubscribe
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		for online := range ch {
			if online && c.schedulable() {
				c.Trigger(ReasonOnline)
			}
		}
	}()

	if c.monitor.Online() && c.schedulable() {
		c.Trigger(ReasonStartup)
	}
}

func (c *Coordinator) schedulable() bool { return c.queue.Len() > c.queue.FailedLen() }

// Enqueue adds a mutation to the queue and requests a run when online. A non-nil error
// means the queue could not be persisted; the operation is still queued in memory.
func (c *Coordinator) Enqueue(kind model.OpKind, rec model.Record) (model.PendingOperation, error) {
	op, err := c.queue.Enqueue(kind, rec)
	if op.ID == "" {
		return op, err
	}
	if c.monitor.Online() {
		c.Trigger(ReasonEnqueue)
	}
	return op, err
}

// Trigger requests a run in the background and returns immediately.
func (c *Coordinator) Trigger(reason Reason) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if c.flights > 0 {
		// the run in flight may have taken its snapshot already; its leader starts a
		// follow-up once it returns
		c.dirty = true
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		if _, err := c.Run(c.ctx, reason); err != nil {
			c.log.Debug("run skipped", zap.String("reason", string(reason)), zap.Error(err))
		}
	}()
}

// Run performs a sync run and waits for it. Concurrent callers share the run already
// in flight instead of starting another; a ReasonManual caller that joined an automatic
// run waits for it and then runs again, so exhausted operations are always replayed.
// It fails only with errs.ErrOffline or a context error; backend failures are reported
// in Result.
func (c *Coordinator) Run(ctx context.Context, reason Reason) (Result, error) {
	for {
		if !c.monitor.Online() {
			return Result{Reason: reason}, errs.ErrOffline
		}
		res, led, err := c.runShared(ctx, reason)
		if err != nil || led || reason != ReasonManual || res.Reason == ReasonManual {
			return res, err
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}
}

func (c *Coordinator) runShared(ctx context.Context, reason Reason) (Result, bool, error) {
	c.mu.Lock()
	c.flights++
	c.mu.Unlock()

	led := false
	v, err, _ := c.flight.Do(flightKey, func() (any, error) {
		led = true
		res, err := c.run(ctx, reason)
		if c.afterRun != nil {
			c.afterRun()
		}
		return res, err
	})

	c.mu.Lock()
	c.flights--
	again := led && c.dirty
	if led {
		c.dirty = false
	}
	c.mu.Unlock()
	if again {
		c.Trigger(ReasonEnqueue)
	}
	res, _ := v.(Result)
	return res, led, err
}

// Exclusive runs fn while no replay is writing record id, and keeps replays of id out
// until fn returns. Immediate writes go through it so that a queued older version can
// never land on the backend after a newer one.
func (c *Coordinator) Exclusive(id string, fn func()) {
	unlock := c.records.lock(id)
	defer unlock()
	fn()
}

func (c *Coordinator) setSyncing(v bool) {
	c.mu.Lock()
	c.syncing = v
	c.mu.Unlock()
}

func (c *Coordinator) run(ctx context.Context, reason Reason) (res Result, err error) {
	res.Reason = reason
	c.setSyncing(true)
	defer c.setSyncing(false)
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("sync run panicked", zap.Any("reason", r))
			res, err = Result{Reason: reason}, nil
		}
	}()

	ops := c.queue.Snapshot(reason == ReasonManual)
	if len(ops) == 0 {
		return res, nil
	}
	log := c.log.With(zap.String("reason", string(reason)))
	log.Debug("sync run started", zap.Int("ops", len(ops)))

	var (
		confirmed []string
		failed    []model.PendingOperation
	)
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			break
		}
		unlock := c.records.lock(op.ResourceID())
		if !c.queue.Has(op.ID) {
			// superseded or discarded by a newer write since the snapshot
			unlock()
			continue
		}
		res.Attempted++
		err := c.apply(ctx, op)
		unlock()
		if err != nil {
			log.Warn("replay failed",
				zap.String("op_id", op.ID),
				zap.String("kind", string(op.Kind)),
				zap.String("record_id", op.ResourceID()),
				zap.Int("retry", op.RetryCount),
				zap.Error(err),
			)
			failed = append(failed, op)
			continue
		}
		confirmed = append(confirmed, op.ID)
	}
	res.Succeeded, res.Failed = len(confirmed), len(failed)

	if err := c.queue.DequeueConfirmed(confirmed...); err != nil {
		log.Error("persist confirmed operations", zap.Error(err))
	}
	retry, err := c.queue.RequeueFailed(failed)
	if err != nil {
		log.Error("persist failed operations", zap.Error(err))
	}
	res.Exhausted = len(failed) - len(retry)

	if len(retry) > 0 {
		worst := 0
		for _, op := range retry {
			worst = max(worst, op.RetryCount-1)
		}
		res.NextRetry = c.Delay(worst)
		c.schedule(res.NextRetry)
	} else if !c.schedulable() {
		c.cancelTimer()
	}

	if res.Succeeded > 0 {
		c.mu.Lock()
		c.lastSync = c.now()
		c.mu.Unlock()
	}
	log.Info("sync run finished",
		zap.Int("attempted", res.Attempted),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("exhausted", res.Exhausted),
		zap.Duration("next_retry", res.NextRetry),
	)
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, nil
}

func (c *Coordinator) apply(ctx context.Context, op model.PendingOperation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", errs.ErrBackendUnavailable, r)
		}
	}()
	ctx = backend.WithOperationID(ctx, op.ID)
	if op.Kind == model.OpDelete {
		return c.backend.Delete(ctx, op.ResourceID())
	}
	return c.backend.Upsert(ctx, op.Data)
}

// schedule replaces any outstanding retry timer.
func (c *Coordinator) schedule(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.afterFunc(d, func() { c.Trigger(ReasonTimer) })
}

func (c *Coordinator) cancelTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Status returns a snapshot for display.
func (c *Coordinator) Status() model.SyncStatus {
	c.mu.Lock()
	st := model.SyncStatus{
		Initialized:  c.initialized,
		Syncing:      c.syncing,
		LastSyncTime: c.lastSync,
	}
	c.mu.Unlock()
	st.Online = c.monitor.Online()
	st.PendingCount = c.queue.Len()
	st.FailedCount = c.queue.FailedLen()
	return st
}

// Stop cancels the retry timer and any run in progress and waits for background work.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	unsubscribe := c.unsubscribe
	c.mu.Unlock()

	c.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
	c.wg.Wait()
}
