package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/and161185/ganhos-keeper/internal/backend"
	"github.com/and161185/ganhos-keeper/internal/config"
	"github.com/and161185/ganhos-keeper/internal/connectivity"
	"github.com/and161185/ganhos-keeper/internal/errs"
	"github.com/and161185/ganhos-keeper/internal/kv"
	"github.com/and161185/ganhos-keeper/internal/queue"
	"github.com/and161185/ganhos-keeper/internal/store"
	"github.com/and161185/ganhos-keeper/internal/syncer"
	"github.com/and161185/ganhos-keeper/internal/syncrpc"
)

// Open builds a Client from configuration: the store under cfg.Storage.DataDir, the
// persisted queue, and either the local store or a remote server as replay backend.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	bucket, err := kv.OpenFile(filepath.Join(cfg.Storage.DataDir, "kv"))
	if err != nil {
		return nil, fmt.Errorf("kv: %w", err)
	}

	dbPath := ""
	if !cfg.Storage.DisableSQLite {
		dbPath = filepath.Join(cfg.Storage.DataDir, cfg.Storage.DBFile)
	}
	st := store.New(dbPath, bucket, log)
	if !st.Init(ctx) {
		log.Warn("primary storage engine unavailable, using fallback")
	}

	q := queue.New(bucket, log, queue.WithSlot(cfg.Storage.QueueSlot), queue.WithMaxRetries(cfg.Sync.MaxRetries))
	if err := q.Load(); err != nil {
		if !errors.Is(err, errs.ErrQueueCorrupt) {
			_ = st.Close()
			return nil, err
		}
		log.Warn("pending operations discarded", zap.Error(err))
	}

	monitor := connectivity.NewMonitor(!cfg.Sync.StartOffline, log)

	var (
		b       backend.Backend = backend.NewStoreSink(st)
		closers []func() error
	)
	if cfg.Sync.RemoteAddr != "" {
		var opts []grpc.DialOption
		if cfg.Sync.RemoteCAFile != "" {
			creds, err := credentials.NewClientTLSFromFile(cfg.Sync.RemoteCAFile, "")
			if err != nil {
				_ = st.Close()
				return nil, fmt.Errorf("remote ca: %w", err)
			}
			opts = append(opts, grpc.WithTransportCredentials(creds))
		}
		cc, err := syncrpc.Dial(cfg.Sync.RemoteAddr, opts...)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("dial %s: %w", cfg.Sync.RemoteAddr, err)
		}
		b = backend.NewRemote(cc, cfg.Sync.CallTimeout, log)

		prober := connectivity.NewHealthProber(cc, syncrpc.ServiceName, cfg.Sync.CallTimeout)
		// settle the initial state before the coordinator looks at it
		connectivity.Watch(ctx, monitor, prober, 0, log)
		watchCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			connectivity.Watch(watchCtx, monitor, prober, cfg.Sync.ProbeInterval, log)
		}()
		closers = append(closers, cc.Close, func() error { cancel(); <-done; return nil })
	}

	coord := syncer.New(q, b, monitor, log, syncer.WithBackoff(cfg.Sync.BaseDelay, cfg.Sync.MaxDelay))
	coord.Start()

	c := New(st, q, b, monitor, coord, log)
	c.closers = closers
	log.Info("client ready",
		zap.Bool("primary_engine", st.Primary()),
		zap.Bool("remote", cfg.Sync.RemoteAddr != ""),
		zap.Bool("online", monitor.Online()),
		zap.Int("pending", q.Len()),
	)
	return c, nil
}
