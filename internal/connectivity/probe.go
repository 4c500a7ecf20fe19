package connectivity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/and161185/ganhos-keeper/internal/errs"
)

// Prober checks reachability. A nil error means online.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// HealthProber asks a gRPC health service whether service is SERVING.
type HealthProber struct {
	client  healthpb.HealthClient
	service string
	timeout time.Duration
}

// NewHealthProber probes service ("" for the whole server) over cc.
func NewHealthProber(cc grpc.ClientConnInterface, service string, timeout time.Duration) *HealthProber {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HealthProber{client: healthpb.NewHealthClient(cc), service: service, timeout: timeout}
}

func (p *HealthProber) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return fmt.Errorf("%w: health check: %v", errs.ErrOffline, err)
	}
	if s := resp.GetStatus(); s != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: health status %s", errs.ErrOffline, s)
	}
	return nil
}

// Watch probes immediately and then every interval, feeding results into m,
// until ctx is done.
func Watch(ctx context.Context, m *Monitor, p Prober, every time.Duration, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	check := func() {
		err := p.Probe(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil && m.Online() {
			log.Debug("probe failed", zap.Error(err))
		}
		m.Set(err == nil)
	}

	check()
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			check()
		}
	}
}
