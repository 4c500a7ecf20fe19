package connectivity

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/and161185/ganhos-keeper/internal/errs"
)

func TestMonitor_Transitions(t *testing.T) {
	m := NewMonitor(false, zaptest.NewLogger(t))
	ch, cancel := m.Subscribe()
	defer cancel()

	require.False(t, m.Set(false))
	require.True(t, m.Set(true))
	require.True(t, m.Online())
	require.True(t, <-ch)

	require.True(t, m.Set(false))
	require.True(t, m.Set(true))
	require.True(t, <-ch, "slow reader sees the latest state")
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %v", v)
	default:
	}
}

func TestMonitor_Unsubscribe(t *testing.T) {
	m := NewMonitor(true, nil)
	ch, cancel := m.Subscribe()
	cancel()
	cancel()
	_, ok := <-ch
	require.False(t, ok)
	require.True(t, m.Set(false))
}

func TestWatch_FollowsProber(t *testing.T) {
	m := NewMonitor(false, nil)
	var up atomic.Bool
	up.Store(true)
	p := ProberFunc(func(context.Context) error {
		if up.Load() {
			return nil
		}
		return errs.ErrOffline
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { Watch(ctx, m, p, 5*time.Millisecond, nil); close(done) }()

	require.Eventually(t, m.Online, time.Second, time.Millisecond)
	up.Store(false)
	require.Eventually(t, func() bool { return !m.Online() }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_SingleProbe(t *testing.T) {
	m := NewMonitor(true, nil)
	Watch(context.Background(), m, ProberFunc(func(context.Context) error { return errors.New("x") }), 0, nil)
	require.False(t, m.Online())
}

func TestHealthProber(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	go func() { _ = gs.Serve(lis) }()
	defer func() { gs.Stop(); _ = lis.Close() }()

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer cc.Close()

	p := NewHealthProber(cc, "", time.Second)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	require.NoError(t, p.Probe(context.Background()))

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	require.ErrorIs(t, p.Probe(context.Background()), errs.ErrOffline)

	unknown := NewHealthProber(cc, "ganhos.v1.Nope", time.Second)
	require.ErrorIs(t, unknown.Probe(context.Background()), errs.ErrOffline)
}
