package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/bass5068/bottle-redeem/internal/config"
)

type fakePurger struct {
	calls     atomic.Int32
	retention atomic.Int64
}

func (p *fakePurger) PurgeExpiredTokens(_ context.Context, retention time.Duration) (int64, error) {
	p.calls.Add(1)
	p.retention.Store(int64(retention))
	return 1, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestTokenPurgeJobRunsOnTicker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	purger := &fakePurger{}
	StartTokenPurgeJob(ctx, config.Config{
		TokenPurgeJobEnabled: true,
		TokenPurgeInterval:   10 * time.Millisecond,
		TokenPurgeRetention:  time.Hour,
	}, purger)
	waitFor(t, func() bool { return purger.calls.Load() >= 2 })
	if got := time.Duration(purger.retention.Load()); got != time.Hour {
		t.Fatalf("expected retention 1h, got %s", got)
	}
}

func TestTokenPurgeJobDisabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	purger := &fakePurger{}
	StartTokenPurgeJob(ctx, config.Config{TokenPurgeInterval: time.Millisecond}, purger)
	time.Sleep(20 * time.Millisecond)
	if purger.calls.Load() != 0 {
		t.Fatalf("disabled job should not run")
	}
}

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (p *fakePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePinger) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func servingStatus(t *testing.T, server *health.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := server.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	return resp.GetStatus()
}

func TestHealthJobTracksDatabase(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server := health.NewServer()
	pinger := &fakePinger{}

	StartHealthJob(ctx, 10*time.Millisecond, pinger, server, "", "ledger")
	if got := servingStatus(t, server, "ledger"); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING after first probe, got %s", got)
	}

	pinger.set(errors.New("connection refused"))
	waitFor(t, func() bool {
		return servingStatus(t, server, "") == healthpb.HealthCheckResponse_NOT_SERVING
	})
	pinger.set(nil)
	waitFor(t, func() bool {
		return servingStatus(t, server, "ledger") == healthpb.HealthCheckResponse_SERVING
	})
}
