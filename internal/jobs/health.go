package jobs

import (
	"context"
	"log/slog"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type StatusSetter interface {
	SetServingStatus(service string, servingStatus healthpb.HealthCheckResponse_ServingStatus)
}

// StartHealthJob probes the database once immediately and then every interval, publishing
// SERVING or NOT_SERVING for each of services.
func StartHealthJob(ctx context.Context, interval time.Duration, pinger Pinger, health StatusSetter, services ...string) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if len(services) == 0 {
		services = []string{""}
	}
	var last healthpb.HealthCheckResponse_ServingStatus = -1
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		err := pinger.Ping(probeCtx)
		cancel()
		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if status == last {
			return
		}
		if err != nil {
			slog.Warn("database health check failed", "error", err)
		} else if last != -1 {
			slog.Info("database health restored")
		}
		last = status
		for _, service := range services {
			health.SetServingStatus(service, status)
		}
	}

	probe()
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}
