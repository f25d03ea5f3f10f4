package grpc

import (
	"context"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestNewServerStartsNotServing(t *testing.T) {
	server, health, err := NewServer("secret")
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer server.Stop()
	if _, ok := server.GetServiceInfo()[healthpb.Health_ServiceDesc.ServiceName]; !ok {
		t.Fatalf("health service not registered")
	}
	for _, service := range []string{"", ServiceName} {
		resp, err := health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("check %q: %v", service, err)
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
			t.Fatalf("expected NOT_SERVING for %q, got %s", service, resp.GetStatus())
		}
	}
}
