package grpc

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name reported by the health service next to the
// overall ("") status.
const ServiceName = "basket.v1.BasketService"

// Check reports whether a dependency is reachable.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthServer exposes grpc.health.v1 for the basket service. Status follows
// the result of the registered dependency checks.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	checks []Check
	logger *zap.Logger
}

func NewHealthServer(logger *zap.Logger, checks ...Check) *HealthServer {
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &HealthServer{
		server: srv,
		health: hs,
		checks: checks,
		logger: logger,
	}
}

func (h *HealthServer) Server() *grpc.Server {
	return h.server
}

// Probe runs every check once and publishes the combined status.
func (h *HealthServer) Probe(ctx context.Context, timeout time.Duration) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for _, c := range h.checks {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		err := c.Probe(cctx)
		cancel()
		if err != nil {
			h.logger.Warn("health check failed", zap.String("check", c.Name), zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
	return status
}

// Watch probes on every tick until ctx is cancelled.
func (h *HealthServer) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.Probe(ctx, interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Probe(ctx, interval)
		}
	}
}

// Shutdown marks every service as not serving and stops the server.
func (h *HealthServer) Shutdown() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
