package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name probes ask for.
const ServiceName = "actionables.v1.Actionables"

// HealthService publishes the readiness of the backing stores over the
// standard gRPC health protocol.
type HealthService struct {
	server *health.Server
	check  Checker
	logger *zap.Logger
}

func NewHealthService(check Checker, logger *zap.Logger) *HealthService {
	return &HealthService{
		server: health.NewServer(),
		check:  check,
		logger: logger.Named("health"),
	}
}

// NewGrpcServer builds a gRPC server exposing hs and reflection.
func NewGrpcServer(hs *HealthService, opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, hs.server)
	reflection.Register(srv)
	return srv
}

// Update runs the check once and publishes the result.
func (hs *HealthService) Update(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if hs.check != nil {
		if err := hs.check(ctx); err != nil {
			hs.logger.Warn("readiness check failed", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	hs.server.SetServingStatus("", status)
	hs.server.SetServingStatus(ServiceName, status)
	return status
}

// Watch re-runs the check every interval until ctx is done.
func (hs *HealthService) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		cctx, cancel := context.WithTimeout(ctx, interval)
		hs.Update(cctx)
		cancel()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown marks every service as not serving.
func (hs *HealthService) Shutdown() {
	hs.server.Shutdown()
}

func (hs *HealthService) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := hs.server.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
