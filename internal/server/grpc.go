// Package server builds the gRPC server the bot process exposes for probes.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthhandler "userbot-connect/internal/health/handler"
)

// Deps holds the services registered on the gRPC server.
type Deps struct {
	// Health is the readiness service. If nil, HealthService is not registered.
	Health *healthhandler.Server
	// Reflection registers the reflection service; enable outside production.
	Reflection bool
}

// New returns a gRPC server instrumented with OpenTelemetry and with deps registered.
func New(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the services in deps with s.
//
// Service → handler mapping:
//   - grpc.health.v1.Health → internal/health/handler
//   - grpc.reflection       → google.golang.org/grpc/reflection (when enabled)
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health.Server)
	}
	if deps.Reflection {
		if r, ok := s.(reflection.GRPCServer); ok {
			reflection.Register(r)
		}
	}
}
