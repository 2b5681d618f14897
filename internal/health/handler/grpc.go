// Package handler reports process readiness through the standard gRPC health
// service so orchestrators can probe the bot.
package handler

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "userbot-connect"

const checkTimeout = 2 * time.Second

// Pinger is used for readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Checker is an additional readiness probe (e.g. the session store backend).
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) error

// HealthCheck implements Checker.
func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Server is the gRPC health service. Its status follows the last Probe.
type Server struct {
	*health.Server
	pinger   Pinger
	sessions Checker
}

// NewServer returns a health server. pinger and sessions may be nil, in which
// case that probe is skipped.
func NewServer(pinger Pinger, sessions Checker) *Server {
	return &Server{Server: health.NewServer(), pinger: pinger, sessions: sessions}
}

// Probe runs the probes and updates the served status. Probe failures are
// reported as NOT_SERVING, never as errors.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			log.Printf("health: database ping failed: %v", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if s.sessions != nil {
		if err := s.sessions.HealthCheck(ctx); err != nil {
			log.Printf("health: session store check failed: %v", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.SetServingStatus("", status)
	s.SetServingStatus(ServiceName, status)
	return status
}

// Run checks every interval until ctx is done, then marks the service
// NOT_SERVING.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	s.Probe(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}
