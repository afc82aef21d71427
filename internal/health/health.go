package health

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
)

// Service names reported over gRPC health. The empty name is the overall
// status and is SERVING only while every check passes.
const (
	ServiceOverall  = ""
	ServiceRanking  = "ranking.upstream"
	ServiceEvents   = "ranking.events"
	ServiceAudit    = "ranking.audit"
	ServiceSessions = "ranking.sessions"
)

// Check probes one dependency
type Check func(ctx context.Context) error

// Monitor runs dependency checks and publishes their outcome on a gRPC
// health server
type Monitor struct {
	srv      *health.Server
	interval time.Duration

	mu     sync.RWMutex
	checks map[string]Check
	last   map[string]error
}

// NewMonitor creates a monitor probing every interval
func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	srv := health.NewServer()
	srv.SetServingStatus(ServiceOverall, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &Monitor{
		srv:      srv,
		interval: interval,
		checks:   make(map[string]Check),
		last:     make(map[string]error),
	}
}

// Add registers a check under a service name
func (m *Monitor) Add(service string, c Check) {
	m.mu.Lock()
	m.checks[service] = c
	m.mu.Unlock()
	m.srv.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// Server is the gRPC health service
func (m *Monitor) Server() *health.Server {
	return m.srv
}

// Probe runs every check once and updates the serving statuses
func (m *Monitor) Probe(ctx context.Context) map[string]error {
	m.mu.RLock()
	checks := make(map[string]Check, len(m.checks))
	for name, c := range m.checks {
		checks[name] = c
	}
	m.mu.RUnlock()

	results := make(map[string]error, len(checks))
	healthy := true
	for name, c := range checks {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := c(cctx)
		cancel()

		results[name] = err
		status := grpc_health_v1.HealthCheckResponse_SERVING
		if err != nil {
			healthy = false
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			logger.Warn("Health check failed", "service", name, "error", err)
		}
		m.srv.SetServingStatus(name, status)
	}

	overall := grpc_health_v1.HealthCheckResponse_SERVING
	if !healthy {
		overall = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	m.srv.SetServingStatus(ServiceOverall, overall)

	m.mu.Lock()
	m.last = results
	m.mu.Unlock()
	return results
}

// Ready reports the outcome of the last probe, with the failing services
func (m *Monitor) Ready() (bool, []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var failing []string
	for name := range m.checks {
		err, probed := m.last[name]
		if !probed || err != nil {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)
	return len(failing) == 0, failing
}

// Run probes immediately and then every interval until ctx is done
func (m *Monitor) Run(ctx context.Context) {
	m.Probe(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING so load balancers drain us
func (m *Monitor) Shutdown() {
	m.srv.Shutdown()
}

// Serve runs a gRPC server exposing the health service on lis until ctx is
// done, then stops it gracefully.
func Serve(ctx context.Context, lis net.Listener, m *Monitor) error {
	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, m.Server())

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC health server starting", "address", lis.Addr().String())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		m.Shutdown()
		grpcServer.GracefulStop()
		logger.Info("gRPC health server stopped")
		return nil
	}
}
