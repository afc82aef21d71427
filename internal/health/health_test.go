package health

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func status(t *testing.T, m *Monitor, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := m.Server().Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestProbeSetsServingStatus(t *testing.T) {
	var upstreamDown atomic.Bool
	m := NewMonitor(time.Minute)
	m.Add(ServiceRanking, func(ctx context.Context) error {
		if upstreamDown.Load() {
			return errors.New("connection refused")
		}
		return nil
	})
	m.Add(ServiceEvents, func(ctx context.Context) error { return nil })

	ready, failing := m.Ready()
	assert.False(t, ready, "nothing probed yet")
	assert.Equal(t, []string{ServiceEvents, ServiceRanking}, failing)

	m.Probe(context.Background())
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, status(t, m, ServiceOverall))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, status(t, m, ServiceRanking))
	ready, failing = m.Ready()
	assert.True(t, ready)
	assert.Empty(t, failing)

	upstreamDown.Store(true)
	results := m.Probe(context.Background())
	assert.Error(t, results[ServiceRanking])
	assert.NoError(t, results[ServiceEvents])
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, status(t, m, ServiceOverall))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, status(t, m, ServiceRanking))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, status(t, m, ServiceEvents))
	ready, failing = m.Ready()
	assert.False(t, ready)
	assert.Equal(t, []string{ServiceRanking}, failing)
}

func TestRunProbesUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	m := NewMonitor(10 * time.Millisecond)
	m.Add(ServiceAudit, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServeAnswersHealthChecks(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	m := NewMonitor(time.Minute)
	m.Add(ServiceRanking, func(ctx context.Context) error { return nil })
	m.Probe(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, lis, m) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := grpc_health_v1.NewHealthClient(conn)
	resp, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: ServiceRanking})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	cancel()
	require.NoError(t, <-errCh)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, status(t, m, ServiceRanking))
}
