package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/darshan-rambhia/goftp"
	"github.com/go-logr/logr"
	"github.com/jlaffaye/ftp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*poolMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, ok := NewPrometheus(reg).(*poolMetrics)
	require.True(t, ok)
	return m, reg
}

func TestNewPrometheus_Registers(t *testing.T) {
	_, reg := newTestMetrics(t)

	// Plain counters and gauges are exported before any observation.
	count, err := testutil.GatherAndCount(reg,
		"goftp_sessions_created_total",
		"goftp_pool_idle_sessions",
		"goftp_pool_in_use_sessions",
		"goftp_acquire_duration_seconds",
	)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	assert.Panics(t, func() { NewPrometheus(reg) }, "duplicate registration must panic")
}

func TestSessionLifecycleCounters(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SessionCreated()
	m.SessionCreated()
	m.SessionDestroyed(goftp.ReasonEvicted)
	m.SessionDestroyed(goftp.ReasonInvalid)
	m.SessionDestroyed(goftp.ReasonInvalid)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsDestroyed.WithLabelValues(goftp.ReasonEvicted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionsDestroyed.WithLabelValues(goftp.ReasonInvalid)))
}

func TestPoolSize(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.PoolSize(3, 5)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.idleSessions))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.inUseSessions))

	m.PoolSize(0, 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.idleSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inUseSessions))
}

func TestAcquireResult(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, "success"},
		{"timeout", fmt.Errorf("%w: deadline", goftp.ErrTimeout), "timeout"},
		{"closed", goftp.ErrPoolClosed, "closed"},
		{"exhausted", &goftp.PoolExhaustedError{Attempts: 3, Err: errors.New("dial")}, "exhausted"},
		{"other", errors.New("boom"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMetrics(t)
			m.Acquired(10*time.Millisecond, tt.err)

			assert.Equal(t, tt.want, acquireResult(tt.err))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.acquisitions.WithLabelValues(tt.want)))
		})
	}
}

func TestOperation(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.Operation("upload", 20*time.Millisecond, nil)
	m.Operation("upload", 30*time.Millisecond, errors.New("broken pipe"))
	m.Operation("download", time.Millisecond, &goftp.OpError{Op: "download", Err: goftp.ErrNotFound})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("upload", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("upload", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("download", "not_found")))

	expected := `
# HELP goftp_operations_total Total number of processor operations, by operation and status
# TYPE goftp_operations_total counter
goftp_operations_total{operation="download",status="not_found"} 1
goftp_operations_total{operation="upload",status="error"} 1
goftp_operations_total{operation="upload",status="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "goftp_operations_total"))
}

func TestPoolReportsExhaustion(t *testing.T) {
	m, _ := newTestMetrics(t)

	refused := func(context.Context, string, ...ftp.DialOption) (goftp.ServerConn, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	factory, err := goftp.NewSessionFactory(goftp.Config{
		Host:       "ftp.test",
		User:       "testuser",
		RetryCount: 2,
		RetryDelay: time.Millisecond,
		Logger:     logr.Discard(),
	}, goftp.WithDialFunc(refused))
	require.NoError(t, err)

	cfg := goftp.DefaultPoolConfig()
	cfg.EvictionInterval = -1
	pool := goftp.NewPool(factory, cfg, goftp.WithPoolMetrics(m))
	defer pool.Close()

	_, err = pool.Acquire(context.Background())
	require.ErrorIs(t, err, goftp.ErrPoolExhausted)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.acquisitions.WithLabelValues("exhausted")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.sessionsCreated))
}
