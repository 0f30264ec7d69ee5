package health

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPChecker_Reachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	result := NewTCPChecker(ln.Addr().String()).Check(context.Background())
	assert.True(t, result.Healthy, result.Message)
	assert.Equal(t, CheckTypeTCP, NewTCPChecker("x").Type())
}

func TestTCPChecker_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	result := NewTCPChecker(addr).WithTimeout(200 * time.Millisecond).Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "connection failed")
}

func TestNewTCPCheckerForURL(t *testing.T) {
	tests := []struct {
		endpoint string
		address  string
		wantErr  bool
	}{
		{"https://eu1.collector.example.com", "eu1.collector.example.com:443", false},
		{"http://localhost:8080/a1", "localhost:8080", false},
		{"http://127.0.0.1", "127.0.0.1:80", false},
		{"ftp://host", "", true},
		{"https://", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			c, err := NewTCPCheckerForURL(tt.endpoint)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.address, c.Address)
		})
	}
}

func TestStatusUpdate(t *testing.T) {
	cfg := Config{Retries: 2}
	s := NewStatus()

	s.Update(Result{Healthy: false}, cfg)
	assert.True(t, s.Healthy, "one failure is below the retry threshold")
	s.Update(Result{Healthy: false}, cfg)
	assert.False(t, s.Healthy)
	assert.Equal(t, 2, s.ConsecutiveFailures)

	s.Update(Result{Healthy: true}, cfg)
	assert.True(t, s.Healthy)
	assert.Equal(t, 0, s.ConsecutiveFailures)
}

type countingChecker struct {
	calls   atomic.Int32
	healthy atomic.Bool
}

func (c *countingChecker) Check(ctx context.Context) Result {
	c.calls.Add(1)
	return Result{Healthy: c.healthy.Load(), CheckedAt: time.Now()}
}

func (c *countingChecker) Type() CheckType { return CheckTypeStatic }

func TestMonitorCachesResult(t *testing.T) {
	checker := &countingChecker{}
	checker.healthy.Store(true)
	m := NewMonitor(checker, Config{Interval: time.Minute, Retries: 1})

	for i := 0; i < 5; i++ {
		assert.True(t, m.Connected(context.Background()))
	}
	assert.Equal(t, int32(1), checker.calls.Load())

	checker.healthy.Store(false)
	m.Invalidate()
	assert.False(t, m.Connected(context.Background()))
	assert.Equal(t, int32(2), checker.calls.Load())
	assert.False(t, m.Status().Healthy)
}

func TestStaticChecker(t *testing.T) {
	assert.True(t, Static(true).Check(context.Background()).Healthy)
	assert.False(t, Static(false).Check(context.Background()).Healthy)

	m := NewMonitor(Static(false), DefaultConfig())
	assert.False(t, m.Connected(context.Background()))
}
