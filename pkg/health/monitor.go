package health

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/metrics"
	"github.com/rs/zerolog"
)

// Monitor answers "can we reach the collector right now" for the flush path.
// Results are cached for Config.Interval so a burst of flushes probes once.
type Monitor struct {
	checker Checker
	config  Config
	now     func() time.Time

	mu     sync.Mutex
	status *Status
	logger zerolog.Logger
}

// NewMonitor creates a monitor around checker
func NewMonitor(checker Checker, config Config) *Monitor {
	if config.Retries <= 0 {
		config.Retries = 1
	}
	return &Monitor{
		checker: checker,
		config:  config,
		now:     time.Now,
		status:  NewStatus(),
		logger:  log.WithComponent("connectivity"),
	}
}

// Connected probes the collector unless a fresh result is cached
func (m *Monitor) Connected(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status.Fresh(m.now(), m.config) {
		return m.status.Healthy
	}

	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}

	result := m.checker.Check(ctx)
	if result.CheckedAt.IsZero() {
		result.CheckedAt = m.now()
	}
	wasHealthy := m.status.Healthy
	m.status.Update(result, m.config)

	if wasHealthy != m.status.Healthy {
		m.logger.Info().
			Bool("connected", m.status.Healthy).
			Str("check", string(m.checker.Type())).
			Str("message", result.Message).
			Msg("Connectivity changed")
	}
	metrics.UpdateComponent(metrics.ComponentNetwork, m.status.Healthy, result.Message)

	return m.status.Healthy
}

// Invalidate forces the next Connected call to probe
func (m *Monitor) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.LastCheck = time.Time{}
}

// Status returns a copy of the current status
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.status
}
