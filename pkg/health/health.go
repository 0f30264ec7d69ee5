package health

import (
	"context"
	"time"
)

// CheckType represents the type of connectivity check
type CheckType string

const (
	CheckTypeTCP    CheckType = "tcp"
	CheckTypeStatic CheckType = "static"
)

// Result represents the outcome of a connectivity check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all connectivity checkers must implement
type Checker interface {
	// Check probes the collector and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of check
	Type() CheckType
}

// Config controls how often the collector is probed
type Config struct {
	// Interval is how long a result is reused before probing again
	Interval time.Duration

	// Timeout bounds a single probe
	Timeout time.Duration

	// Retries is the number of consecutive failures before reporting offline
	Retries int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Second,
		Timeout:  3 * time.Second,
		Retries:  1,
	}
}

// Status tracks consecutive probe results
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheck            time.Time
	LastResult           Result

	// Healthy means the collector is considered reachable
	Healthy bool
}

// NewStatus creates a Status that assumes connectivity until a probe fails
func NewStatus() *Status {
	return &Status{Healthy: true}
}

// Update folds a new result into the status
func (s *Status) Update(result Result, config Config) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return
	}

	s.ConsecutiveFailures++
	s.ConsecutiveSuccesses = 0
	if s.ConsecutiveFailures >= config.Retries {
		s.Healthy = false
	}
}

// Fresh reports whether the last result can still be reused at now
func (s *Status) Fresh(now time.Time, config Config) bool {
	return !s.LastCheck.IsZero() && now.Sub(s.LastCheck) < config.Interval
}

// Static is a Checker with a fixed answer, used when no endpoint is configured
type Static bool

// Check returns the fixed answer
func (s Static) Check(ctx context.Context) Result {
	msg := "connectivity assumed"
	if !s {
		msg = "connectivity disabled"
	}
	return Result{Healthy: bool(s), Message: msg, CheckedAt: time.Now()}
}

// Type returns the check type
func (s Static) Type() CheckType {
	return CheckTypeStatic
}
