package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"
)

// TCPChecker probes the collector by opening a TCP connection
type TCPChecker struct {
	// Address is host:port of the collector
	Address string

	// Timeout is the connection timeout (default: 3 seconds)
	Timeout time.Duration
}

// NewTCPChecker creates a new TCP checker
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{
		Address: address,
		Timeout: 3 * time.Second,
	}
}

// NewTCPCheckerForURL derives the dial address from a collector endpoint.
// The port defaults to 443 for https and 80 for http.
func NewTCPCheckerForURL(endpoint string) (*TCPChecker, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("endpoint %q has no host", endpoint)
	}

	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http":
			port = "80"
		case "https", "":
			port = "443"
		default:
			return nil, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
		}
	}
	return NewTCPChecker(net.JoinHostPort(u.Hostname(), port)), nil
}

// Check performs the TCP probe
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{
		Timeout: t.Timeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("connection failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	defer conn.Close()

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("TCP connection to %s successful", t.Address),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the check type
func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}

// WithTimeout sets the connection timeout
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}
