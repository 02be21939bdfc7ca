// Package health provides startup dependency checks for stage binaries:
// each stage verifies its bus, stores and upstream endpoints are reachable
// before joining its consumer group.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
)

// Status constants represent the state of one dependency.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Status is the outcome of a single check.
type Status struct {
	Name    string         `json:"name"`
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func (s Status) Healthy() bool { return s.Status == StatusHealthy }

// Check probes one dependency.
type Check func(ctx context.Context) Status

// TCP verifies that a TCP endpoint accepts connections. addr accepts
// host:port or a redis:// style URL, whose scheme and path are stripped.
func TCP(name, addr string, timeout time.Duration) Check {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return func(ctx context.Context) Status {
		target := hostPort(addr)
		if target == "" {
			return Status{Name: name, Status: StatusUnhealthy,
				Message: "no address configured"}
		}

		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", target)
		if err != nil {
			return Status{Name: name, Status: StatusUnhealthy,
				Message: fmt.Sprintf("cannot reach %s", target),
				Details: map[string]any{"error": err.Error()}}
		}
		conn.Close()
		return Status{Name: name, Status: StatusHealthy,
			Message: fmt.Sprintf("reached %s", target)}
	}
}

// hostPort strips an optional scheme and path from an address.
func hostPort(addr string) string {
	if i := strings.Index(addr, "://"); i >= 0 {
		addr = addr[i+3:]
	}
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		addr = addr[:i]
	}
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		addr = addr[i+1:]
	}
	return addr
}

// Run executes all checks, logs each outcome and reports whether every
// dependency is healthy. Callers decide whether a failure is fatal.
func Run(ctx context.Context, logger *slog.Logger, checks ...Check) bool {
	if logger == nil {
		logger = slog.Default()
	}
	ok := true
	for _, check := range checks {
		status := check(ctx)
		if status.Healthy() {
			logger.Debug("dependency check passed", "dependency", status.Name)
			continue
		}
		ok = false
		logger.Warn("dependency check failed",
			"dependency", status.Name,
			"message", status.Message,
			"details", status.Details)
	}
	return ok
}
