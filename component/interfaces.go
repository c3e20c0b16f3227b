package component

import (
	"context"
	"strings"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health holds health information for a component.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component represents a lifecycle-managed infrastructure component.
type Component interface {
	// Name returns the unique name of the component for registration.
	Name() string

	// Start connects the component.
	Start(ctx context.Context) error

	// Stop releases the component's resources.
	Stop(ctx context.Context) error

	// Health returns the current health status of the component.
	Health(ctx context.Context) Health
}

// HealthChecker is implemented by things that report health without a
// lifecycle of their own.
type HealthChecker interface {
	Health(ctx context.Context) Health
}

// Aggregate folds component health into one status: any unhealthy member
// makes the whole unhealthy, any degraded member degrades it. Member
// messages are kept as "name: message", joined by "; ".
func Aggregate(name string, parts []Health) Health {
	out := Health{Name: name, Status: StatusHealthy}
	var notes []string
	for _, h := range parts {
		if h.Message != "" {
			notes = append(notes, h.Name+": "+h.Message)
		}
		switch h.Status {
		case StatusUnhealthy:
			out.Status = StatusUnhealthy
		case StatusDegraded:
			if out.Status != StatusUnhealthy {
				out.Status = StatusDegraded
			}
		}
	}
	out.Message = strings.Join(notes, "; ")
	return out
}
