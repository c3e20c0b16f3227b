package component

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kbukum/buildgraph/logger"
)

// mockComponent implements Component for testing.
type mockComponent struct {
	name       string
	startErr   error
	stopErr    error
	health     Health
	startOrder *[]string
	stopOrder  *[]string
}

func (m *mockComponent) Name() string { return m.name }
func (m *mockComponent) Start(ctx context.Context) error {
	if m.startOrder != nil {
		*m.startOrder = append(*m.startOrder, m.name)
	}
	return m.startErr
}
func (m *mockComponent) Stop(ctx context.Context) error {
	if m.stopOrder != nil {
		*m.stopOrder = append(*m.stopOrder, m.name)
	}
	return m.stopErr
}
func (m *mockComponent) Health(ctx context.Context) Health {
	return m.health
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	if r == nil {
		t.Fatal("expected non-nil registry")
	}
}

func TestRegister(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	c := &mockComponent{name: "dircache", health: Health{Name: "dircache", Status: StatusHealthy}}

	if err := r.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	c := &mockComponent{name: "dircache"}
	r.Register(c)

	err := r.Register(&mockComponent{name: "dircache"})
	if err == nil {
		t.Error("expected error for duplicate registration")
	}
}

func TestGet(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	c := &mockComponent{name: "dircache"}
	r.Register(c)

	got := r.Get("dircache")
	if got == nil {
		t.Fatal("expected to get registered component")
	}
	if got.Name() != "dircache" {
		t.Errorf("expected 'dircache', got %q", got.Name())
	}
}

func TestGetNotFound(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	got := r.Get("missing")
	if got != nil {
		t.Error("expected nil for unregistered component")
	}
}

func TestStartAll(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	order := []string{}

	r.Register(&mockComponent{
		name: "dircache", startOrder: &order,
		health: Health{Name: "dircache", Status: StatusHealthy},
	})
	r.Register(&mockComponent{
		name: "rediscache", startOrder: &order,
		health: Health{Name: "rediscache", Status: StatusHealthy},
	})

	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}

	if len(order) != 2 {
		t.Fatalf("expected 2 starts, got %d", len(order))
	}
	if order[0] != "dircache" || order[1] != "rediscache" {
		t.Errorf("expected start order [dircache, rediscache], got %v", order)
	}
}

func TestStartAllError(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	r.Register(&mockComponent{name: "dircache", startErr: fmt.Errorf("connection refused")})

	err := r.StartAll(context.Background())
	if err == nil {
		t.Error("expected error from StartAll")
	}
}

func TestStopAllReverseOrder(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	order := []string{}

	r.Register(&mockComponent{name: "dircache", stopOrder: &order, health: Health{Name: "dircache", Status: StatusHealthy}})
	r.Register(&mockComponent{name: "rediscache", stopOrder: &order, health: Health{Name: "rediscache", Status: StatusHealthy}})
	r.Register(&mockComponent{name: "telemetry", stopOrder: &order, health: Health{Name: "telemetry", Status: StatusHealthy}})

	r.StartAll(context.Background())
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}

	if len(order) != 3 {
		t.Fatalf("expected 3 stops, got %d", len(order))
	}
	if order[0] != "telemetry" || order[1] != "rediscache" || order[2] != "dircache" {
		t.Errorf("expected reverse stop order [telemetry, rediscache, dircache], got %v", order)
	}
}

func TestStopAllSkipsUnstarted(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	order := []string{}
	r.Register(&mockComponent{name: "dircache", stopOrder: &order})

	// Don't start, then stop
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("expected 0 stops for unstarted components, got %d", len(order))
	}
}

func TestStopAllWithErrors(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	r.Register(&mockComponent{
		name: "dircache", stopErr: fmt.Errorf("stop failed"),
		health: Health{Name: "dircache", Status: StatusHealthy},
	})
	r.StartAll(context.Background())

	err := r.StopAll(context.Background())
	if err == nil {
		t.Error("expected error from StopAll")
	}
}

func TestHealthAll(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	r.Register(&mockComponent{
		name:   "dircache",
		health: Health{Name: "dircache", Status: StatusHealthy, Message: "connected"},
	})
	r.Register(&mockComponent{
		name:   "rediscache",
		health: Health{Name: "rediscache", Status: StatusUnhealthy, Message: "timeout"},
	})

	results := r.HealthAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Status != StatusHealthy {
		t.Errorf("expected dircache healthy, got %s", results[0].Status)
	}
	if results[1].Status != StatusUnhealthy {
		t.Errorf("expected cache unhealthy, got %s", results[1].Status)
	}
}

func TestStopAllCombinesErrors(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	errA, errB := errors.New("a failed"), errors.New("b failed")
	_ = r.Register(&mockComponent{name: "a", stopErr: errA})
	_ = r.Register(&mockComponent{name: "b", stopErr: errB})
	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}

	err := r.StopAll(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both stop errors, got %v", err)
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name  string
		parts []Health
		want  HealthStatus
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Health{{Status: StatusHealthy}, {Status: StatusHealthy}}, StatusHealthy},
		{"one degraded", []Health{{Status: StatusHealthy}, {Status: StatusDegraded}}, StatusDegraded},
		{"down wins", []Health{{Status: StatusUnhealthy}, {Status: StatusDegraded}}, StatusUnhealthy},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Aggregate("pool", tc.parts).Status; got != tc.want {
				t.Errorf("Aggregate() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestAggregate_KeepsMemberMessages(t *testing.T) {
	h := Aggregate("pool", []Health{
		{Name: "a", Status: StatusHealthy},
		{Name: "b", Status: StatusUnhealthy, Message: "circuit open"},
		{Name: "c", Status: StatusHealthy, Message: "2 consecutive failures"},
	})
	if h.Name != "pool" || h.Message != "b: circuit open; c: 2 consecutive failures" {
		t.Errorf("unexpected aggregate %+v", h)
	}
}
