package compute

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/buildgraph/dag"
	apperrors "github.com/kbukum/buildgraph/errors"
	"github.com/kbukum/buildgraph/logger"
)

func newEngine(t *testing.T, comps []Computation, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(logger.NewNop())}, opts...)
	e, err := New(comps, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestEngine_ResolvesPreliminaryDeps(t *testing.T) {
	e := newEngine(t, []Computation{graphComputation(map[string][]string{
		"a": {"b", "c"},
		"b": {"c"},
	})})

	got, err := Compute[string](context.Background(), e, key("a"))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got != "a(b(c))(c)" {
		t.Errorf("got %q", got)
	}
	if e.State(key("c")) != StateFinalized {
		t.Errorf("dependency c state = %s, want finalized", e.State(key("c")))
	}
	if e.State(key("zzz")) != StateUnstarted {
		t.Errorf("unrequested key state = %s, want unstarted", e.State(key("zzz")))
	}
}

func TestEngine_DiscoveredDepsRequeriedUntilStable(t *testing.T) {
	// "list" yields the names of further keys; every round of DiscoverDeps
	// may reveal one more.
	chain := map[string]string{"root": "x", "x": "y", "y": ""}
	var discoverCalls atomic.Int32

	lists := &fakeComputation{
		kind: "list",
		transform: func(_ context.Context, k Key, _ Environment) (any, error) {
			return chain[k.(testKey).name], nil
		},
	}
	nodes := &fakeComputation{
		kind: "node",
		prelim: func(Key) ([]Key, error) {
			return []Key{testKey{kind: "list", name: "root"}}, nil
		},
		discover: func(_ Key, env Environment) ([]Key, error) {
			discoverCalls.Add(1)
			var out []Key
			next := Get[string](env, testKey{kind: "list", name: "root"})
			for next != "" {
				k := testKey{kind: "list", name: next}
				out = append(out, k)
				v, ok := Lookup[string](env, k)
				if !ok {
					break
				}
				next = v
			}
			return out, nil
		},
		transform: func(_ context.Context, _ Key, env Environment) (any, error) {
			return len(env.Keys()), nil
		},
	}

	e := newEngine(t, []Computation{lists, nodes})
	got, err := Compute[int](context.Background(), e, key("n"))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got != 3 {
		t.Errorf("declared deps = %d, want 3 (root, x, y)", got)
	}
	if n := discoverCalls.Load(); n != 3 {
		t.Errorf("DiscoverDeps called %d times, want 3", n)
	}
}

func TestEngine_SingleTransformUnderConcurrentCallers(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	comp := &fakeComputation{
		kind: "node",
		transform: func(context.Context, Key, Environment) (any, error) {
			calls.Add(1)
			<-release
			return "done", nil
		},
	}
	e := newEngine(t, []Computation{comp})

	const callers = 50
	var wg sync.WaitGroup
	results := make([]any, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Compute(context.Background(), key("shared"))
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("transform called %d times, want 1", n)
	}
	for i := range results {
		if errs[i] != nil || results[i] != "done" {
			t.Errorf("caller %d got (%v, %v)", i, results[i], errs[i])
		}
	}
}

func TestEngine_CycleReportsPathFromWaitedKey(t *testing.T) {
	e := newEngine(t, []Computation{graphComputation(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	})})

	_, err := e.Compute(context.Background(), key("a"))
	if err == nil {
		t.Fatal("expected cycle error")
	}
	var cycle *dag.CycleError[Key]
	if !stderrors.As(err, &cycle) {
		t.Fatalf("expected CycleError in chain, got %v", err)
	}
	want := []Key{key("a"), key("b"), key("c")}
	if fmt.Sprint(cycle.Path) != fmt.Sprint(want) {
		t.Errorf("cycle path = %v, want %v", cycle.Path, want)
	}
	if !apperrors.HasCode(err, apperrors.ErrCodeCycle) {
		t.Error("expected CYCLE_DETECTED in chain")
	}
}

func TestEngine_SelfDependency(t *testing.T) {
	e := newEngine(t, []Computation{graphComputation(map[string][]string{"a": {"a"}})})

	_, err := e.Compute(context.Background(), key("a"))
	var cycle *dag.CycleError[Key]
	if !stderrors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if len(cycle.Path) != 1 || cycle.Path[0] != key("a") {
		t.Errorf("cycle path = %v, want [node:a]", cycle.Path)
	}
}

func TestEngine_DependencyFailurePropagates(t *testing.T) {
	root := stderrors.New("boom")
	edges := map[string][]string{"a": {"bad"}, "sibling": {"ok"}}
	comp := graphComputation(edges)
	inner := comp.transform
	comp.transform = func(ctx context.Context, k Key, env Environment) (any, error) {
		if k.(testKey).name == "bad" {
			return nil, root
		}
		return inner(ctx, k, env)
	}
	e := newEngine(t, []Computation{comp})

	_, err := e.Compute(context.Background(), key("a"))
	if !stderrors.Is(err, root) {
		t.Fatalf("expected root cause in chain, got %v", err)
	}
	if apperrors.CodeOf(err) != apperrors.ErrCodeDependencyFailed {
		t.Errorf("code = %s, want DEPENDENCY_FAILED", apperrors.CodeOf(err))
	}

	got, err := e.Compute(context.Background(), key("sibling"))
	if err != nil || got != "sibling(ok)" {
		t.Errorf("sibling got (%v, %v)", got, err)
	}
}

func TestEngine_UndeclaredDependencyIsLoud(t *testing.T) {
	buf := &syncBuffer{}
	log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, "test", buf)

	comp := &fakeComputation{
		kind: "node",
		transform: func(_ context.Context, _ Key, env Environment) (any, error) {
			return Get[string](env, key("never-declared")), nil
		},
	}
	e := newEngine(t, []Computation{comp}, WithLogger(log))

	_, err := e.Compute(context.Background(), key("a"))
	if apperrors.CodeOf(err) != apperrors.ErrCodeUndeclaredDependency {
		t.Fatalf("code = %s, want UNDECLARED_DEPENDENCY (err %v)", apperrors.CodeOf(err), err)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), "undeclared dependency") {
		t.Errorf("expected an error-level log, got %s", buf.String())
	}
}

func TestEngine_PanicBecomesInternalError(t *testing.T) {
	comp := &fakeComputation{
		kind: "node",
		transform: func(context.Context, Key, Environment) (any, error) {
			panic("kaput")
		},
	}
	e := newEngine(t, []Computation{comp})

	_, err := e.Compute(context.Background(), key("a"))
	if apperrors.CodeOf(err) != apperrors.ErrCodeInternal {
		t.Errorf("code = %s, want INTERNAL_ERROR", apperrors.CodeOf(err))
	}
}

func TestEngine_UnknownKind(t *testing.T) {
	e := newEngine(t, nil)
	_, err := e.Compute(context.Background(), testKey{kind: "mystery", name: "x"})
	if apperrors.CodeOf(err) != apperrors.ErrCodeUnknownComputation {
		t.Errorf("code = %s, want UNKNOWN_COMPUTATION", apperrors.CodeOf(err))
	}
}

func TestNew_RejectsDuplicateKinds(t *testing.T) {
	_, err := New([]Computation{&fakeComputation{kind: "x"}, &fakeComputation{kind: "x"}})
	if apperrors.CodeOf(err) != apperrors.ErrCodeInvalidConfig {
		t.Errorf("code = %s, want INVALID_CONFIG", apperrors.CodeOf(err))
	}
}

func TestEngine_CancelledRequesterDoesNotTearResult(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	comp := &fakeComputation{
		kind: "node",
		transform: func(context.Context, Key, Environment) (any, error) {
			calls.Add(1)
			<-release
			return "v", nil
		},
	}
	e := newEngine(t, []Computation{comp})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := e.Compute(ctx, key("a")); !stderrors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(release)
	got, err := e.Compute(context.Background(), key("a"))
	if err != nil || got != "v" {
		t.Fatalf("second request got (%v, %v)", got, err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("transform called %d times, want 1", n)
	}
}

func TestEngine_CloseCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	comp := &fakeComputation{
		kind: "node",
		transform: func(ctx context.Context, _ Key, _ Environment) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	e, err := New([]Computation{comp}, WithLogger(logger.NewNop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := e.Compute(context.Background(), key("a"))
		done <- err
	}()
	<-started
	e.Close()

	if err := <-done; !stderrors.Is(err, context.Canceled) {
		t.Errorf("in-flight result = %v, want context.Canceled", err)
	}
	if _, err := e.Compute(context.Background(), key("b")); !stderrors.Is(err, ErrEngineClosed) {
		t.Errorf("Compute after Close = %v, want ErrEngineClosed", err)
	}
}

func TestEngine_CloseRacingCompute(t *testing.T) {
	for i := 0; i < 200; i++ {
		e, err := New([]Computation{graphComputation(map[string][]string{
			"a": {"b"},
			"b": nil,
		})}, WithLogger(logger.NewNop()))
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		closed := make(chan struct{})
		go func() {
			e.Close()
			close(closed)
		}()
		_, err = e.Compute(context.Background(), key("a"))
		if err != nil && !stderrors.Is(err, ErrEngineClosed) && !stderrors.Is(err, context.Canceled) {
			t.Fatalf("Compute during Close = %v", err)
		}
		<-closed

		if _, err := e.Compute(context.Background(), key("c")); !stderrors.Is(err, ErrEngineClosed) {
			t.Fatalf("Compute after Close = %v, want ErrEngineClosed", err)
		}
	}
}

func TestEngine_ParallelismBoundsCallbacks(t *testing.T) {
	var running, peak atomic.Int32
	comp := &fakeComputation{
		kind: "node",
		transform: func(context.Context, Key, Environment) (any, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		},
	}
	e := newEngine(t, []Computation{comp}, WithParallelism(2))

	var keys []Key
	for i := 0; i < 20; i++ {
		keys = append(keys, key(fmt.Sprint(i)))
	}
	results, err := e.ComputeAll(context.Background(), keys)
	if err != nil {
		t.Fatalf("ComputeAll: %v", err)
	}
	if len(results) != len(keys) {
		t.Errorf("got %d results, want %d", len(results), len(keys))
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrent transforms = %d, want <= 2", p)
	}
}

func TestCompute_TypeMismatch(t *testing.T) {
	e := newEngine(t, []Computation{graphComputation(nil)})
	if _, err := Compute[int](context.Background(), e, key("a")); apperrors.CodeOf(err) != apperrors.ErrCodeInternal {
		t.Errorf("code = %s, want INTERNAL_ERROR", apperrors.CodeOf(err))
	}
}

type typedKey struct{ n int }

func (typedKey) Kind() Kind { return "typed" }

type doubler struct{ NoDeps[typedKey] }

func (doubler) Kind() Kind                                      { return "typed" }
func (doubler) DiscoverPreliminaryDeps(typedKey) ([]Key, error) { return nil, nil }
func (doubler) Transform(_ context.Context, k typedKey, _ Environment) (int, error) {
	return k.n * 2, nil
}

func TestAdapt_TypedComputation(t *testing.T) {
	e := newEngine(t, []Computation{Adapt[typedKey, int](doubler{})})
	got, err := Compute[int](context.Background(), e, typedKey{n: 21})
	if err != nil || got != 42 {
		t.Errorf("got (%v, %v), want 42", got, err)
	}
}
