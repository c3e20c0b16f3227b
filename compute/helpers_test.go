package compute

import (
	"bytes"
	"context"
	"sync"
)

type testKey struct {
	kind Kind
	name string
}

func (k testKey) Kind() Kind     { return k.kind }
func (k testKey) String() string { return string(k.kind) + ":" + k.name }

func key(name string) Key { return testKey{kind: "node", name: name} }

type fakeComputation struct {
	kind      Kind
	prelim    func(Key) ([]Key, error)
	discover  func(Key, Environment) ([]Key, error)
	transform func(context.Context, Key, Environment) (any, error)
}

func (f *fakeComputation) Kind() Kind { return f.kind }

func (f *fakeComputation) DiscoverPreliminaryDeps(k Key) ([]Key, error) {
	if f.prelim == nil {
		return nil, nil
	}
	return f.prelim(k)
}

func (f *fakeComputation) DiscoverDeps(k Key, env Environment) ([]Key, error) {
	if f.discover == nil {
		return nil, nil
	}
	return f.discover(k, env)
}

func (f *fakeComputation) Transform(ctx context.Context, k Key, env Environment) (any, error) {
	if f.transform == nil {
		return k.(testKey).name, nil
	}
	return f.transform(ctx, k, env)
}

// graphComputation evaluates "node" keys over a static adjacency list. The
// result of a node is its name followed by the results of its deps.
func graphComputation(edges map[string][]string) *fakeComputation {
	return &fakeComputation{
		kind: "node",
		prelim: func(k Key) ([]Key, error) {
			var deps []Key
			for _, d := range edges[k.(testKey).name] {
				deps = append(deps, key(d))
			}
			return deps, nil
		},
		transform: func(_ context.Context, k Key, env Environment) (any, error) {
			out := k.(testKey).name
			for _, d := range edges[k.(testKey).name] {
				out += "(" + Get[string](env, key(d)) + ")"
			}
			return out, nil
		},
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
