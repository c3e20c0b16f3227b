package compute

import (
	"testing"

	apperrors "github.com/kbukum/buildgraph/errors"
)

func TestEnvironment_GetAndLookup(t *testing.T) {
	env := newEnvironment("node")
	env.put(key("a"), "alpha")
	env.put(key("b"), 2)
	env.put(key("a"), "alpha")

	if got := Get[string](env, key("a")); got != "alpha" {
		t.Errorf("Get(a) = %q", got)
	}
	if _, ok := Lookup[string](env, key("b")); ok {
		t.Error("Lookup with the wrong type should report false")
	}
	if _, ok := Lookup[int](env, key("missing")); ok {
		t.Error("Lookup of an undeclared key should report false")
	}
	if keys := env.Keys(); len(keys) != 2 || keys[0] != key("a") || keys[1] != key("b") {
		t.Errorf("Keys() = %v, want [node:a node:b]", keys)
	}
}

func TestGet_UndeclaredPanicsWithCode(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok {
			t.Fatalf("expected an error panic, got %v", r)
		}
		if apperrors.CodeOf(err) != apperrors.ErrCodeUndeclaredDependency {
			t.Errorf("code = %s, want UNDECLARED_DEPENDENCY", apperrors.CodeOf(err))
		}
	}()
	Get[string](newEnvironment("node"), key("nope"))
}

func TestMapEnvironment(t *testing.T) {
	env := MapEnvironment{key("a"): 1}
	if Get[int](env, key("a")) != 1 {
		t.Error("MapEnvironment should serve declared values")
	}
	if len(env.Keys()) != 1 {
		t.Errorf("Keys() = %v", env.Keys())
	}
}
