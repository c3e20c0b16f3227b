package parser_test

import (
	"testing"

	"github.com/kbukum/buildgraph/compute"
	"github.com/kbukum/buildgraph/logger"
	"github.com/kbukum/buildgraph/parser"
	"github.com/kbukum/buildgraph/target"
)

func newEngine(t *testing.T, src parser.ManifestSource) *compute.Engine {
	t.Helper()
	engine, err := compute.New(parser.Computations(src, parser.Config{}), compute.WithLogger(logger.NewNop()))
	if err != nil {
		t.Fatalf("compute.New: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func deps(labels ...string) map[string]any {
	out := make([]any, len(labels))
	for i, l := range labels {
		out[i] = l
	}
	return map[string]any{"rule": "library", "deps": out}
}

// sampleSource declares
//
//	//app:bin -> //app:lib, //base:util
//	//app:lib -> //base:util
//	//base:util
func sampleSource() *parser.MemorySource {
	return parser.NewMemorySource().
		Add(target.MustParse("//app:bin"), deps(":lib", "//base:util")).
		Add(target.MustParse("//app:lib"), deps("//base:util")).
		Add(target.MustParse("//base:util"), map[string]any{"rule": "library"})
}
