package parser

import (
	"context"

	"github.com/kbukum/buildgraph/compute"
	apperrors "github.com/kbukum/buildgraph/errors"
)

// Computations returns the manifest, raw node and node-with-deps
// computations reading build files from src.
func Computations(src ManifestSource, cfg Config) []compute.Computation {
	cfg.ApplyDefaults()
	return []compute.Computation{
		compute.Adapt[ManifestKey, *Manifest](&manifestComputation{source: src}),
		compute.Adapt[RawNodeKey, *RawNode](&rawNodeComputation{depAttributes: cfg.DepAttributes}),
		compute.Adapt[NodeWithDepsKey, *NodeWithDeps](&nodeWithDepsComputation{}),
	}
}

type manifestComputation struct {
	compute.NoDeps[ManifestKey]
	source ManifestSource
}

func (*manifestComputation) Kind() compute.Kind { return KindManifest }

func (*manifestComputation) DiscoverPreliminaryDeps(ManifestKey) ([]compute.Key, error) {
	return nil, nil
}

func (c *manifestComputation) Transform(ctx context.Context, key ManifestKey, _ compute.Environment) (*Manifest, error) {
	return c.source.Load(ctx, key)
}

// rawNodeComputation needs the manifest of the target's package before it
// can pick the target's attributes out of it.
type rawNodeComputation struct {
	compute.NoDeps[RawNodeKey]
	depAttributes []string
}

func (*rawNodeComputation) Kind() compute.Kind { return KindRawNode }

func (*rawNodeComputation) DiscoverPreliminaryDeps(key RawNodeKey) ([]compute.Key, error) {
	return []compute.Key{ManifestKeyOf(key.Target)}, nil
}

func (c *rawNodeComputation) Transform(_ context.Context, key RawNodeKey, env compute.Environment) (*RawNode, error) {
	manifest := compute.Get[*Manifest](env, ManifestKeyOf(key.Target))
	attrs, ok := manifest.Rule(key.Target.ShortName)
	if !ok {
		return nil, apperrors.TargetNotFound(key.Target.String(), manifest.BuildFile)
	}
	deps, err := depsOf(key.Target, attrs, c.depAttributes)
	if err != nil {
		return nil, err
	}
	return &RawNode{
		Target:     key.Target,
		BuildFile:  manifest.BuildFile,
		Attributes: attrs,
		Deps:       deps,
	}, nil
}

// nodeWithDepsComputation discovers the raw node of every dependency so that
// a dangling label fails this key instead of surfacing later.
type nodeWithDepsComputation struct{}

func (*nodeWithDepsComputation) Kind() compute.Kind { return KindNodeWithDeps }

func (*nodeWithDepsComputation) DiscoverPreliminaryDeps(key NodeWithDepsKey) ([]compute.Key, error) {
	return []compute.Key{RawNodeKey{Target: key.Target}}, nil
}

func (*nodeWithDepsComputation) DiscoverDeps(key NodeWithDepsKey, env compute.Environment) ([]compute.Key, error) {
	raw := compute.Get[*RawNode](env, RawNodeKey{Target: key.Target})
	keys := make([]compute.Key, len(raw.Deps))
	for i, dep := range raw.Deps {
		keys[i] = RawNodeKey{Target: dep}
	}
	return keys, nil
}

func (*nodeWithDepsComputation) Transform(_ context.Context, key NodeWithDepsKey, env compute.Environment) (*NodeWithDeps, error) {
	raw := compute.Get[*RawNode](env, RawNodeKey{Target: key.Target})
	for _, dep := range raw.Deps {
		compute.Get[*RawNode](env, RawNodeKey{Target: dep})
	}
	return &NodeWithDeps{Node: raw, Deps: raw.Deps}, nil
}
