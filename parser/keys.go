package parser

import (
	"github.com/kbukum/buildgraph/compute"
	"github.com/kbukum/buildgraph/target"
)

// Computation kinds registered by this package.
const (
	KindManifest     compute.Kind = "manifest"
	KindRawNode      compute.Kind = "raw_node"
	KindNodeWithDeps compute.Kind = "node_with_deps"
)

// ManifestKey requests the manifest of one package.
type ManifestKey struct {
	Cell        string
	PackagePath string
}

func (ManifestKey) Kind() compute.Kind { return KindManifest }

func (k ManifestKey) String() string { return "manifest(" + k.Cell + "//" + k.PackagePath + ")" }

// ManifestKeyOf returns the key of the manifest declaring t.
func ManifestKeyOf(t target.BuildTarget) ManifestKey {
	return ManifestKey{Cell: t.Cell, PackagePath: t.PackagePath()}
}

// RawNodeKey requests the raw node of one target.
type RawNodeKey struct {
	Target target.BuildTarget
}

func (RawNodeKey) Kind() compute.Kind { return KindRawNode }

func (k RawNodeKey) String() string { return "raw_node(" + k.Target.String() + ")" }

// NodeWithDepsKey requests a raw node together with its resolved
// dependencies.
type NodeWithDepsKey struct {
	Target      target.BuildTarget
	PackagePath string
}

func (NodeWithDepsKey) Kind() compute.Kind { return KindNodeWithDeps }

func (k NodeWithDepsKey) String() string { return "node_with_deps(" + k.Target.String() + ")" }

// NodeKey returns the NodeWithDepsKey of t.
func NodeKey(t target.BuildTarget) NodeWithDepsKey {
	return NodeWithDepsKey{Target: t, PackagePath: t.PackagePath()}
}
