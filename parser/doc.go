// Package parser turns build files into target nodes through a chain of
// engine computations:
//
//	ManifestKey     -> *Manifest      (one build file, loaded once per package)
//	RawNodeKey      -> *RawNode       (preliminary dep: the package manifest)
//	NodeWithDepsKey -> *NodeWithDeps  (preliminary dep: the raw node;
//	                                   discovered deps: the raw node of every dep)
//
// GraphBuilder walks the resulting nodes with dag.Traversal to produce a
// TargetGraph in post-order.
//
//	engine, _ := compute.New(parser.Computations(src, cfg))
//	graph, err := parser.NewGraphBuilder(engine, log).Build(ctx, roots)
package parser
