package parser

import (
	"fmt"

	apperrors "github.com/kbukum/buildgraph/errors"
	"github.com/kbukum/buildgraph/target"
)

// RuleAttribute names the attribute that holds a rule's type.
const RuleAttribute = "rule"

// RawNode is one rule as declared in its build file, with its dependency
// labels resolved to targets.
type RawNode struct {
	Target     target.BuildTarget
	BuildFile  string
	Attributes map[string]any
	// Deps lists the declared dependencies in declaration order, without
	// duplicates.
	Deps []target.BuildTarget
}

// RuleType returns the "rule" attribute, or "" when it is absent.
func (n *RawNode) RuleType() string {
	s, _ := n.Attributes[RuleAttribute].(string)
	return s
}

// NodeWithDeps is a raw node whose dependencies are known to exist.
type NodeWithDeps struct {
	Node *RawNode
	Deps []target.BuildTarget
}

// Target returns the node's target.
func (n *NodeWithDeps) Target() target.BuildTarget { return n.Node.Target }

// depsOf collects the labels held by attrs under each of depAttributes.
func depsOf(owner target.BuildTarget, attrs map[string]any, depAttributes []string) ([]target.BuildTarget, error) {
	var deps []target.BuildTarget
	seen := make(map[target.BuildTarget]struct{})

	add := func(attr string, v any) error {
		label, ok := v.(string)
		if !ok {
			return apperrors.InvalidTarget(fmt.Sprint(v), fmt.Sprintf("attribute %q of %s must hold label strings", attr, owner))
		}
		dep, err := target.ParseRelative(label, owner)
		if err != nil {
			return err
		}
		if _, dup := seen[dep]; !dup {
			seen[dep] = struct{}{}
			deps = append(deps, dep)
		}
		return nil
	}

	for _, attr := range depAttributes {
		switch v := attrs[attr].(type) {
		case nil:
		case []any:
			for _, item := range v {
				if err := add(attr, item); err != nil {
					return nil, err
				}
			}
		case []string:
			for _, item := range v {
				if err := add(attr, item); err != nil {
					return nil, err
				}
			}
		default:
			if err := add(attr, v); err != nil {
				return nil, err
			}
		}
	}
	return deps, nil
}
