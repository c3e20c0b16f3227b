package rulekey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/kbukum/buildgraph/artifactcache"
	"github.com/kbukum/buildgraph/compute"
	apperrors "github.com/kbukum/buildgraph/errors"
	"github.com/kbukum/buildgraph/parser"
)

// Version is mixed into every rule key. Bump it when the hashed document
// changes shape.
const Version = "1"

type depKey struct {
	Target  string                `json:"target"`
	RuleKey artifactcache.RuleKey `json:"rule_key"`
}

type document struct {
	Version    string         `json:"version"`
	Target     string         `json:"target"`
	Attributes map[string]any `json:"attributes"`
	Deps       []depKey       `json:"deps"`
}

type ruleKeyComputation struct{}

func (*ruleKeyComputation) Kind() compute.Kind { return KindRuleKey }

func (*ruleKeyComputation) DiscoverPreliminaryDeps(key Key) ([]compute.Key, error) {
	return []compute.Key{parser.NodeKey(key.Target)}, nil
}

func (*ruleKeyComputation) DiscoverDeps(key Key, env compute.Environment) ([]compute.Key, error) {
	node := compute.Get[*parser.NodeWithDeps](env, parser.NodeKey(key.Target))
	keys := make([]compute.Key, len(node.Deps))
	for i, dep := range node.Deps {
		keys[i] = Key{Target: dep}
	}
	return keys, nil
}

func (*ruleKeyComputation) Transform(_ context.Context, key Key, env compute.Environment) (artifactcache.RuleKey, error) {
	node := compute.Get[*parser.NodeWithDeps](env, parser.NodeKey(key.Target))

	doc := document{
		Version:    Version,
		Target:     key.Target.String(),
		Attributes: canonical(node.Node.Attributes).(map[string]any),
		Deps:       make([]depKey, len(node.Deps)),
	}
	for i, dep := range node.Deps {
		doc.Deps[i] = depKey{
			Target:  dep.String(),
			RuleKey: compute.Get[artifactcache.RuleKey](env, Key{Target: dep}),
		}
	}
	return Hash(doc)
}

// Hash returns the hex sha256 of v's JSON encoding. encoding/json writes
// map keys sorted, so equal values hash equally.
func Hash(v any) (artifactcache.RuleKey, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", apperrors.Internal(fmt.Errorf("encoding rule key input: %w", err))
	}
	sum := sha256.Sum256(data)
	return artifactcache.RuleKey(hex.EncodeToString(sum[:])), nil
}

// canonical rewrites maps with non-string keys, as YAML may produce, into
// string-keyed maps so they can be encoded.
func canonical(v any) any {
	switch t := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = canonicalValue(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = canonicalValue(val)
		}
		return out
	default:
		return map[string]any{"value": canonicalValue(v)}
	}
}

func canonicalValue(v any) any {
	switch t := v.(type) {
	case map[string]any, map[any]any:
		return canonical(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = canonicalValue(item)
		}
		return out
	default:
		return v
	}
}
