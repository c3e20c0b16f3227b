package rulekey

import (
	"github.com/kbukum/buildgraph/compute"
	"github.com/kbukum/buildgraph/target"
)

// Computation kinds registered by this package.
const (
	KindRuleKey compute.Kind = "rule_key"
	KindFetch   compute.Kind = "fetch"
)

// Key requests the rule key of Target.
type Key struct {
	Target target.BuildTarget
}

func (Key) Kind() compute.Kind { return KindRuleKey }

func (k Key) String() string { return "rule_key(" + k.Target.String() + ")" }

// FetchKey requests the artifact of Target from the cache.
type FetchKey struct {
	Target target.BuildTarget
}

func (FetchKey) Kind() compute.Kind { return KindFetch }

func (k FetchKey) String() string { return "fetch(" + k.Target.String() + ")" }
