package rulekey

import (
	"github.com/kbukum/buildgraph/artifactcache"
	"github.com/kbukum/buildgraph/compute"
)

// Computations returns the rule key computation and, when cache is not nil,
// the fetch computation writing artifacts under outDir.
func Computations(cache artifactcache.ArtifactCache, outDir string) []compute.Computation {
	comps := []compute.Computation{
		compute.Adapt[Key, artifactcache.RuleKey](&ruleKeyComputation{}),
	}
	if cache != nil {
		comps = append(comps, compute.Adapt[FetchKey, *FetchOutcome](&fetchComputation{cache: cache, outDir: outDir}))
	}
	return comps
}
