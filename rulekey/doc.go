// Package rulekey computes content hashes ("rule keys") for targets and
// fetches their artifacts from an artifact cache.
//
// A rule key covers a target's attributes and the rule keys of its
// dependencies, so it changes whenever anything the target transitively
// depends on changes. Key declares the target's node as a preliminary
// dependency and discovers the rule keys of its dependencies once the node
// is known.
package rulekey
