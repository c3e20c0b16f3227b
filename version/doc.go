// Package version reports the buildgraph build: release version, VCS
// revision and the versions of the cache client libraries linked in.
//
// Release builds set the version via -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/buildgraph/version.Version=1.0.0" ./cmd/buildgraph
package version
