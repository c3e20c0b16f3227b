package parser

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sync"

	"go.yaml.in/yaml/v3"

	apperrors "github.com/kbukum/buildgraph/errors"
	"github.com/kbukum/buildgraph/target"
)

// ErrNoBuildFile is the cause of a MANIFEST_ERROR for a package that has no
// build file.
var ErrNoBuildFile = errors.New("parser: no build file")

// Manifest is the decoded build file of one package: rule name to raw
// attributes. A Manifest is shared between computations and must not be
// modified.
type Manifest struct {
	Cell        string
	PackagePath string
	BuildFile   string
	Targets     map[string]map[string]any
}

// Names returns the rule names in the manifest, sorted.
func (m *Manifest) Names() []string {
	return slices.Sorted(maps.Keys(m.Targets))
}

// Rule returns the raw attributes of name.
func (m *Manifest) Rule(name string) (map[string]any, bool) {
	attrs, ok := m.Targets[name]
	return attrs, ok
}

// ManifestSource loads the manifest of one package.
type ManifestSource interface {
	Load(ctx context.Context, key ManifestKey) (*Manifest, error)
}

// MemorySource is a ManifestSource over manifests registered in code.
type MemorySource struct {
	mu        sync.RWMutex
	manifests map[ManifestKey]*Manifest
	loads     map[ManifestKey]int
}

// NewMemorySource creates an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		manifests: make(map[ManifestKey]*Manifest),
		loads:     make(map[ManifestKey]int),
	}
}

// Add registers rule t with attrs. It returns the receiver for chaining.
func (s *MemorySource) Add(t target.BuildTarget, attrs map[string]any) *MemorySource {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ManifestKey{Cell: t.Cell, PackagePath: t.PackagePath()}
	m, ok := s.manifests[key]
	if !ok {
		m = &Manifest{
			Cell:        t.Cell,
			PackagePath: t.PackagePath(),
			BuildFile:   path.Join(t.PackagePath(), DefaultBuildFileName),
			Targets:     make(map[string]map[string]any),
		}
		s.manifests[key] = m
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	m.Targets[t.ShortName] = attrs
	return s
}

// Load implements ManifestSource.
func (s *MemorySource) Load(_ context.Context, key ManifestKey) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads[key]++
	m, ok := s.manifests[key]
	if !ok {
		return nil, apperrors.Manifest(key.PackagePath, ErrNoBuildFile)
	}
	return m, nil
}

// Loads reports how many times the manifest of key was requested.
func (s *MemorySource) Loads(key ManifestKey) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loads[key]
}

// YAMLSource reads one YAML build file per package directory. A build file
// maps rule names to attribute mappings:
//
//	bin:
//	  rule: binary
//	  deps: [":lib", "//base:util"]
//	lib:
//	  rule: library
type YAMLSource struct {
	cells         map[string]string
	buildFileName string
}

// NewYAMLSource creates a source reading cfg.BuildFileName under cfg.Root
// and the directories of cfg.Cells.
func NewYAMLSource(cfg Config) *YAMLSource {
	cfg.ApplyDefaults()
	cells := make(map[string]string, len(cfg.Cells)+1)
	maps.Copy(cells, cfg.Cells)
	cells[""] = cfg.Root
	return &YAMLSource{cells: cells, buildFileName: cfg.BuildFileName}
}

// Load implements ManifestSource.
func (s *YAMLSource) Load(ctx context.Context, key ManifestKey) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, ok := s.cells[key.Cell]
	if !ok {
		return nil, apperrors.Manifest(key.PackagePath, fmt.Errorf("unknown cell %q", key.Cell))
	}

	rel := path.Join(key.PackagePath, s.buildFileName)
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.Manifest(key.PackagePath, fmt.Errorf("%w: %s", ErrNoBuildFile, rel))
		}
		return nil, apperrors.Manifest(key.PackagePath, err)
	}

	var rules map[string]map[string]any
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, apperrors.Manifest(key.PackagePath, fmt.Errorf("parsing %s: %w", rel, err))
	}

	owner := target.New(key.Cell, key.PackagePath, "_")
	targets := make(map[string]map[string]any, len(rules))
	for name, attrs := range rules {
		if _, err := target.ParseRelative(":"+name, owner); err != nil {
			return nil, apperrors.Manifest(key.PackagePath, err)
		}
		if attrs == nil {
			attrs = map[string]any{}
		}
		targets[name] = attrs
	}

	return &Manifest{
		Cell:        key.Cell,
		PackagePath: key.PackagePath,
		BuildFile:   rel,
		Targets:     targets,
	}, nil
}
