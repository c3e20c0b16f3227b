// Package cachetest provides a scripted ArtifactCache and a recording
// EventBus for tests.
package cachetest

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/buildgraph/artifactcache"
	"github.com/kbukum/buildgraph/target"
)

// Cache is an ArtifactCache whose fetch outcomes follow a script. Fetch n
// returns the n-th scripted result; the last one repeats.
type Cache struct {
	// Delay holds every fetch open for this long before it resolves.
	Delay time.Duration

	mu       sync.Mutex
	script   []artifactcache.CacheResult
	fetches  int
	inflight int
	peak     int
	stores   []artifactcache.ArtifactInfo
	deletes  [][]artifactcache.RuleKey
	readMode artifactcache.ReadMode
	skipping bool
	closed   bool
	contains map[artifactcache.RuleKey]artifactcache.CacheResult
}

// New creates a Cache following script. An empty script always misses.
func New(script ...artifactcache.CacheResult) *Cache {
	return &Cache{script: script, readMode: artifactcache.ReadWrite}
}

// Errors returns a script of ERROR results with the given causes.
func Errors(source string, causes ...error) []artifactcache.CacheResult {
	out := make([]artifactcache.CacheResult, len(causes))
	for i, c := range causes {
		out[i] = artifactcache.ErrorResult(source, c)
	}
	return out
}

// SetReadMode sets the reported read mode.
func (c *Cache) SetReadMode(m artifactcache.ReadMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readMode = m
}

// SetContains scripts the MultiContainsAsync answer.
func (c *Cache) SetContains(m map[artifactcache.RuleKey]artifactcache.CacheResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contains = m
}

func (c *Cache) FetchAsync(ctx context.Context, _ target.BuildTarget, _ artifactcache.RuleKey, _ string) *artifactcache.Future[artifactcache.CacheResult] {
	c.mu.Lock()
	if c.skipping {
		c.mu.Unlock()
		return artifactcache.Resolved(artifactcache.Skipped())
	}
	n := c.fetches
	c.fetches++
	c.inflight++
	if c.inflight > c.peak {
		c.peak = c.inflight
	}
	c.mu.Unlock()

	return artifactcache.Go(ctx, func(ctx context.Context) (artifactcache.CacheResult, error) {
		defer func() {
			c.mu.Lock()
			c.inflight--
			c.mu.Unlock()
		}()
		if c.Delay > 0 {
			select {
			case <-time.After(c.Delay):
			case <-ctx.Done():
				return artifactcache.CacheResult{}, ctx.Err()
			}
		}
		return c.result(n), nil
	})
}

func (c *Cache) result(n int) artifactcache.CacheResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.script) == 0 {
		return artifactcache.Miss("cachetest")
	}
	if n >= len(c.script) {
		n = len(c.script) - 1
	}
	return c.script[n]
}

func (c *Cache) Store(_ context.Context, info artifactcache.ArtifactInfo, _ string) *artifactcache.Future[struct{}] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores = append(c.stores, info)
	return artifactcache.Resolved(struct{}{})
}

func (c *Cache) MultiContainsAsync(_ context.Context, keys []artifactcache.RuleKey) *artifactcache.Future[map[artifactcache.RuleKey]artifactcache.CacheResult] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[artifactcache.RuleKey]artifactcache.CacheResult, len(keys))
	for _, k := range keys {
		if r, ok := c.contains[k]; ok {
			out[k] = r
		} else {
			out[k] = artifactcache.Miss("cachetest")
		}
	}
	return artifactcache.Resolved(out)
}

func (c *Cache) DeleteAsync(_ context.Context, keys []artifactcache.RuleKey) *artifactcache.Future[artifactcache.DeleteResult] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, keys)
	return artifactcache.Resolved(artifactcache.DeleteResult{CacheNames: []string{"cachetest"}, Deleted: len(keys)})
}

func (c *Cache) StopAcceptingNewFetches() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipping = true
}

func (c *Cache) ReadMode() artifactcache.ReadMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readMode
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Fetches returns how many fetches were issued.
func (c *Cache) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

// PeakConcurrentFetches returns the largest number of fetches in flight at
// once.
func (c *Cache) PeakConcurrentFetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

// Stores returns every ArtifactInfo passed to Store.
func (c *Cache) Stores() []artifactcache.ArtifactInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]artifactcache.ArtifactInfo(nil), c.stores...)
}

// Deletes returns the key lists passed to DeleteAsync.
func (c *Cache) Deletes() [][]artifactcache.RuleKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]artifactcache.RuleKey(nil), c.deletes...)
}

// Closed reports whether Close was called.
func (c *Cache) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Skipping reports whether StopAcceptingNewFetches was called.
func (c *Cache) Skipping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skipping
}

var _ artifactcache.ArtifactCache = (*Cache)(nil)

// Bus is an EventBus that records every event.
type Bus struct {
	mu     sync.Mutex
	events []artifactcache.ConsoleEvent
}

func (b *Bus) Post(ev artifactcache.ConsoleEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

// Events returns the recorded events.
func (b *Bus) Events() []artifactcache.ConsoleEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]artifactcache.ConsoleEvent(nil), b.events...)
}

// Warnings returns the recorded warning events.
func (b *Bus) Warnings() []artifactcache.ConsoleEvent {
	var out []artifactcache.ConsoleEvent
	for _, ev := range b.Events() {
		if ev.Severity == artifactcache.SeverityWarning {
			out = append(out, ev)
		}
	}
	return out
}
