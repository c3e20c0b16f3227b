package artifactcache

import (
	"context"

	"github.com/kbukum/buildgraph/component"
)

// Component adapts an ArtifactCache to the component lifecycle: Stop closes
// the cache and Health asks the innermost layer that can report it. Once the
// context given to Start is done the cache stops accepting new fetches, so
// an interrupted run drains before the registry stops it.
type Component struct {
	name  string
	cache ArtifactCache
	drain func() bool
}

var _ component.Component = (*Component)(nil)

// AsComponent wraps cache for registration under name.
func AsComponent(name string, cache ArtifactCache) *Component {
	return &Component{name: name, cache: cache}
}

func (c *Component) Name() string { return c.name }

// Cache returns the wrapped cache.
func (c *Component) Cache() ArtifactCache { return c.cache }

func (c *Component) Start(ctx context.Context) error {
	c.drain = context.AfterFunc(ctx, c.cache.StopAcceptingNewFetches)
	return nil
}

func (c *Component) Stop(context.Context) error {
	if c.drain != nil {
		c.drain()
	}
	c.cache.StopAcceptingNewFetches()
	return c.cache.Close()
}

func (c *Component) Health(ctx context.Context) component.Health {
	h := healthOf(ctx, c.cache)
	h.Name = c.name
	return h
}

func healthOf(ctx context.Context, cache ArtifactCache) component.Health {
	for cache != nil {
		if hc, ok := cache.(component.HealthChecker); ok {
			return hc.Health(ctx)
		}
		if bc, ok := cache.(*BlobCache); ok {
			if hc, ok := bc.BlobStore().(component.HealthChecker); ok {
				return hc.Health(ctx)
			}
			break
		}
		d, ok := cache.(Decorator)
		if !ok {
			break
		}
		cache = d.Delegate()
	}
	return component.Health{Status: component.StatusHealthy, Message: "no health check"}
}
