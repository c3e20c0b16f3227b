package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Bulkhead rejection errors.
var (
	ErrBulkheadFull    = errors.New("bulkhead is full")
	ErrBulkheadTimeout = errors.New("bulkhead wait timeout")
)

// BulkheadConfig configures a bulkhead.
type BulkheadConfig struct {
	Name string
	// MaxConcurrent bounds the callers inside the bulkhead at once.
	MaxConcurrent int
	// MaxWait is how long a caller waits for a slot. Zero rejects at once
	// when full; a negative value waits for as long as the context allows.
	MaxWait time.Duration
}

// Bulkhead bounds how many callers run a section concurrently.
type Bulkhead struct {
	name   string
	limit  int64
	wait   time.Duration
	sem    *semaphore.Weighted
	inUse  atomic.Int64
	reject atomic.Int64
}

// NewBulkhead creates a bulkhead. A non-positive MaxConcurrent means 1.
func NewBulkhead(cfg BulkheadConfig) *Bulkhead {
	limit := int64(cfg.MaxConcurrent)
	if limit <= 0 {
		limit = 1
	}
	return &Bulkhead{
		name:  cfg.Name,
		limit: limit,
		wait:  cfg.MaxWait,
		sem:   semaphore.NewWeighted(limit),
	}
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	if b.sem.TryAcquire(1) {
		return nil
	}
	if b.wait == 0 {
		return ErrBulkheadFull
	}
	if b.wait < 0 {
		return b.sem.Acquire(ctx, 1)
	}

	waitCtx, cancel := context.WithTimeout(ctx, b.wait)
	defer cancel()
	if err := b.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBulkheadTimeout
	}
	return nil
}

// Execute runs fn once a slot is free. It returns ErrBulkheadFull,
// ErrBulkheadTimeout or the context error when no slot could be had.
func (b *Bulkhead) Execute(ctx context.Context, fn func() error) error {
	if err := b.acquire(ctx); err != nil {
		b.reject.Add(1)
		return err
	}
	b.inUse.Add(1)
	defer func() {
		b.inUse.Add(-1)
		b.sem.Release(1)
	}()
	return fn()
}

// ExecuteWithResult is Execute for a function returning a value.
func ExecuteWithResult[T any](b *Bulkhead, ctx context.Context, fn func() (T, error)) (T, error) {
	var out T
	err := b.Execute(ctx, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

func (b *Bulkhead) Name() string { return b.name }

// InUse returns the number of callers inside the bulkhead.
func (b *Bulkhead) InUse() int { return int(b.inUse.Load()) }

// Available returns the number of free slots.
func (b *Bulkhead) Available() int { return int(b.limit - b.inUse.Load()) }

// Rejected counts callers turned away since creation.
func (b *Bulkhead) Rejected() int64 { return b.reject.Load() }
