package refdata

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long Cached keeps a list.
const DefaultTTL = 10 * time.Minute

// CacheOption configures Cached.
type CacheOption func(*Cached)

// WithTTL sets the entry lifetime. Zero keeps entries forever.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cached) {
		c.ttl = ttl
	}
}

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cached) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) CacheOption {
	return func(c *Cached) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type entry struct {
	options []Option
	expires time.Time
}

// Cached memoises another provider. Concurrent misses for the same key share
// a single upstream call; failed lookups are not cached.
type Cached struct {
	next   Provider
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]entry
}

var _ Provider = (*Cached)(nil)

// NewCached wraps next.
func NewCached(next Provider, options ...CacheOption) *Cached {
	c := &Cached{
		next:    next,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  zap.NewNop(),
		entries: make(map[string]entry),
	}
	for _, opt := range options {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// List serves from cache or loads from the wrapped provider.
func (c *Cached) List(ctx context.Context, source, parentKey string) ([]Option, error) {
	key := source + "\x00" + parentKey

	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && (c.ttl <= 0 || c.now().Before(cached.expires)) {
		return append([]Option(nil), cached.options...), nil
	}

	// the shared load outlives any single caller; each caller still stops
	// waiting when its own ctx ends
	load := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		options, err := c.next.List(load, source, parentKey)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = entry{options: options, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return options, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	value, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		c.logger.Warn("reference data lookup failed",
			zap.String("source", source),
			zap.String("parent", parentKey),
			zap.Error(err),
		)
		return nil, err
	}
	c.logger.Debug("reference data loaded",
		zap.String("source", source),
		zap.String("parent", parentKey),
		zap.Bool("shared", shared),
	)
	return append([]Option(nil), value.([]Option)...), nil
}

// Invalidate drops every cached list.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}
