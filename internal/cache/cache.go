// Package cache provides the TTL caches used for interpreter output and
// entity data. A miss never changes results, only latency.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values with a per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Nop is a cache that never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (Nop) Set(context.Context, string, []byte, time.Duration) {}
