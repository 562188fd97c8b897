// Package cache provides the short-TTL key/value store that sits in front of
// the product list and detail queries.
//
// The Cache interface is deliberately small (get/set/delete plus prefix
// delete) so that an in-memory map can stand in for tests and single-node
// deployments while Redis serves multi-instance ones. Values are opaque bytes;
// callers own the encoding.
//
// Callers must treat every error as a miss: the cache is an optimization and
// its unavailability never fails a request.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is a TTL-bound key/value store.
//
// Implementations must be safe for concurrent use. Concurrent Sets to the same
// key resolve last-write-wins.
type Cache interface {
	// Get returns the value stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key for ttl. A ttl <= 0 is a no-op.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes keys; absent keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// Nop is a Cache that stores nothing. Every Get misses.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) Delete(context.Context, ...string) error { return nil }
func (Nop) DeletePrefix(context.Context, string) error { return nil }
