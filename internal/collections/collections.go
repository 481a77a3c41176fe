// Package collections defines the process-wide or shared-store abstractions
// used by the warm pool, the port arbiter, and the deployment index: an
// ordered queue, a set, and a key-value map, each with an in-process and a
// shared (Redis-backed) implementation. Generalizes the
// internal/state/store.go mutex-guarded map idiom and the original's
// InMemorySetCollection / RedisSetCollection split (docker_client.py).
package collections

import "context"

// Set is an atomic membership set. Add reports whether the member was newly
// added (false if it was already present) — this is the "atomic test-and-set"
// the port arbiter relies on.
type Set interface {
	Add(ctx context.Context, member string) (added bool, err error)
	Remove(ctx context.Context, member string) error
	Contains(ctx context.Context, member string) (bool, error)
	Members(ctx context.Context) ([]string, error)
}

// Queue is a FIFO used by the warm pool: Push enqueues, Pop dequeues (ok is
// false on an empty queue), Len reports depth.
type Queue interface {
	Push(ctx context.Context, value string) error
	Pop(ctx context.Context) (value string, ok bool, err error)
	Len(ctx context.Context) (int, error)
}

// KV is a simple string key-value map, used where the deployment index or
// training-instance registry needs a shared backend in multi-worker mode.
type KV interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}
