package state

import "context"

// Store is a small durable K/V surface; the sqlite implementation is the only
// production one.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
