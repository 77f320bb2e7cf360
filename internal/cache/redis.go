// Package cache implements the balance-cache invalidation hook over Redis.
// The ledger is the source of truth; everything here is best effort.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vcoin-labs/vcoin/pkg/vcoin"
)

const balanceKeyPrefix = "wallet:"

// Invalidator drops cached wallet views after balance-affecting writes.
type Invalidator struct {
	client *redis.Client
}

// New pings the Redis server and returns an Invalidator.
func New(ctx context.Context, addr string, password string, db int) (*Invalidator, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Invalidator{client: client}, nil
}

// InvalidateBalance deletes the cached wallet view for one user.
func (invalidator *Invalidator) InvalidateBalance(ctx context.Context, userID vcoin.UserID) error {
	return invalidator.client.Del(ctx, balanceKeyPrefix+userID.String()).Err()
}

// Close releases the client connection pool.
func (invalidator *Invalidator) Close() error {
	return invalidator.client.Close()
}
