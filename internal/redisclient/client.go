package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func productSetKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("products:%s", tenantID)
}

// AddProducts records catalog ids in the tenant's membership set.
func (c *Client) AddProducts(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id.String()
	}
	return c.rdb.SAdd(ctx, productSetKey(tenantID), members...).Err()
}

// KnownProducts checks which of the given product ids the tenant's set
// contains. warm is false when the set is empty (cold cache), in which case
// membership answers carry no signal and the caller must not act on them.
// The database foreign key remains the arbiter either way; this is only a
// pre-filter.
func (c *Client) KnownProducts(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (known map[uuid.UUID]bool, warm bool, err error) {
	key := productSetKey(tenantID)

	card, err := c.rdb.SCard(ctx, key).Result()
	if err != nil {
		return nil, false, err
	}
	if card == 0 {
		return nil, false, nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id.String()
	}
	flags, err := c.rdb.SMIsMember(ctx, key, members...).Result()
	if err != nil {
		return nil, false, err
	}

	known = make(map[uuid.UUID]bool, len(ids))
	for i, id := range ids {
		known[id] = flags[i]
	}
	return known, true, nil
}
