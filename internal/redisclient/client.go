package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/claim_idempotency.lua
var claimIdempotencyScript string

//go:embed scripts/complete_idempotency.lua
var completeIdempotencyScript string

// pendingValue marks a key whose request has not committed yet
const pendingValue = "pending"

type Client struct {
	rdb            *redis.Client
	ttl            time.Duration
	claimScript    *redis.Script
	completeScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
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

	return &Client{
		rdb:            rdb,
		ttl:            ttl,
		claimScript:    redis.NewScript(claimIdempotencyScript),
		completeScript: redis.NewScript(completeIdempotencyScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:order:%s", key)
}

// Claim atomically reserves an idempotency key for one request.
// If the key is already held, claimed is false and orderID is the order
// created by the earlier request, or zero while that request is still running.
func (c *Client) Claim(ctx context.Context, key string) (orderID int64, claimed bool, err error) {
	result, err := c.claimScript.Run(ctx, c.rdb,
		[]string{idempotencyKey(key)}, pendingValue, c.ttl.Milliseconds()).Slice()
	if err != nil {
		return 0, false, fmt.Errorf("claim idempotency script failed: %w", err)
	}
	if len(result) != 2 {
		return 0, false, fmt.Errorf("unexpected script result length %d", len(result))
	}

	ok, _ := result[0].(int64)
	if ok == 1 {
		return 0, true, nil
	}

	current, _ := result[1].(string)
	if current == pendingValue {
		return 0, false, nil
	}
	orderID, err = strconv.ParseInt(current, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency value %q: %w", current, err)
	}
	return orderID, false, nil
}

// Complete records the order created under a claimed key
func (c *Client) Complete(ctx context.Context, key string, orderID int64) error {
	_, err := c.completeScript.Run(ctx, c.rdb,
		[]string{idempotencyKey(key)}, pendingValue, strconv.FormatInt(orderID, 10), c.ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("complete idempotency script failed: %w", err)
	}
	return nil
}

// Release drops a claim whose request failed, so the caller can retry
func (c *Client) Release(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(key)).Err()
}
