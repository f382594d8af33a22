// Package idempotency keeps a retried checkout request from placing a second
// order. A key is reserved before the checkout runs and either completed with
// the resulting order id or released when the checkout fails.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/safar/go-storefront/internal/models"
)

// ErrInFlight is returned when the key is reserved by a request that has
// not finished yet.
var ErrInFlight = errors.New("idempotency key is in use by a request in flight")

const pending = "pending"

// Record is what a completed key replays.
type Record struct {
	OrderID int64 `json:"order_id"`
}

type Guard interface {
	// Reserve returns a non-nil Record when key already completed. A nil
	// Record with a nil error means the caller owns the key and must
	// Complete or Release it.
	Reserve(ctx context.Context, key string) (*Record, error)
	Complete(ctx context.Context, key string, rec Record) error
	Release(ctx context.Context, key string) error
}

// Key scopes a client supplied key to the caller, so two customers sending
// the same header value never collide.
func Key(owner models.Owner, key string) string {
	if owner.UserID != nil {
		return "idempotency:checkout:user:" + strconv.FormatInt(*owner.UserID, 10) + ":" + key
	}
	return "idempotency:checkout:session:" + owner.SessionID + ":" + key
}

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Redis struct {
	client redisClient
	ttl    time.Duration
}

func NewRedis(client redisClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (g *Redis) Reserve(ctx context.Context, key string) (*Record, error) {
	ok, err := g.client.SetNX(ctx, key, pending, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	val, err := g.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		ok, err = g.client.SetNX(ctx, key, pending, g.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if ok {
			return nil, nil
		}
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("read idempotency key: %w", err)
	}
	if val == pending {
		return nil, ErrInFlight
	}

	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, nil
}

func (g *Redis) Complete(ctx context.Context, key string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	if err := g.client.Set(ctx, key, data, g.ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

func (g *Redis) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// Nop never replays; every request proceeds.
type Nop struct{}

func (Nop) Reserve(context.Context, string) (*Record, error) { return nil, nil }

func (Nop) Complete(context.Context, string, Record) error { return nil }

func (Nop) Release(context.Context, string) error { return nil }
