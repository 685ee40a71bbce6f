package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"medprep/internal/models"
)

// keyTTL outlives the UTC day the key stands for
const keyTTL = 48 * time.Hour

// RedisDayGuard admits one streak update per owner and UTC day across every instance
type RedisDayGuard struct {
	client *redis.Client
}

// NewRedisDayGuard connects to Redis and checks the connection
func NewRedisDayGuard(ctx context.Context, addr, password string, db int) (*RedisDayGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisDayGuard{client: client}, nil
}

// Key returns the guard key for an owner and day
func Key(ownerID string, day time.Time) string {
	return fmt.Sprintf("streak:%s:%s", ownerID, models.DayKey(day))
}

// Acquire sets the owner's key for day if it is not set yet
func (g *RedisDayGuard) Acquire(ctx context.Context, ownerID string, day time.Time) (bool, error) {
	ok, err := g.client.SetNX(ctx, Key(ownerID, day), 1, keyTTL).Result()
	if err != nil {
		return false, fmt.Errorf("error acquiring streak guard: %w", err)
	}
	return ok, nil
}

// Release deletes the owner's key for day so a failed update can be retried
func (g *RedisDayGuard) Release(ctx context.Context, ownerID string, day time.Time) error {
	if err := g.client.Del(ctx, Key(ownerID, day)).Err(); err != nil {
		return fmt.Errorf("error releasing streak guard: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (g *RedisDayGuard) Close() error {
	return g.client.Close()
}
