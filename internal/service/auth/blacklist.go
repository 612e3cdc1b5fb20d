package auth

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Blacklist remembers rotated refresh tokens until they expire
type Blacklist interface {
	// Claim blacklists jti and reports whether this call was the first
	// to do so. Only one of several concurrent claims succeeds.
	Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error)
	Contains(ctx context.Context, jti string) (bool, error)
}

const blacklistPrefix = "token:blacklist:"

type redisBlacklist struct {
	client *redis.Client
}

func NewRedisBlacklist(client *redis.Client) Blacklist {
	return &redisBlacklist{client: client}
}

func (b *redisBlacklist) Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	claimed, err := b.client.SetNX(ctx, blacklistPrefix+jti, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to blacklist token: %w", err)
	}
	return claimed, nil
}

func (b *redisBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return n > 0, nil
}

type memoryBlacklist struct {
	cache *gocache.Cache
}

// NewMemoryBlacklist keeps the blacklist in process. Entries are lost on restart.
func NewMemoryBlacklist() Blacklist {
	return &memoryBlacklist{cache: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

func (b *memoryBlacklist) Claim(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	// Add fails when the key is already present
	if err := b.cache.Add(jti, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (b *memoryBlacklist) Contains(_ context.Context, jti string) (bool, error) {
	_, found := b.cache.Get(jti)
	return found, nil
}
