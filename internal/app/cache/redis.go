/*
Package cache holds the Redis-backed volatile state of chatgate: the refresh credential
revocation list shared by every instance.
*/
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chatgate/internal/pkg/logx"
)

const (
	dialTimeout  = 3 * time.Second
	readTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
	pingTimeout  = 2 * time.Second
)

// NewClient parses redisURL, pings the server and returns the client.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}

	options.PoolSize = 10
	options.MinIdleConns = 2
	options.DialTimeout = dialTimeout
	options.ReadTimeout = readTimeout
	options.WriteTimeout = writeTimeout

	client := redis.NewClient(options)

	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logx.Info("Redis client connected", "addr", options.Addr, "pool_size", options.PoolSize)
	return client, nil
}

// Ping verifies that the Redis client is healthy.
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}
	return nil
}

// revokedKey is the key marking a refresh credential id revoked.
func revokedKey(jti string) string {
	return "session:revoked_refresh:" + jti
}

// Revocations is a session.Revocations on Redis. Keys expire with the credential they revoke.
type Revocations struct {
	client redis.Cmdable
}

// NewRevocations returns a Revocations on client.
func NewRevocations(client redis.Cmdable) *Revocations {
	return &Revocations{client: client}
}

// Revoke marks jti revoked for ttl. A non-positive ttl means the credential already expired.
func (r *Revocations) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return errors.New("redis: empty jti")
	}
	if ttl <= 0 {
		return nil
	}

	if err := r.client.Set(ctx, revokedKey(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis: revoke refresh: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti is revoked.
func (r *Revocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: check revoked refresh: %w", err)
	}
	return n > 0, nil
}
