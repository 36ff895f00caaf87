package locker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultLease is how long a Redis lock lives if its holder never releases it.
	DefaultLease = 30 * time.Second
	// DefaultRetryInterval is the polling interval while a Redis key is held elsewhere.
	DefaultRetryInterval = 50 * time.Millisecond
	keyPrefix            = "concierge:lock:"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a Locker shared by every instance connected to the same Redis.
type RedisLocker struct {
	client        redis.UniversalClient
	timeout       time.Duration
	lease         time.Duration
	retryInterval time.Duration
}

// RedisOpts configures a RedisLocker.
type RedisOpts struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
	Lease    time.Duration
}

// NewRedisLocker connects to Redis and verifies the connection with PING.
func NewRedisLocker(ctx context.Context, opts RedisOpts) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	slog.Debug("RedisLocker: connected", "addr", opts.Addr)
	return NewRedisLockerWithClient(client, opts.Timeout, opts.Lease), nil
}

// NewRedisLockerWithClient wraps an existing client.
func NewRedisLockerWithClient(client redis.UniversalClient, timeout, lease time.Duration) *RedisLocker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if lease <= 0 {
		lease = DefaultLease
	}
	return &RedisLocker{client: client, timeout: timeout, lease: lease, retryInterval: DefaultRetryInterval}
}

// Lock polls SET NX PX until it wins the key, the timeout elapses, or ctx is done.
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	redisKey := keyPrefix + key
	deadline := time.Now().Add(r.timeout)

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryInterval):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// release with a fresh context so a cancelled request still frees the key
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err(); err != nil && err != redis.Nil {
				slog.Warn("RedisLocker: release failed, key will expire", "key", redisKey, "error", err)
			}
		})
	}, nil
}

// Close closes the underlying client.
func (r *RedisLocker) Close() error {
	return r.client.Close()
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
