package mpesa

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenSource hands out a bearer token for the push and query calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context) (AccessToken, error)
}

// MemoryTokenCache keeps one token per process and refreshes it margin before it expires.
type MemoryTokenCache struct {
	auth   Authenticator
	margin time.Duration
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewMemoryTokenCache(auth Authenticator, margin time.Duration) *MemoryTokenCache {
	return &MemoryTokenCache{auth: auth, margin: margin, now: time.Now}
}

func (c *MemoryTokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expires) {
		return c.token, nil
	}

	tok, err := c.auth.Authenticate(ctx)
	if err != nil {
		return "", err
	}

	c.token = tok.Value
	c.expires = c.now().Add(tok.ExpiresIn - c.margin)

	return c.token, nil
}

// RedisTokenCache shares one token across API instances. A Redis failure degrades to a direct
// authentication call rather than failing the payment.
type RedisTokenCache struct {
	auth   Authenticator
	rdb    redis.UniversalClient
	key    string
	margin time.Duration
}

func NewRedisTokenCache(auth Authenticator, rdb redis.UniversalClient, shortCode string, margin time.Duration) *RedisTokenCache {
	return &RedisTokenCache{
		auth:   auth,
		rdb:    rdb,
		key:    "lipa:mpesa:token:" + shortCode,
		margin: margin,
	}
}

func (c *RedisTokenCache) Token(ctx context.Context) (string, error) {
	cached, err := c.rdb.Get(ctx, c.key).Result()
	if err == nil && cached != "" {
		return cached, nil
	}

	if err != nil && !errors.Is(err, redis.Nil) {
		slog.Warn("token cache read failed", "key", c.key, "error", err)
	}

	tok, err := c.auth.Authenticate(ctx)
	if err != nil {
		return "", err
	}

	if ttl := tok.ExpiresIn - c.margin; ttl > 0 {
		if err := c.rdb.Set(ctx, c.key, tok.Value, ttl).Err(); err != nil {
			slog.Warn("token cache write failed", "key", c.key, "error", err)
		}
	}

	return tok.Value, nil
}
