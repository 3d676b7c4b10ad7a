package mpesa_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/lipa/internal/mpesa"
)

type countingAuth struct {
	calls atomic.Int32
	ttl   time.Duration
	err   error
}

func (a *countingAuth) Authenticate(context.Context) (mpesa.AccessToken, error) {
	n := a.calls.Add(1)
	if a.err != nil {
		return mpesa.AccessToken{}, a.err
	}

	return mpesa.AccessToken{Value: "tok-" + string(rune('0'+n)), ExpiresIn: a.ttl}, nil
}

func TestMemoryTokenCache(t *testing.T) {
	auth := &countingAuth{ttl: time.Hour}
	cache := mpesa.NewMemoryTokenCache(auth, time.Minute)

	first, err := cache.Token(context.Background())
	require.NoError(t, err)

	second, err := cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), auth.calls.Load())
}

func TestMemoryTokenCache_ExpiredWithinMargin(t *testing.T) {
	auth := &countingAuth{ttl: 30 * time.Second}
	cache := mpesa.NewMemoryTokenCache(auth, time.Minute)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	got, err := cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-2", got)
	assert.Equal(t, int32(2), auth.calls.Load())
}

func TestMemoryTokenCache_AuthError(t *testing.T) {
	auth := &countingAuth{err: &mpesa.AuthError{StatusCode: 401, Message: "Invalid credentials"}}

	_, err := mpesa.NewMemoryTokenCache(auth, time.Minute).Token(context.Background())

	var authErr *mpesa.AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestRedisTokenCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	auth := &countingAuth{ttl: time.Hour}
	cache := mpesa.NewRedisTokenCache(auth, rdb, "174379", time.Minute)

	first, err := cache.Token(context.Background())
	require.NoError(t, err)

	second, err := cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), auth.calls.Load())
	assert.Equal(t, 59*time.Minute, mr.TTL("lipa:mpesa:token:174379"))

	mr.FastForward(time.Hour)

	third, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", third)
}

func TestRedisTokenCache_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	mr.Close()

	auth := &countingAuth{ttl: time.Hour}

	got, err := mpesa.NewRedisTokenCache(auth, rdb, "174379", time.Minute).Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got)
}

func TestRedisTokenCache_AuthError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	auth := &countingAuth{err: errors.New("boom")}

	_, err := mpesa.NewRedisTokenCache(auth, rdb, "174379", time.Minute).Token(context.Background())
	assert.Error(t, err)
	assert.False(t, mr.Exists("lipa:mpesa:token:174379"))
}
