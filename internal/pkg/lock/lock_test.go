package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_AlwaysAcquires(t *testing.T) {
	var l Locker = Local{}

	for i := 0; i < 2; i++ {
		release, ok, err := l.TryLock(context.Background(), "expire_stale_sessions", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		release()
	}
}

func TestRedis_UnreachableServer(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	l := NewRedis(rdb, "presence:lock:")
	release, ok, err := l.TryLock(context.Background(), "expire_stale_sessions", time.Minute)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "presence:lock:expire_stale_sessions")
	assert.False(t, ok)
	assert.Nil(t, release)
}
