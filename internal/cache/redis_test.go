package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	c, err := NewRedisClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestIncrWithTTL(t *testing.T) {
	c, mr := newTestCache(t)

	for i := int64(1); i <= 3; i++ {
		count, err := c.IncrWithTTL("rl:test", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}
	assert.Equal(t, time.Minute, mr.TTL("rl:test"))

	mr.FastForward(time.Minute + time.Second)

	count, err := c.IncrWithTTL("rl:test", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPing(t *testing.T) {
	c, _ := newTestCache(t)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestNewRedisClient_RequiresURL(t *testing.T) {
	_, err := NewRedisClient("")
	assert.Error(t, err)
}
