package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseCache 对任意实现执行相同的行为检查
func exerciseCache(t *testing.T, c Cache) {
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", []byte("value1"), 0))
	val, found, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("value1"), val)

	val, found, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)

	require.NoError(t, c.Set(ctx, "key2", []byte("value2"), 0))
	many, err := c.GetMany(ctx, []string{"key2", "missing", "key1"})
	require.NoError(t, err)
	require.Len(t, many, 3)
	assert.Equal(t, []byte("value2"), many[0])
	assert.Nil(t, many[1])
	assert.Equal(t, []byte("value1"), many[2])

	require.NoError(t, c.Delete(ctx, "key1"))
	_, found, err = c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Clear(ctx))
	_, found, err = c.Get(ctx, "key2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache(t *testing.T) {
	c, err := NewCache(Config{Type: "memory", DefaultTTL: time.Minute, CleanupInterval: time.Minute})
	require.NoError(t, err)
	exerciseCache(t, c)

	t.Run("values are copied", func(t *testing.T) {
		ctx := context.Background()
		value := []byte("abc")
		require.NoError(t, c.Set(ctx, "copy", value, 0))
		value[0] = 'x'

		got, _, err := c.Get(ctx, "copy")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), got)
		got[1] = 'y'

		again, _, err := c.Get(ctx, "copy")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), again)
	})

	t.Run("expiration", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, c.Set(ctx, "short", []byte("v"), 20*time.Millisecond))
		time.Sleep(50 * time.Millisecond)
		_, found, err := c.Get(ctx, "short")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

// TestRedisCache 使用miniredis测试Redis缓存
func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewCache(Config{Type: "redis", RedisAddr: mr.Addr(), KeyPrefix: "test:", DefaultTTL: time.Minute})
	require.NoError(t, err)
	exerciseCache(t, c)

	t.Run("keys are prefixed", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
		got, err := mr.Get("test:k")
		require.NoError(t, err)
		assert.Equal(t, "v", got)
	})

	t.Run("clear keeps foreign keys", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, mr.Set("other:k", "keep"))
		require.NoError(t, c.Set(ctx, "mine", []byte("v"), 0))
		require.NoError(t, c.Clear(ctx))
		assert.True(t, mr.Exists("other:k"))
		assert.False(t, mr.Exists("test:mine"))
	})

	t.Run("ttl", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, c.Set(ctx, "ttl", []byte("v"), time.Second))
		mr.FastForward(2 * time.Second)
		_, found, err := c.Get(ctx, "ttl")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("binary vectors survive", func(t *testing.T) {
		ctx := context.Background()
		vec := []float32{0, -1.5, 3.25}
		require.NoError(t, c.Set(ctx, "vec", EncodeVector(vec), 0))
		raw, found, err := c.Get(ctx, "vec")
		require.NoError(t, err)
		require.True(t, found)
		got, err := DecodeVector(raw)
		require.NoError(t, err)
		assert.Equal(t, vec, got)
	})

	t.Run("unreachable server", func(t *testing.T) {
		_, err := NewCache(Config{Type: "redis", RedisAddr: "127.0.0.1:1"})
		assert.Error(t, err)
	})
}

func TestNewCacheUnknownType(t *testing.T) {
	_, err := NewCache(Config{Type: "memcached"})
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "embed", Key("embed"))
	assert.Equal(t, "embed:model:abc", Key("embed", "model", "abc"))
	assert.Len(t, HashKey("hello"), 64)
	assert.Equal(t, HashKey("hello"), HashKey("hello"))
	assert.NotEqual(t, HashKey("hello"), HashKey("world"))
}

func TestVectorCodec(t *testing.T) {
	vec := []float32{1, 0.5, -2}
	data := EncodeVector(vec)
	assert.Len(t, data, 12)

	got, err := DecodeVector(data)
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = DecodeVector(data[:5])
	assert.ErrorIs(t, err, ErrCorruptVector)
	_, err = DecodeVector(nil)
	assert.ErrorIs(t, err, ErrCorruptVector)
}
