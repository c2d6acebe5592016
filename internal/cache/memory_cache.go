package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache 进程内缓存，过期项由go-cache定期清理
// 读写都复制字节串，调用方可以安全地修改返回值
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache 创建内存缓存
func NewMemoryCache(config Config) (Cache, error) {
	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cleanup := config.CleanupInterval
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}
	return &MemoryCache{items: gocache.New(ttl, cleanup)}, nil
}

func (m *MemoryCache) lookup(key string) []byte {
	v, ok := m.items.Get(key)
	if !ok {
		return nil
	}
	b, _ := v.([]byte)
	return append([]byte(nil), b...)
}

// Get 读取缓存
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	b := m.lookup(key)
	return b, b != nil, nil
}

// GetMany 批量读取缓存
func (m *MemoryCache) GetMany(_ context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, key := range keys {
		out[i] = m.lookup(key)
	}
	return out, nil
}

// Set 写入缓存
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	m.items.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// Delete 删除缓存项
func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

// Clear 清空缓存
func (m *MemoryCache) Clear(_ context.Context) error {
	m.items.Flush()
	return nil
}

// Len 返回缓存项数量，包括尚未清理的过期项
func (m *MemoryCache) Len() int {
	return m.items.ItemCount()
}

func init() {
	RegisterCache("memory", NewMemoryCache)
}
