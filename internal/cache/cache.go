// Package cache 缓存嵌入向量，避免重复请求嵌入服务
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// ErrCorruptVector 缓存中的向量数据长度不合法
var ErrCorruptVector = errors.New("corrupt cached vector")

// Cache 键值缓存，值为不透明的字节串
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// GetMany 批量读取，结果与keys一一对应，未命中的位置为nil
	GetMany(ctx context.Context, keys []string) ([][]byte, error)
	// Set ttl为0时使用默认过期时间
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Clear 清空本缓存写入的所有键
	Clear(ctx context.Context) error
}

// Factory 缓存工厂函数
type Factory func(config Config) (Cache, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// RegisterCache 注册缓存实现
func RegisterCache(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// NewCache 按类型创建缓存，类型为空时使用内存缓存
func NewCache(config Config) (Cache, error) {
	if config.Type == "" {
		config.Type = "memory"
	}
	registryMu.RLock()
	factory, ok := registry[config.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
	return factory(config)
}

// Config 缓存配置
type Config struct {
	Type            string        // memory 或 redis
	RedisAddr       string        // Redis地址
	RedisPassword   string        // Redis密码
	RedisDB         int           // Redis数据库编号
	KeyPrefix       string        // Redis键前缀，Clear只删除带此前缀的键
	DefaultTTL      time.Duration // 默认过期时间
	CleanupInterval time.Duration // 内存缓存的过期清理间隔
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Type:            "memory",
		KeyPrefix:       "pdfchat:",
		DefaultTTL:      time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// Key 用冒号连接键的各个部分
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// HashKey 对任意长度的文本生成固定长度的键片段
func HashKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EncodeVector 将向量编码为小端float32序列
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector 解码EncodeVector的结果
func DecodeVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptVector, len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
