package embedding

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Client 嵌入模型客户端
// 查询和文档使用不同的任务类型，向量不能混用缓存
type Client interface {
	// Embed 生成查询文本的向量
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch 批量生成文档文本的向量
	// 结果与输入一一对应，任何一条失败则整批失败
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name 返回模型名称，同时用作缓存键的一部分
	Name() string
}

// Config 嵌入客户端配置
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration // HTTP客户端超时
	Dimensions        int           // 本地模型的向量维度
	BatchSize         int           // 单次请求的最大文本数
	RequestsPerSecond float64       // 请求速率上限，0表示不限制
	HTTPClient        *http.Client
}

// Option 客户端配置选项
type Option func(*Config)

// WithAPIKey 设置API密钥
func WithAPIKey(apiKey string) Option { return func(c *Config) { c.APIKey = apiKey } }

// WithBaseURL 设置API基础URL
func WithBaseURL(url string) Option { return func(c *Config) { c.BaseURL = url } }

// WithModel 设置模型名称
func WithModel(model string) Option { return func(c *Config) { c.Model = model } }

// WithTimeout 设置HTTP超时
func WithTimeout(timeout time.Duration) Option { return func(c *Config) { c.Timeout = timeout } }

// WithDimensions 设置本地模型的向量维度
func WithDimensions(dimensions int) Option { return func(c *Config) { c.Dimensions = dimensions } }

// WithBatchSize 设置单次请求的文本数上限
func WithBatchSize(size int) Option { return func(c *Config) { c.BatchSize = size } }

// WithRateLimit 设置每秒请求数上限
func WithRateLimit(rps float64) Option { return func(c *Config) { c.RequestsPerSecond = rps } }

// WithHTTPClient 设置自定义HTTP客户端
func WithHTTPClient(client *http.Client) Option { return func(c *Config) { c.HTTPClient = client } }

// NewConfig 在默认配置上应用选项
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
		Model:      "models/embedding-001",
		Timeout:    60 * time.Second,
		Dimensions: 768,
		BatchSize:  100,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// modelPath 返回带models/前缀的模型名
func (c *Config) modelPath() string {
	if strings.HasPrefix(c.Model, "models/") {
		return c.Model
	}
	return "models/" + c.Model
}

// batchSize 返回有效的批大小
func (c *Config) batchSize() int {
	if c.BatchSize <= 0 {
		return 100
	}
	return c.BatchSize
}

func (c *Config) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}

// limiter 未设置速率时返回nil
func (c *Config) limiter() *rate.Limiter {
	if c.RequestsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.RequestsPerSecond), 1)
}

// Factory 客户端工厂函数
type Factory func(opts ...Option) (Client, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// RegisterClient 注册客户端工厂，同名覆盖
func RegisterClient(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Providers 返回已注册的提供商名称
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewClient 根据提供商名称创建客户端
func NewClient(name string, opts ...Option) (Client, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "embedding client type not registered: "+name)
	}
	return factory(opts...)
}
