package llm

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Client 大模型客户端接口
type Client interface {
	// Generate 根据提示词和对话历史生成回答
	// history按时间顺序排列，prompt作为最后一条用户消息发送
	Generate(ctx context.Context, prompt string, history []Message, options ...GenerateOption) (*Response, error)

	// Name 返回模型名称
	Name() string
}

// Params 单次生成的采样参数，零值表示使用服务端默认值
type Params struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
	TopK        int
}

// GenerateOption 调整单次生成的参数
type GenerateOption func(*Params)

// WithGenerateMaxTokens 覆盖本次生成的最大Token数
func WithGenerateMaxTokens(tokens int) GenerateOption {
	return func(p *Params) { p.MaxTokens = tokens }
}

// WithGenerateTemperature 覆盖本次生成的采样温度
func WithGenerateTemperature(temp float32) GenerateOption {
	return func(p *Params) { p.Temperature = temp }
}

// WithGenerateTopP 覆盖本次生成的核采样阈值
func WithGenerateTopP(topP float32) GenerateOption {
	return func(p *Params) { p.TopP = topP }
}

// WithGenerateTopK 覆盖本次生成的候选集大小
func WithGenerateTopK(topK int) GenerateOption {
	return func(p *Params) { p.TopK = topK }
}

// With 在当前参数上应用覆盖项，返回新的参数
func (p Params) With(options ...GenerateOption) Params {
	for _, opt := range options {
		opt(&p)
	}
	return p
}

// Config 大模型客户端配置
type Config struct {
	APIKey     string        // API密钥
	BaseURL    string        // API基础URL
	Model      string        // 模型名称
	Timeout    time.Duration // HTTP客户端超时
	HTTPClient *http.Client  // 自定义HTTP客户端
	Defaults   Params        // 默认采样参数
}

// Option 客户端配置选项
type Option func(*Config)

// WithAPIKey 设置API密钥
func WithAPIKey(apiKey string) Option {
	return func(c *Config) { c.APIKey = apiKey }
}

// WithBaseURL 设置API基础URL
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithModel 设置模型名称
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithTimeout 设置HTTP客户端超时
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

// WithHTTPClient 设置自定义HTTP客户端
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.HTTPClient = client }
}

// WithMaxTokens 设置默认最大生成Token数
func WithMaxTokens(tokens int) Option {
	return func(c *Config) { c.Defaults.MaxTokens = tokens }
}

// WithTemperature 设置默认采样温度
func WithTemperature(temp float32) Option {
	return func(c *Config) { c.Defaults.Temperature = temp }
}

// WithTopP 设置默认核采样阈值
func WithTopP(topP float32) Option {
	return func(c *Config) { c.Defaults.TopP = topP }
}

// NewConfig 在默认配置上应用选项
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Model:   ModelGeminiFlash,
		Timeout: 60 * time.Second,
		Defaults: Params{
			MaxTokens:   2048,
			Temperature: 0.7,
			TopP:        0.95,
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Validate 检查连接远程模型所需的配置
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}
	if c.Model == "" {
		return NewLLMError(ErrCodeInvalidRequest, "model name cannot be empty")
	}
	return nil
}

// client 返回配置的HTTP客户端，未设置时按超时新建
func (c *Config) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
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
		return nil, NewLLMError(ErrCodeInvalidRequest, "llm client type not registered: "+name)
	}
	return factory(opts...)
}
