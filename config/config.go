package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fyerfyer/pdf-chat/internal/document"
)

// Config 应用程序配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Document  DocumentConfig  `mapstructure:"document"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	VectorDB  VectorDBConfig  `mapstructure:"vectordb"`
	Embed     EmbedConfig     `mapstructure:"embed"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`                                      // 服务器主机
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`           // 服务器端口
	Mode         string        `mapstructure:"mode" validate:"oneof=debug release test"` // gin运行模式
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`                              // 读超时
	WriteTimeout time.Duration `mapstructure:"write_timeout"`                             // 写超时
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"`        // 日志文件路径，为空时只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"` // 单个日志文件最大尺寸
	MaxBackups int    `mapstructure:"max_backups"` // 保留的旧日志文件数量
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DocumentConfig 文档处理配置
type DocumentConfig struct {
	ChunkSize     int    `mapstructure:"chunk_size" validate:"gt=0"`                 // 分块大小
	ChunkOverlap  int    `mapstructure:"chunk_overlap" validate:"gte=0"`             // 分块重叠大小
	Separator     string `mapstructure:"separator"`                                  // 分隔符
	ExtractPolicy string `mapstructure:"extract_policy" validate:"oneof=abort skip"` // 单个文档失败时的处理策略
	MaxUploadMB   int    `mapstructure:"max_upload_mb" validate:"gt=0"`              // 上传大小上限
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	TopK             int  `mapstructure:"top_k" validate:"gt=0"` // 检索的文本块数量
	CondenseQuestion bool `mapstructure:"condense_question"`     // 是否先改写追问
}

// VectorDBConfig 向量索引配置
type VectorDBConfig struct {
	Backend  string `mapstructure:"backend" validate:"oneof=memory faiss"`  // 检索后端
	Distance string `mapstructure:"distance" validate:"oneof=cosine dot l2"` // 距离度量方式
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider          string  `mapstructure:"provider" validate:"required"` // 提供商：gemini, local
	Model             string  `mapstructure:"model"`                        // 模型名称
	APIKey            string  `mapstructure:"api_key"`                      // API密钥
	Endpoint          string  `mapstructure:"endpoint"`                     // API端点
	BatchSize         int     `mapstructure:"batch_size" validate:"gt=0"`   // 批处理大小
	Workers           int     `mapstructure:"workers" validate:"gt=0"`      // 并发批次数
	Dimensions        int     `mapstructure:"dimensions"`                   // 向量维度，仅本地模型使用
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`          // 请求速率上限，0表示不限制
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider    string  `mapstructure:"provider" validate:"required"`         // 提供商
	Model       string  `mapstructure:"model"`                                // 模型名称
	APIKey      string  `mapstructure:"api_key"`                              // API密钥
	Endpoint    string  `mapstructure:"endpoint"`                             // API端点
	MaxTokens   int     `mapstructure:"max_tokens" validate:"gte=0"`          // 最大生成token数量
	Temperature float32 `mapstructure:"temperature" validate:"gte=0,lte=2"` // 采样温度
}

// ProviderConfig 调用外部模型服务的超时与重试配置
type ProviderConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"gt=0"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`                             // 是否启用缓存
	Type     string `mapstructure:"type" validate:"oneof=memory redis"` // 缓存类型：memory 或 redis
	Address  string `mapstructure:"address"`                            // Redis地址
	Password string `mapstructure:"password"`                           // Redis密码
	DB       int    `mapstructure:"db"`                                 // Redis数据库
	TTL      int    `mapstructure:"ttl"`                                // 缓存TTL（秒）
}

// ArchiveConfig 对话归档配置
type ArchiveConfig struct {
	Enable bool   `mapstructure:"enable"` // 是否归档问答
	DSN    string `mapstructure:"dsn"`    // sqlite数据源
}

// WorkerConfig 后台处理配置
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"gt=0"` // 同时处理的文档任务数
}

// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	var config Config

	// .env 文件不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
		log.Printf("Warning: Config file not found at %s, using defaults", configPath)
		dir := filepath.Dir(configPath)
		if err := os.MkdirAll(dir, 0755); err == nil {
			if err := v.WriteConfigAs(configPath); err != nil {
				log.Printf("Warning: Could not write default config to %s: %v", configPath, err)
			}
		}
	} else {
		log.Printf("Using config file: %s", v.ConfigFileUsed())
	}

	// 支持环境变量覆盖
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	expandEnvironmentVariables(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// isNotFound 判断是否为配置文件不存在
// SetConfigFile指定路径时viper返回的是文件系统错误
func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

// expandEnvironmentVariables 展开API密钥中的${VAR}，空密钥使用GOOGLE_API_KEY
func expandEnvironmentVariables(cfg *Config) {
	cfg.Embed.APIKey = expandKey(cfg.Embed.APIKey)
	cfg.LLM.APIKey = expandKey(cfg.LLM.APIKey)
}

func expandKey(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		value = os.Getenv(value[2 : len(value)-1])
	}
	if value == "" {
		value = os.Getenv("GOOGLE_API_KEY")
	}
	return value
}

var validate = validator.New()

// Validate 检查配置项
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := document.NewCharacterSplitter(c.Splitter()); err != nil {
		return err
	}
	if _, err := document.ParseExtractPolicy(c.Document.ExtractPolicy); err != nil {
		return err
	}
	return nil
}

// Splitter 返回分块器配置
func (c *Config) Splitter() document.SplitterConfig {
	return document.SplitterConfig{
		ChunkSize:    c.Document.ChunkSize,
		ChunkOverlap: c.Document.ChunkOverlap,
		Separator:    c.Document.Separator,
	}
}

// Address 返回服务监听地址
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "60s")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)

	// 文档处理默认配置
	v.SetDefault("document.chunk_size", 1000)
	v.SetDefault("document.chunk_overlap", 200)
	v.SetDefault("document.separator", "\n")
	v.SetDefault("document.extract_policy", "abort")
	v.SetDefault("document.max_upload_mb", 32)

	// 检索默认配置
	v.SetDefault("retrieval.top_k", 4)
	v.SetDefault("retrieval.condense_question", false)

	// 向量索引默认配置
	v.SetDefault("vectordb.backend", "memory")
	v.SetDefault("vectordb.distance", "cosine")

	// Embedding默认配置
	v.SetDefault("embed.provider", "gemini")
	v.SetDefault("embed.model", "models/embedding-001")
	v.SetDefault("embed.api_key", "")
	v.SetDefault("embed.endpoint", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("embed.batch_size", 100)
	v.SetDefault("embed.workers", 4)
	v.SetDefault("embed.dimensions", 768)
	v.SetDefault("embed.requests_per_second", 0)

	// LLM默认配置
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.endpoint", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.temperature", 0.7)

	// 重试默认配置
	v.SetDefault("provider.timeout", "30s")
	v.SetDefault("provider.max_attempts", 3)
	v.SetDefault("provider.initial_backoff", "500ms")
	v.SetDefault("provider.max_backoff", "8s")

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 3600) // 1小时

	// 归档默认配置
	v.SetDefault("archive.enable", false)
	v.SetDefault("archive.dsn", "data/pdfchat.db")

	// 后台处理默认配置
	v.SetDefault("worker.concurrency", 2)
}
