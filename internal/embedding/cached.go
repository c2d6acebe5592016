package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/cache"
	"github.com/sirupsen/logrus"
)

// CachedClient 带缓存的嵌入客户端
// 以模型、任务和文本哈希为键；缓存读写失败只记录日志，不影响调用结果
type CachedClient struct {
	client Client
	cache  cache.Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedClient 创建带缓存的嵌入客户端
func NewCachedClient(client Client, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *CachedClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CachedClient{
		client: client,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// Name 返回底层模型名称
func (c *CachedClient) Name() string {
	return c.client.Name()
}

func (c *CachedClient) key(task, text string) string {
	return cache.Key("embed", c.client.Name(), task, cache.HashKey(text))
}

func (c *CachedClient) decode(raw []byte) ([]float32, bool) {
	if raw == nil {
		return nil, false
	}
	vec, err := cache.DecodeVector(raw)
	if err != nil {
		c.logger.WithError(err).Warn("Discarding corrupt cached embedding")
		return nil, false
	}
	return vec, true
}

func (c *CachedClient) lookup(ctx context.Context, key string) ([]float32, bool) {
	raw, _, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).Warn("Embedding cache read failed")
		return nil, false
	}
	return c.decode(raw)
}

func (c *CachedClient) store(ctx context.Context, key string, vec []float32) {
	if err := c.cache.Set(ctx, key, cache.EncodeVector(vec), c.ttl); err != nil {
		c.logger.WithError(err).Warn("Embedding cache write failed")
	}
}

// Embed 生成查询向量，命中缓存时不调用模型
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(taskRetrievalQuery, text)
	if vec, ok := c.lookup(ctx, key); ok {
		return vec, nil
	}

	vec, err := c.client.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, vec)
	return vec, nil
}

// EmbedBatch 只为未命中的文本调用模型
func (c *CachedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		keys[i] = c.key(taskRetrievalDocument, text)
	}
	cached, err := c.cache.GetMany(ctx, keys)
	if err != nil {
		c.logger.WithError(err).Warn("Embedding cache read failed")
		cached = make([][]byte, len(texts))
	}

	for i, text := range texts {
		if vec, ok := c.decode(cached[i]); ok {
			result[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return result, nil
	}

	vectors, err := c.client.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("expected %d vectors, got %d", len(missTexts), len(vectors)))
	}

	for j, i := range missIdx {
		result[i] = vectors[j]
		c.store(ctx, keys[i], vectors[j])
	}
	return result, nil
}
