package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalClient 基于特征哈希的本地嵌入模型
// 不依赖网络，结果确定，适合离线运行和测试
type LocalClient struct {
	dimensions int
}

// NewLocalClient 创建本地嵌入客户端
func NewLocalClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.Dimensions <= 0 {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "dimensions must be positive")
	}
	return &LocalClient{dimensions: cfg.Dimensions}, nil
}

// Name 返回模型名称
func (c *LocalClient) Name() string {
	return "local-hash"
}

// Embed 生成单条文本的向量表示
func (c *LocalClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, NewEmbeddingError(ErrCodeTimeout, err.Error())
	}
	return c.vector(text), nil
}

// EmbedBatch 批量生成向量
func (c *LocalClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		result[i] = vec
	}
	return result, nil
}

// vector 将每个词哈希到固定维度并做L2归一化
func (c *LocalClient) vector(text string) []float32 {
	vec := make([]float32, c.dimensions)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%uint32(c.dimensions)]++
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func init() {
	RegisterClient("local", NewLocalClient)
}
