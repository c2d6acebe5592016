package vectordb

import (
	"context"
	"errors"
	"fmt"
)

// 常用错误定义
var (
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
	ErrNoChunks         = errors.New("no chunks to index")
)

// Chunk 被索引的文本块
type Chunk struct {
	ID      int    `json:"id"`      // 在文档集合中的序号
	Content string `json:"content"` // 文本内容
	Offset  int    `json:"offset"`  // 在拼接文本中的字节偏移
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	// Cosine 余弦相似度
	Cosine DistanceType = "cosine"
	// DotProduct 点积
	DotProduct DistanceType = "dot"
	// Euclidean 欧几里得距离
	Euclidean DistanceType = "l2"
)

// ParseDistanceType 解析距离类型，空字符串返回余弦
func ParseDistanceType(s string) (DistanceType, error) {
	switch DistanceType(s) {
	case "", Cosine:
		return Cosine, nil
	case DotProduct, Euclidean:
		return DistanceType(s), nil
	default:
		return "", fmt.Errorf("unsupported distance type: %s", s)
	}
}

// SearchResult 搜索结果
type SearchResult struct {
	Chunk    Chunk   `json:"chunk"`    // 命中的文本块
	Score    float32 `json:"score"`    // 相似度得分，越大越相似
	Distance float32 `json:"distance"` // 计算的距离
}

// Embedder 批量生成向量的服务
// 结果与输入一一对应，任何一条失败则整批失败
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// IndexBuildError 构建索引失败
type IndexBuildError struct {
	Chunks int   // 待索引的文本块数量
	Err    error // 底层错误
}

// Error 实现error接口
func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("failed to build index over %d chunks: %v", e.Chunks, e.Err)
}

// Unwrap 返回底层错误
func (e *IndexBuildError) Unwrap() error {
	return e.Err
}

// hit 检索后端返回的候选
type hit struct {
	position int
	distance float32
}

// searcher 检索后端
// 在构建时接收全部向量，之后只读
type searcher interface {
	search(query []float32, k int) ([]hit, error)
	close() error
}

// backendFactory 检索后端工厂函数类型
type backendFactory func(vectors [][]float32, dimension int, distType DistanceType) (searcher, error)

// 注册的检索后端
var backends = map[string]backendFactory{}

// registerBackend 注册检索后端
func registerBackend(name string, factory backendFactory) {
	backends[name] = factory
}

// HasBackend 判断检索后端是否可用
func HasBackend(name string) bool {
	_, ok := backends[name]
	return ok
}
