package vectordb

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// buildOptions 构建索引的选项
type buildOptions struct {
	backend  string
	distance DistanceType
}

// BuildOption 构建选项函数类型
type BuildOption func(*buildOptions)

// WithBackend 设置检索后端，如 "memory" 或 "faiss"
func WithBackend(name string) BuildOption {
	return func(o *buildOptions) {
		o.backend = name
	}
}

// WithDistance 设置距离计算类型
func WithDistance(distType DistanceType) BuildOption {
	return func(o *buildOptions) {
		o.distance = distType
	}
}

// Index 只读的向量索引
// 一次构建完成，重新处理文档时整体替换
type Index struct {
	chunks    []Chunk
	vectors   [][]float32
	dimension int
	distance  DistanceType
	backend   string
	searcher  searcher
}

// Build 为全部文本块生成向量并构建索引
// 任何文本块嵌入失败都会导致整个构建失败
func Build(ctx context.Context, chunks []Chunk, embedder Embedder, opts ...BuildOption) (*Index, error) {
	o := &buildOptions{backend: "memory", distance: Cosine}
	for _, opt := range opts {
		opt(o)
	}

	fail := func(err error) (*Index, error) {
		return nil, &IndexBuildError{Chunks: len(chunks), Err: err}
	}

	if len(chunks) == 0 {
		return fail(ErrNoChunks)
	}
	factory, ok := backends[o.backend]
	if !ok {
		return fail(fmt.Errorf("unsupported index backend: %s", o.backend))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			return fail(fmt.Errorf("chunk %d has no content", c.ID))
		}
		texts[i] = c.Content
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fail(err)
	}
	if len(vectors) != len(chunks) {
		return fail(fmt.Errorf("expected %d vectors, got %d", len(chunks), len(vectors)))
	}

	dimension := len(vectors[0])
	for i, v := range vectors {
		if err := ValidateVector(v, dimension); err != nil {
			return fail(fmt.Errorf("chunk %d: %w", chunks[i].ID, err))
		}
	}

	s, err := factory(vectors, dimension, o.distance)
	if err != nil {
		return fail(err)
	}

	stored := make([]Chunk, len(chunks))
	copy(stored, chunks)

	return &Index{
		chunks:    stored,
		vectors:   vectors,
		dimension: dimension,
		distance:  o.distance,
		backend:   o.backend,
		searcher:  s,
	}, nil
}

// Search 返回与查询向量最相似的k个文本块，最相似的在前
// 相似度相同时按插入顺序排列；k大于文本块数量时返回全部
func (idx *Index) Search(query []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}
	if err := ValidateVector(query, idx.dimension); err != nil {
		return nil, err
	}
	if k > len(idx.chunks) {
		k = len(idx.chunks)
	}

	hits, err := idx.searcher.search(query, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	ranked := make([]rankedHit, 0, len(hits))
	for _, h := range hits {
		if h.position < 0 || h.position >= len(idx.chunks) {
			continue
		}
		ranked = append(ranked, rankedHit{hit: h, score: DistanceToScore(h.distance, idx.distance)})
	}
	sortHits(ranked)
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	results := make([]SearchResult, len(ranked))
	for i, r := range ranked {
		results[i] = SearchResult{
			Chunk:    idx.chunks[r.position],
			Score:    r.score,
			Distance: r.distance,
		}
	}
	return results, nil
}

// rankedHit 带评分的候选
type rankedHit struct {
	hit
	score float32
}

// sortHits 按评分降序排序，评分相同时按插入顺序
func sortHits(hits []rankedHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].position < hits[j].position
	})
}

// Len 返回文本块数量
func (idx *Index) Len() int {
	return len(idx.chunks)
}

// Dimension 返回向量维度
func (idx *Index) Dimension() int {
	return idx.dimension
}

// Backend 返回检索后端名称
func (idx *Index) Backend() string {
	return idx.backend
}

// Chunks 返回全部文本块的副本
func (idx *Index) Chunks() []Chunk {
	out := make([]Chunk, len(idx.chunks))
	copy(out, idx.chunks)
	return out
}

// Snapshot 索引的可序列化表示
type Snapshot struct {
	Chunks    []Chunk     `json:"chunks"`
	Vectors   [][]float32 `json:"vectors"`
	Dimension int         `json:"dimension"`
}

// Snapshot 导出文本块与向量
func (idx *Index) Snapshot() Snapshot {
	vectors := make([][]float32, len(idx.vectors))
	for i, v := range idx.vectors {
		vectors[i] = append([]float32(nil), v...)
	}
	return Snapshot{
		Chunks:    idx.Chunks(),
		Vectors:   vectors,
		Dimension: idx.dimension,
	}
}

// Close 释放检索后端占用的资源
func (idx *Index) Close() error {
	if idx == nil || idx.searcher == nil {
		return nil
	}
	return idx.searcher.close()
}
