//go:build faiss

package vectordb

import (
	"fmt"
	"math"
	"sync"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// faissSearcher 基于Faiss平坦索引的检索后端
// 余弦距离使用归一化向量上的内积
type faissSearcher struct {
	mu       sync.Mutex
	index    faiss.Index
	distType DistanceType
	total    int
}

func newFaissSearcher(vectors [][]float32, dimension int, distType DistanceType) (searcher, error) {
	index, err := createFaissIndex(dimension, distType)
	if err != nil {
		return nil, fmt.Errorf("failed to create Faiss index: %v", err)
	}

	flat := make([]float32, 0, len(vectors)*dimension)
	for _, v := range vectors {
		if distType == Cosine {
			v = normalizeVector(v)
		}
		flat = append(flat, v...)
	}
	if err := index.Add(flat); err != nil {
		index.Delete()
		return nil, fmt.Errorf("failed to add vectors to Faiss index: %v", err)
	}

	return &faissSearcher{
		index:    index,
		distType: distType,
		total:    int(index.Ntotal()),
	}, nil
}

// createFaissIndex 创建Faiss索引
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	var metric int
	switch distType {
	case Cosine, DotProduct:
		metric = faiss.MetricInnerProduct
	default:
		metric = faiss.MetricL2
	}
	return faiss.NewIndexFlat(dimension, metric)
}

func (s *faissSearcher) search(query []float32, k int) ([]hit, error) {
	if s.distType == Cosine {
		query = normalizeVector(query)
	}

	// 多取一些候选，便于在边界处按插入顺序打破平局
	limit := min(k*2, s.total)
	if limit == 0 {
		return []hit{}, nil
	}

	s.mu.Lock()
	distances, labels, err := s.index.Search(query, int64(limit))
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	hits := make([]hit, 0, len(labels))
	for i, label := range labels {
		if label < 0 {
			continue
		}
		d := distances[i]
		switch s.distType {
		case Cosine:
			d = 1 - d
		case Euclidean:
			// Faiss返回平方距离
			d = float32(math.Sqrt(float64(d)))
		}
		hits = append(hits, hit{position: int(label), distance: d})
	}
	return hits, nil
}

func (s *faissSearcher) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		s.index.Delete()
		s.index = nil
	}
	return nil
}

func init() {
	registerBackend("faiss", newFaissSearcher)
}

// normalizeVector 归一化向量（使其长度为1）
func normalizeVector(v []float32) []float32 {
	norm := vectorNorm(v)
	if norm == 0 {
		return v
	}

	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}
