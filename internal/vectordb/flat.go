package vectordb

import (
	"runtime"
	"sync"
)

// parallelThreshold 超过该数量的向量时并行计算距离
const parallelThreshold = 1000

// flatSearcher 内存中的暴力检索
// 对每个向量计算距离，返回全部候选由索引统一排序截断
type flatSearcher struct {
	vectors  [][]float32
	distType DistanceType
	threads  int
}

func newFlatSearcher(vectors [][]float32, _ int, distType DistanceType) (searcher, error) {
	if _, err := ComputeDistance(vectors[0], vectors[0], distType); err != nil {
		return nil, err
	}
	return &flatSearcher{
		vectors:  vectors,
		distType: distType,
		threads:  runtime.NumCPU(),
	}, nil
}

func (s *flatSearcher) search(query []float32, _ int) ([]hit, error) {
	hits := make([]hit, len(s.vectors))

	if len(s.vectors) < parallelThreshold || s.threads <= 1 {
		for i, v := range s.vectors {
			d, err := ComputeDistance(query, v, s.distType)
			if err != nil {
				return nil, err
			}
			hits[i] = hit{position: i, distance: d}
		}
		return hits, nil
	}

	per := (len(s.vectors) + s.threads - 1) / s.threads
	var wg sync.WaitGroup
	var firstErr error
	var once sync.Once

	for start := 0; start < len(s.vectors); start += per {
		end := min(start+per, len(s.vectors))
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				d, err := ComputeDistance(query, s.vectors[i], s.distType)
				if err != nil {
					once.Do(func() { firstErr = err })
					return
				}
				hits[i] = hit{position: i, distance: d}
			}
		}(start, end)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return hits, nil
}

func (s *flatSearcher) close() error {
	return nil
}

func init() {
	registerBackend("memory", newFlatSearcher)
}
