package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fyerfyer/pdf-chat/internal/provider"
	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"
)

// BatchProcessor 批处理器
// 将大量文本分批并行嵌入，每批按调用策略重试
type BatchProcessor struct {
	client     Client          // 嵌入客户端
	batchSize  int             // 每批处理的文本数量
	maxWorkers int             // 最大并行工作线程数
	policy     provider.Policy // 每批的调用策略
	logger     *logrus.Logger
}

// BatchOption 批处理器选项
type BatchOption func(*BatchProcessor)

// WithBatchPolicy 设置每批的超时与重试策略
func WithBatchPolicy(p provider.Policy) BatchOption {
	return func(b *BatchProcessor) {
		b.policy = p
	}
}

// WithBatchLogger 设置日志记录器
func WithBatchLogger(logger *logrus.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int, opts ...BatchOption) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	p := &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
		policy:     provider.DefaultPolicy(),
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name 返回底层模型名称
func (p *BatchProcessor) Name() string {
	return p.client.Name()
}

// EmbedBatch 嵌入全部文本
// 结果顺序与输入一致；任何一批失败都会取消其余批次并整体返回错误
func (p *BatchProcessor) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, NewEmbeddingError(ErrCodeEmptyInput, fmt.Sprintf("text %d: %s", i, ErrMsgEmptyInput))
		}
	}

	batches := splitIntoBatches(texts, p.batchSize)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wp := workerpool.New(min(p.maxWorkers, len(batches)))
	results := make([][][]float32, len(batches))
	var processingErr error
	var errOnce sync.Once

	for i, batch := range batches {
		wp.Submit(func() {
			if runCtx.Err() != nil {
				return
			}

			vectors, err := provider.Do(runCtx, p.client.Name(), p.policy, func(ctx context.Context) ([][]float32, error) {
				return p.client.EmbedBatch(ctx, batch)
			})
			if err == nil && len(vectors) != len(batch) {
				err = NewEmbeddingError(ErrCodeServerError,
					fmt.Sprintf("expected %d vectors, got %d", len(batch), len(vectors)))
			}
			if err != nil {
				errOnce.Do(func() {
					processingErr = fmt.Errorf("batch %d processing error: %w", i, err)
					cancel()
				})
				return
			}
			results[i] = vectors
		})
	}

	wp.StopWait()

	if processingErr != nil {
		return nil, processingErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all := make([][]float32, 0, len(texts))
	for _, vectors := range results {
		all = append(all, vectors...)
	}

	p.logger.WithFields(logrus.Fields{
		"model":   p.client.Name(),
		"texts":   len(texts),
		"batches": len(batches),
	}).Debug("Embedded batch")

	return all, nil
}

// splitIntoBatches 将文本列表分割成多个批次
func splitIntoBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)
	for i := 0; i < len(texts); i += batchSize {
		end := min(i+batchSize, len(texts))
		batches = append(batches, texts[i:end])
	}
	return batches
}
