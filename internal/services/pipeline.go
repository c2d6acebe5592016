package services

import (
	"context"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/metrics"
	"github.com/fyerfyer/pdf-chat/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// ProcessResult 一次文档处理的统计
type ProcessResult struct {
	Documents  int           `json:"documents"`
	Pages      int           `json:"pages"`
	Skipped    []string      `json:"skipped,omitempty"` // 被跳过的文档及原因
	Characters int           `json:"characters"`
	Chunks     int           `json:"chunks"`
	Dimension  int           `json:"dimension"`
	Duration   time.Duration `json:"duration"`
}

// Pipeline 文档处理流水线
// 提取文本、分块、嵌入并构建索引，任何一步失败都不会产生索引
type Pipeline struct {
	extractor *document.Extractor
	splitter  *document.CharacterSplitter
	embedder  vectordb.Embedder
	buildOpts []vectordb.BuildOption
	logger    *logrus.Logger
}

// PipelineOption 流水线配置选项
type PipelineOption func(*Pipeline)

// WithIndexOptions 设置构建索引的选项
func WithIndexOptions(opts ...vectordb.BuildOption) PipelineOption {
	return func(p *Pipeline) {
		p.buildOpts = append(p.buildOpts, opts...)
	}
}

// WithPipelineLogger 设置日志记录器
func WithPipelineLogger(logger *logrus.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline 创建文档处理流水线
func NewPipeline(extractor *document.Extractor, splitter *document.CharacterSplitter, embedder vectordb.Embedder, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run 处理文档并返回新索引
func (p *Pipeline) Run(ctx context.Context, sources []document.Source) (*vectordb.Index, *ProcessResult, error) {
	start := time.Now()

	idx, result, err := p.run(ctx, sources)
	elapsed := time.Since(start)

	if err != nil {
		metrics.ObserveIndexBuild("error", 0, elapsed)
		p.logger.WithFields(logrus.Fields{
			"documents": len(sources),
			"duration":  elapsed.String(),
		}).WithError(err).Warn("Document processing failed")
		return nil, nil, err
	}

	result.Duration = elapsed
	metrics.ObserveIndexBuild("success", result.Chunks, elapsed)
	p.logger.WithFields(logrus.Fields{
		"documents": result.Documents,
		"skipped":   len(result.Skipped),
		"chunks":    result.Chunks,
		"dimension": result.Dimension,
		"duration":  elapsed.String(),
	}).Info("Documents indexed")

	return idx, result, nil
}

func (p *Pipeline) run(ctx context.Context, sources []document.Source) (*vectordb.Index, *ProcessResult, error) {
	extracted, err := p.extractor.ExtractAll(ctx, sources)
	if err != nil {
		return nil, nil, err
	}

	pieces := p.splitter.Split(extracted.Text)
	if len(pieces) == 0 {
		return nil, nil, document.ErrNoText
	}

	chunks := make([]vectordb.Chunk, len(pieces))
	for i, c := range pieces {
		chunks[i] = vectordb.Chunk{ID: c.Index, Content: c.Text, Offset: c.Offset}
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	idx, err := vectordb.Build(ctx, chunks, p.embedder, p.buildOpts...)
	if err != nil {
		return nil, nil, err
	}

	skipped := make([]string, len(extracted.Skipped))
	for i, s := range extracted.Skipped {
		skipped[i] = s.Error()
	}

	return idx, &ProcessResult{
		Documents:  extracted.Documents,
		Pages:      extracted.Pages,
		Skipped:    skipped,
		Characters: len([]rune(extracted.Text)),
		Chunks:     idx.Len(),
		Dimension:  idx.Dimension(),
	}, nil
}
