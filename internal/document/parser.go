package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Source 文档来源接口
// 按页序返回文档中的文本
type Source interface {
	// Name 返回文档名称，用于错误和日志
	Name() string

	// Pages 返回按顺序排列的每页文本
	Pages() ([]string, error)
}

// ContentType 文档类型
type ContentType string

const (
	TypePDF       ContentType = "pdf"
	TypePlainText ContentType = "text"
)

// DetectContentType 根据文件扩展名判断文档类型
func DetectContentType(filename string) (ContentType, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return TypePDF, nil
	case ".txt", ".text":
		return TypePlainText, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
}

// NewSource 根据文件名从内存数据创建文档来源
func NewSource(name string, data []byte) (Source, error) {
	ct, err := DetectContentType(name)
	if err != nil {
		return nil, err
	}
	switch ct {
	case TypePDF:
		return NewPDFSource(name, data), nil
	default:
		return NewTextSource(name, string(data)), nil
	}
}

// OpenFile 从本地文件创建文档来源
func OpenFile(path string) (Source, error) {
	if _, err := DetectContentType(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExtractionError{Source: filepath.Base(path), Err: err}
	}
	return NewSource(filepath.Base(path), data)
}

// ExtractPolicy 单个文档失败时的处理策略
type ExtractPolicy string

const (
	// AbortAll 任一文档失败即终止整批提取
	AbortAll ExtractPolicy = "abort"
	// SkipFailed 跳过失败的文档并继续
	SkipFailed ExtractPolicy = "skip"
)

// ParseExtractPolicy 解析策略名称，空字符串返回默认策略
func ParseExtractPolicy(s string) (ExtractPolicy, error) {
	switch ExtractPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", AbortAll:
		return AbortAll, nil
	case SkipFailed:
		return SkipFailed, nil
	default:
		return "", fmt.Errorf("unknown extract policy: %q", s)
	}
}

// ExtractResult 提取结果
type ExtractResult struct {
	Text      string             // 合并后的全文
	Documents int                // 成功提取的文档数量
	Pages     int                // 成功提取的页数
	Skipped   []*ExtractionError // SkipFailed策略下被跳过的文档
}

// Extractor 文本提取器
type Extractor struct {
	policy ExtractPolicy
	logger *logrus.Logger
}

// ExtractorOption 提取器选项
type ExtractorOption func(*Extractor)

// WithPolicy 设置失败处理策略
func WithPolicy(policy ExtractPolicy) ExtractorOption {
	return func(e *Extractor) {
		e.policy = policy
	}
}

// WithExtractorLogger 设置日志记录器
func WithExtractorLogger(logger *logrus.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// NewExtractor 创建文本提取器
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		policy: AbortAll,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract 提取所有文档的文本并按输入顺序拼接
func (e *Extractor) Extract(ctx context.Context, sources []Source) (string, error) {
	res, err := e.ExtractAll(ctx, sources)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// ExtractAll 提取所有文档并返回详细结果
func (e *Extractor) ExtractAll(ctx context.Context, sources []Source) (*ExtractResult, error) {
	if len(sources) == 0 {
		return nil, ErrNoDocuments
	}

	res := &ExtractResult{}
	var text strings.Builder

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pages, err := src.Pages()
		if err != nil {
			var exErr *ExtractionError
			if !errors.As(err, &exErr) {
				exErr = &ExtractionError{Source: src.Name(), Err: err}
			}
			if e.policy != SkipFailed {
				return nil, exErr
			}
			e.logger.WithFields(logrus.Fields{
				"document": src.Name(),
				"error":    exErr.Err,
			}).Warn("Skipping unreadable document")
			res.Skipped = append(res.Skipped, exErr)
			continue
		}

		for _, page := range pages {
			text.WriteString(page)
		}
		res.Documents++
		res.Pages += len(pages)
	}

	res.Text = text.String()
	if strings.TrimSpace(res.Text) == "" {
		if len(res.Skipped) > 0 {
			return nil, fmt.Errorf("%w: %d of %d documents failed", ErrNoText, len(res.Skipped), len(sources))
		}
		return nil, ErrNoText
	}

	e.logger.WithFields(logrus.Fields{
		"documents":  res.Documents,
		"pages":      res.Pages,
		"skipped":    len(res.Skipped),
		"characters": len([]rune(res.Text)),
	}).Debug("Text extracted")

	return res, nil
}
