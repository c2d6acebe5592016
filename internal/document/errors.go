package document

import (
	"errors"
	"fmt"
)

// 常用错误定义
var (
	ErrNoDocuments       = errors.New("no documents provided")
	ErrNoText            = errors.New("no text could be extracted from the provided documents")
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// ExtractionError 文档提取错误
// Page为0时表示整个文档无法读取
type ExtractionError struct {
	Source string
	Page   int
	Err    error
}

// Error 实现error接口
func (e *ExtractionError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("failed to extract %s (page %d): %v", e.Source, e.Page, e.Err)
	}
	return fmt.Sprintf("failed to extract %s: %v", e.Source, e.Err)
}

// Unwrap 返回底层错误
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ConfigError 分块参数错误
type ConfigError struct {
	Field   string
	Message string
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid chunk config: %s %s", e.Field, e.Message)
}
