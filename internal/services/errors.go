package services

import (
	"errors"
	"fmt"

	"github.com/fyerfyer/pdf-chat/internal/provider"
)

// 常用错误定义
var (
	ErrEmptyQuestion   = errors.New("question cannot be empty")
	ErrEmptyAnswer     = errors.New("model returned an empty answer")
	ErrSessionNotFound = errors.New("session not found")
	ErrSuperseded      = errors.New("document processing superseded by a newer request")
	ErrManagerClosed   = errors.New("session manager is closed")
)

// NotReadyError 文档尚未处理完成就提问
type NotReadyError struct {
	SessionID string
}

// Error 实现error接口
func (e *NotReadyError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("session %s: documents have not been processed yet", e.SessionID)
	}
	return "documents have not been processed yet"
}

// Stage 问答流程的阶段
type Stage string

const (
	StageCondense Stage = "condense"
	StageEmbed    Stage = "embed"
	StageRetrieve Stage = "retrieve"
	StageGenerate Stage = "generate"
)

// AnswerError 问答过程中的检索或生成失败
type AnswerError struct {
	Stage Stage
	Err   error
}

// Error 实现error接口
func (e *AnswerError) Error() string {
	return fmt.Sprintf("failed to answer question at %s stage: %v", e.Stage, e.Err)
}

// Unwrap 返回底层错误
func (e *AnswerError) Unwrap() error {
	return e.Err
}

// Retryable 底层错误可重试时返回true
func (e *AnswerError) Retryable() bool {
	return provider.IsRetryable(e.Err)
}
