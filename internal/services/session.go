package services

import (
	"context"
	"sync"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/memory"
	"github.com/sirupsen/logrus"
)

// ProcessingState 文档处理状态
type ProcessingState string

const (
	ProcessingIdle    ProcessingState = "idle"
	ProcessingRunning ProcessingState = "processing"
	ProcessingReady   ProcessingState = "ready"
	ProcessingFailed  ProcessingState = "failed"
)

// SessionStatus 会话状态快照
type SessionStatus struct {
	ID         string          `json:"session_id"`
	Engine     string          `json:"engine_state"`
	Processing ProcessingState `json:"processing_state"`
	Error      string          `json:"error,omitempty"`
	Documents  int             `json:"documents"`
	Chunks     int             `json:"chunks"`
	Turns      int             `json:"turns"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Session 一个对话会话
// 独占自己的索引和对话记录
type Session struct {
	ID        string
	CreatedAt time.Time

	engine   *Engine
	memory   *memory.ConversationMemory
	pipeline *Pipeline
	logger   *logrus.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	processing ProcessingState
	lastErr    error
	lastResult *ProcessResult
	updatedAt  time.Time
}

// NewSession 创建会话
func NewSession(id string, engine *Engine, pipeline *Pipeline, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := time.Now()
	return &Session{
		ID:         id,
		CreatedAt:  now,
		engine:     engine,
		memory:     engine.Memory(),
		pipeline:   pipeline,
		logger:     logger,
		processing: ProcessingIdle,
		updatedAt:  now,
	}
}

// Engine 返回会话的问答引擎
func (s *Session) Engine() *Engine {
	return s.engine
}

// Process 处理文档并替换会话索引
// 新的处理请求会取消尚未完成的旧请求；失败时保留原有索引
func (s *Session) Process(ctx context.Context, sources []document.Source) (*ProcessResult, error) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.processing = ProcessingRunning
	s.lastErr = nil
	s.updatedAt = time.Now()
	s.mu.Unlock()
	defer cancel()

	log := s.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"generation": gen,
		"documents":  len(sources),
	})
	log.Info("Processing documents")

	idx, result, err := s.pipeline.Run(runCtx, sources)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		if idx != nil {
			_ = idx.Close()
		}
		log.Info("Discarding superseded processing result")
		return nil, ErrSuperseded
	}

	s.cancel = nil
	s.updatedAt = time.Now()
	if err != nil {
		s.processing = ProcessingFailed
		s.lastErr = err
		return nil, err
	}

	s.engine.SetIndex(idx)
	s.processing = ProcessingReady
	s.lastResult = result
	return result, nil
}

// Ask 向会话提问
func (s *Session) Ask(ctx context.Context, question string) (*Answer, error) {
	ans, err := s.engine.AskWithSources(ctx, question)
	s.mu.Lock()
	s.updatedAt = time.Now()
	s.mu.Unlock()
	return ans, err
}

// History 返回会话的对话记录
func (s *Session) History() []memory.Turn {
	return s.memory.History()
}

// Reset 清空对话记录，索引保持不变
// 进行中的提问先完成，其问答随后被清除
func (s *Session) Reset() {
	s.engine.ResetMemory()
	s.mu.Lock()
	s.updatedAt = time.Now()
	s.mu.Unlock()
	s.logger.WithField("session_id", s.ID).Info("Conversation reset")
}

// Status 返回会话状态
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SessionStatus{
		ID:         s.ID,
		Engine:     s.engine.State().String(),
		Processing: s.processing,
		Turns:      s.memory.Len(),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.updatedAt,
	}
	if s.lastErr != nil {
		status.Error = s.lastErr.Error()
	}
	if s.lastResult != nil {
		status.Documents = s.lastResult.Documents
	}
	if idx := s.engine.Index(); idx != nil {
		status.Chunks = idx.Len()
	}
	return status
}

// Close 取消进行中的处理并释放索引
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.mu.Unlock()

	s.engine.Close()
}
