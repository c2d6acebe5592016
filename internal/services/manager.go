package services

import (
	"context"
	"sort"
	"sync"

	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/embedding"
	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/fyerfyer/pdf-chat/internal/memory"
	"github.com/fyerfyer/pdf-chat/internal/metrics"
	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Manager 会话管理器
// 创建相互隔离的会话，并在后台工作池中处理文档
type Manager struct {
	embedder   embedding.Client
	llm        llm.Client
	pipeline   *Pipeline
	engineOpts []EngineOption
	workers    int
	logger     *logrus.Logger

	pool    *workerpool.WorkerPool
	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// ManagerOption 会话管理器配置选项
type ManagerOption func(*Manager)

// WithEngineOptions 设置每个会话引擎的选项
func WithEngineOptions(opts ...EngineOption) ManagerOption {
	return func(m *Manager) {
		m.engineOpts = append(m.engineOpts, opts...)
	}
}

// WithWorkers 设置后台处理文档的并发数
func WithWorkers(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithManagerLogger 设置日志记录器
func WithManagerLogger(logger *logrus.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager 创建会话管理器
// embedder用于生成查询向量，pipeline在所有会话间共享
func NewManager(embedder embedding.Client, llmClient llm.Client, pipeline *Pipeline, opts ...ManagerOption) *Manager {
	m := &Manager{
		embedder: embedder,
		llm:      llmClient,
		pipeline: pipeline,
		workers:  2,
		logger:   logrus.StandardLogger(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.pool = workerpool.New(m.workers)
	m.baseCtx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Create 创建新会话
func (m *Manager) Create() (*Session, error) {
	id := uuid.New().String()

	opts := append([]EngineOption{}, m.engineOpts...)
	opts = append(opts, WithSessionID(id), WithEngineLogger(m.logger))
	engine := NewEngine(m.embedder, m.llm, memory.New(), opts...)
	session := NewSession(id, engine, m.pipeline, m.logger)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	m.sessions[id] = session
	metrics.ActiveSessions.Inc()

	m.logger.WithField("session_id", id).Info("Session created")
	return session, nil
}

// Get 获取会话
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete 删除会话并释放其资源
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		metrics.ActiveSessions.Dec()
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	m.logger.WithField("session_id", id).Info("Session deleted")
	return nil
}

// List 返回全部会话的状态，按创建时间排序
func (m *Manager) List() []SessionStatus {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	statuses := make([]SessionStatus, len(sessions))
	for i, s := range sessions {
		statuses[i] = s.Status()
	}
	return statuses
}

// Process 同步处理会话的文档
func (m *Manager) Process(ctx context.Context, id string, sources []document.Source) (*ProcessResult, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return s.Process(ctx, sources)
}

// ProcessAsync 在后台处理会话的文档，通过会话状态查看结果
func (m *Manager) ProcessAsync(id string, sources []document.Source) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrManagerClosed
	}

	m.pool.Submit(func() {
		if _, err := s.Process(m.baseCtx, sources); err != nil {
			m.logger.WithFields(logrus.Fields{
				"session_id": id,
				"error":      err.Error(),
			}).Warn("Background document processing failed")
		}
	})
	return nil
}

// Close 取消后台任务并释放所有会话
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	m.cancel()
	m.pool.StopWait()

	for _, s := range sessions {
		s.Close()
		metrics.ActiveSessions.Dec()
	}
}
