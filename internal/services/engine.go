package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/embedding"
	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/fyerfyer/pdf-chat/internal/memory"
	"github.com/fyerfyer/pdf-chat/internal/metrics"
	"github.com/fyerfyer/pdf-chat/internal/models"
	"github.com/fyerfyer/pdf-chat/internal/provider"
	"github.com/fyerfyer/pdf-chat/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// EngineState 问答引擎状态
type EngineState int

const (
	// StateUninitialized 尚未装载索引
	StateUninitialized EngineState = iota
	// StateReady 可以提问
	StateReady
	// StateAnswering 正在回答一个问题
	StateAnswering
)

// String 返回状态名称
func (s EngineState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateAnswering:
		return "answering"
	default:
		return "uninitialized"
	}
}

// Recorder 保存成功的问答记录
type Recorder interface {
	RecordExchange(ctx context.Context, sessionID, question, answer string, sources []models.Source) error
}

// Answer 一次问答的结果
type Answer struct {
	Question   string                  `json:"question"`
	Standalone string                  `json:"standalone_question,omitempty"` // 改写后的独立问题
	Answer     string                  `json:"answer"`
	Sources    []vectordb.SearchResult `json:"sources"`
}

// Engine 检索增强的多轮问答引擎
// 同一时刻只回答一个问题；失败的提问不会修改对话记录
type Engine struct {
	embedder  embedding.Client
	llm       llm.Client
	prompts   *llm.PromptBuilder
	memory    *memory.ConversationMemory
	policy    provider.Policy
	topK      int
	condense  bool
	recorder  Recorder
	sessionID string
	logger    *logrus.Logger

	askMu   sync.Mutex
	stateMu sync.RWMutex
	index   *vectordb.Index
	state   EngineState
}

// EngineOption 引擎配置选项
type EngineOption func(*Engine)

// WithTopK 设置检索的文本块数量
func WithTopK(k int) EngineOption {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithCondenseQuestion 设置是否先把追问改写为独立问题再检索
func WithCondenseQuestion(enabled bool) EngineOption {
	return func(e *Engine) {
		e.condense = enabled
	}
}

// WithProviderPolicy 设置调用嵌入和大模型服务的超时与重试策略
func WithProviderPolicy(p provider.Policy) EngineOption {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithPromptBuilder 设置提示词构建器
func WithPromptBuilder(b *llm.PromptBuilder) EngineOption {
	return func(e *Engine) {
		if b != nil {
			e.prompts = b
		}
	}
}

// WithRecorder 设置问答记录器
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithSessionID 设置所属会话ID，用于日志和记录
func WithSessionID(id string) EngineOption {
	return func(e *Engine) {
		e.sessionID = id
	}
}

// WithEngineLogger 设置日志记录器
func WithEngineLogger(logger *logrus.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine 创建问答引擎
func NewEngine(embedder embedding.Client, llmClient llm.Client, mem *memory.ConversationMemory, opts ...EngineOption) *Engine {
	if mem == nil {
		mem = memory.New()
	}
	e := &Engine{
		embedder: embedder,
		llm:      llmClient,
		prompts:  llm.NewPromptBuilder(),
		memory:   mem,
		policy:   provider.DefaultPolicy(),
		topK:     4,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State 返回当前状态
func (e *Engine) State() EngineState {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

// Index 返回当前索引，未装载时为nil
func (e *Engine) Index() *vectordb.Index {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.index
}

// SetIndex 装载新索引并释放旧索引
// 等待进行中的提问结束后才替换
func (e *Engine) SetIndex(idx *vectordb.Index) {
	if idx == nil {
		return
	}

	e.askMu.Lock()
	defer e.askMu.Unlock()

	e.stateMu.Lock()
	old := e.index
	e.index = idx
	if e.state == StateUninitialized {
		e.state = StateReady
	}
	e.stateMu.Unlock()

	if old != nil && old != idx {
		if err := old.Close(); err != nil {
			e.logger.WithError(err).Warn("Failed to release replaced index")
		}
	}
}

// Close 卸载并释放索引，之后提问返回NotReadyError
// 不等待进行中的提问，该提问在检索阶段失败
func (e *Engine) Close() {
	e.stateMu.Lock()
	idx := e.index
	e.index = nil
	e.state = StateUninitialized
	e.stateMu.Unlock()

	if idx != nil {
		if err := idx.Close(); err != nil {
			e.logger.WithError(err).Warn("Failed to release index")
		}
	}
}

// ResetMemory 清空对话记录，与提问互斥
func (e *Engine) ResetMemory() {
	e.askMu.Lock()
	defer e.askMu.Unlock()
	e.memory.Reset()
}

// Memory 返回引擎使用的对话记录
func (e *Engine) Memory() *memory.ConversationMemory {
	return e.memory
}

// Ask 回答问题并返回答案文本
func (e *Engine) Ask(ctx context.Context, question string) (string, error) {
	ans, err := e.AskWithSources(ctx, question)
	if err != nil {
		return "", err
	}
	return ans.Answer, nil
}

// AskWithSources 回答问题并返回引用的文本块
func (e *Engine) AskWithSources(ctx context.Context, question string) (*Answer, error) {
	start := time.Now()
	ans, err := e.ask(ctx, question)

	result := "success"
	switch err.(type) {
	case nil:
	case *NotReadyError:
		result = "not_ready"
	default:
		result = "error"
	}
	metrics.ObserveAsk(result, time.Since(start))

	return ans, err
}

func (e *Engine) ask(ctx context.Context, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	e.askMu.Lock()
	defer e.askMu.Unlock()

	e.stateMu.Lock()
	if e.index == nil {
		e.stateMu.Unlock()
		return nil, &NotReadyError{SessionID: e.sessionID}
	}
	e.state = StateAnswering
	e.stateMu.Unlock()

	defer func() {
		e.stateMu.Lock()
		if e.index != nil {
			e.state = StateReady
		}
		e.stateMu.Unlock()
	}()

	log := e.logger.WithField("session_id", e.sessionID)
	history := toMessages(e.memory.History())

	query := question
	standalone := ""
	if e.condense && len(history) > 0 {
		resp, err := provider.Do(ctx, e.llm.Name(), e.policy, func(ctx context.Context) (*llm.Response, error) {
			return e.llm.Generate(ctx, e.prompts.Condense(question, history), nil)
		})
		if err != nil {
			return nil, &AnswerError{Stage: StageCondense, Err: err}
		}
		if rewritten := strings.TrimSpace(resp.Text); rewritten != "" {
			query = rewritten
			standalone = rewritten
		}
		log.WithField("standalone_question", standalone).Debug("Condensed follow-up question")
	}

	vec, err := provider.Do(ctx, e.embedder.Name(), e.policy, func(ctx context.Context) ([]float32, error) {
		return e.embedder.Embed(ctx, query)
	})
	if err != nil {
		return nil, &AnswerError{Stage: StageEmbed, Err: err}
	}

	results, err := e.search(vec)
	if err != nil {
		return nil, &AnswerError{Stage: StageRetrieve, Err: err}
	}

	contexts := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Chunk.Content
	}
	prompt := e.prompts.Build(query, contexts)

	resp, err := provider.Do(ctx, e.llm.Name(), e.policy, func(ctx context.Context) (*llm.Response, error) {
		return e.llm.Generate(ctx, prompt, history)
	})
	if err != nil {
		return nil, &AnswerError{Stage: StageGenerate, Err: err}
	}
	if strings.TrimSpace(resp.Text) == "" {
		return nil, &AnswerError{Stage: StageGenerate, Err: ErrEmptyAnswer}
	}

	if _, _, err := e.memory.AppendExchange(question, resp.Text); err != nil {
		return nil, &AnswerError{Stage: StageGenerate, Err: err}
	}

	log.WithFields(logrus.Fields{
		"sources": len(results),
		"turns":   e.memory.Len(),
		"tokens":  resp.TokenCount,
	}).Info("Question answered")

	if e.recorder != nil {
		if err := e.recorder.RecordExchange(ctx, e.sessionID, question, resp.Text, toSources(results)); err != nil {
			log.WithError(err).Warn("Failed to archive exchange")
		}
	}

	return &Answer{
		Question:   question,
		Standalone: standalone,
		Answer:     resp.Text,
		Sources:    results,
	}, nil
}

// search 在读锁下检索，保证检索期间索引不会被释放
func (e *Engine) search(vec []float32) ([]vectordb.SearchResult, error) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if e.index == nil {
		return nil, &NotReadyError{SessionID: e.sessionID}
	}
	return e.index.Search(vec, e.topK)
}

func toMessages(turns []memory.Turn) []llm.Message {
	msgs := make([]llm.Message, len(turns))
	for i, t := range turns {
		role := llm.RoleUser
		if t.Role == memory.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs[i] = llm.Message{Role: role, Content: t.Content}
	}
	return msgs
}

func toSources(results []vectordb.SearchResult) []models.Source {
	sources := make([]models.Source, len(results))
	for i, r := range results {
		sources[i] = models.Source{
			ChunkID: r.Chunk.ID,
			Offset:  r.Chunk.Offset,
			Text:    r.Chunk.Content,
			Score:   r.Score,
		}
	}
	return sources
}
