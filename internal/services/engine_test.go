package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/embedding"
	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/fyerfyer/pdf-chat/internal/memory"
	"github.com/fyerfyer/pdf-chat/internal/models"
	"github.com/fyerfyer/pdf-chat/internal/provider"
	"github.com/fyerfyer/pdf-chat/internal/vectordb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reply 预设的大模型返回
type reply struct {
	text string
	err  error
}

// scriptedLLM 按顺序返回预设结果并记录每次调用
type scriptedLLM struct {
	mu        sync.Mutex
	replies   []reply
	prompts   []string
	histories [][]llm.Message
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, history []llm.Message, _ ...llm.GenerateOption) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	s.histories = append(s.histories, append([]llm.Message(nil), history...))

	if len(s.replies) == 0 {
		return &llm.Response{Text: "default answer", ModelName: "scripted"}, nil
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &llm.Response{Text: r.text, ModelName: "scripted"}, nil
}

func (s *scriptedLLM) Name() string {
	return "scripted"
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// recorderFunc 函数形式的问答记录器
type recorderFunc func(ctx context.Context, sessionID, question, answer string, sources []models.Source) error

func (f recorderFunc) RecordExchange(ctx context.Context, sessionID, question, answer string, sources []models.Source) error {
	return f(ctx, sessionID, question, answer, sources)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func quickPolicy(attempts int) provider.Policy {
	return provider.Policy{
		Timeout:        time.Second,
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func newLocalEmbedder(t *testing.T) embedding.Client {
	t.Helper()
	client, err := embedding.NewLocalClient(embedding.WithDimensions(64))
	require.NoError(t, err)
	return client
}

var testChunks = []vectordb.Chunk{
	{ID: 0, Content: "cats purr when they are happy", Offset: 0},
	{ID: 1, Content: "dogs bark at the mailman", Offset: 30},
	{ID: 2, Content: "rust is a systems programming language", Offset: 55},
}

func buildTestIndex(t *testing.T, embedder vectordb.Embedder) *vectordb.Index {
	t.Helper()
	idx, err := vectordb.Build(context.Background(), testChunks, embedder)
	require.NoError(t, err)
	return idx
}

func newReadyEngine(t *testing.T, model *scriptedLLM, opts ...EngineOption) *Engine {
	t.Helper()
	embedder := newLocalEmbedder(t)
	base := []EngineOption{
		WithProviderPolicy(quickPolicy(1)),
		WithEngineLogger(quietLogger()),
		WithSessionID("test-session"),
	}
	engine := NewEngine(embedder, model, memory.New(), append(base, opts...)...)
	engine.SetIndex(buildTestIndex(t, embedder))
	return engine
}

func TestAskBeforeReady(t *testing.T) {
	model := &scriptedLLM{}
	engine := NewEngine(newLocalEmbedder(t), model, nil, WithEngineLogger(quietLogger()))

	assert.Equal(t, StateUninitialized, engine.State())

	_, err := engine.Ask(context.Background(), "what do cats do?")
	var notReady *NotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, 0, engine.Memory().Len())
	assert.Equal(t, 0, model.calls())
	assert.Equal(t, StateUninitialized, engine.State())
}

func TestAskEmptyQuestion(t *testing.T) {
	model := &scriptedLLM{}
	engine := newReadyEngine(t, model)

	_, err := engine.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Equal(t, 0, engine.Memory().Len())
	assert.Equal(t, 0, model.calls())
}

func TestAskSuccess(t *testing.T) {
	model := &scriptedLLM{replies: []reply{{text: "Cats purr when happy."}}}

	var recorded []string
	recorder := recorderFunc(func(_ context.Context, sessionID, question, answer string, sources []models.Source) error {
		recorded = append(recorded, sessionID, question, answer)
		assert.NotEmpty(t, sources)
		return nil
	})
	engine := newReadyEngine(t, model, WithTopK(2), WithRecorder(recorder))

	ans, err := engine.AskWithSources(context.Background(), "what do cats do when happy")
	require.NoError(t, err)

	assert.Equal(t, "Cats purr when happy.", ans.Answer)
	assert.Equal(t, "what do cats do when happy", ans.Question)
	assert.Empty(t, ans.Standalone)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, 0, ans.Sources[0].Chunk.ID, "best match should be the cats chunk")

	require.Equal(t, 1, model.calls())
	assert.Contains(t, model.prompts[0], "cats purr when they are happy")
	assert.Contains(t, model.prompts[0], "Question: what do cats do when happy")
	assert.Empty(t, model.histories[0])

	history := engine.Memory().History()
	require.Len(t, history, 2)
	assert.Equal(t, memory.RoleUser, history[0].Role)
	assert.Equal(t, "what do cats do when happy", history[0].Content)
	assert.Equal(t, memory.RoleAssistant, history[1].Role)
	assert.Equal(t, "Cats purr when happy.", history[1].Content)

	assert.Equal(t, []string{"test-session", "what do cats do when happy", "Cats purr when happy."}, recorded)
	assert.Equal(t, StateReady, engine.State())
}

func TestAskPassesHistory(t *testing.T) {
	model := &scriptedLLM{replies: []reply{{text: "first"}, {text: "second"}}}
	engine := newReadyEngine(t, model)
	ctx := context.Background()

	_, err := engine.Ask(ctx, "tell me about dogs")
	require.NoError(t, err)
	assert.Equal(t, 2, engine.Memory().Len())

	answer, err := engine.Ask(ctx, "and cats?")
	require.NoError(t, err)
	assert.Equal(t, "second", answer)
	assert.Equal(t, 4, engine.Memory().Len())

	require.Len(t, model.histories, 2)
	assert.Empty(t, model.histories[0])
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "tell me about dogs"},
		{Role: llm.RoleAssistant, Content: "first"},
	}, model.histories[1])
}

func TestAskGenerateFailureKeepsMemory(t *testing.T) {
	model := &scriptedLLM{replies: []reply{
		{text: "ok"},
		{err: llm.NewLLMError(llm.ErrCodeInvalidAPIKey, llm.ErrMsgInvalidAPIKey)},
	}}
	engine := newReadyEngine(t, model)
	ctx := context.Background()

	_, err := engine.Ask(ctx, "dogs?")
	require.NoError(t, err)

	_, err = engine.Ask(ctx, "cats?")
	var answerErr *AnswerError
	require.ErrorAs(t, err, &answerErr)
	assert.Equal(t, StageGenerate, answerErr.Stage)
	assert.False(t, answerErr.Retryable())

	assert.Equal(t, 2, engine.Memory().Len())
	assert.Equal(t, StateReady, engine.State())
}

func TestAskRetriesTransientFailure(t *testing.T) {
	model := &scriptedLLM{replies: []reply{
		{err: llm.NewLLMError(llm.ErrCodeModelOverload, llm.ErrMsgModelOverload)},
		{text: "recovered"},
	}}
	engine := newReadyEngine(t, model, WithProviderPolicy(quickPolicy(3)))

	answer, err := engine.Ask(context.Background(), "rust?")
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)
	assert.Equal(t, 2, model.calls())
	assert.Equal(t, 2, engine.Memory().Len())
}

func TestAskRetryableErrorSurfaces(t *testing.T) {
	model := &scriptedLLM{replies: []reply{
		{err: llm.NewLLMError(llm.ErrCodeRateLimited, llm.ErrMsgRateLimited)},
	}}
	engine := newReadyEngine(t, model)

	_, err := engine.Ask(context.Background(), "rust?")
	require.Error(t, err)
	assert.True(t, provider.IsRetryable(err))
	assert.Equal(t, 0, engine.Memory().Len())
}

func TestAskEmptyAnswer(t *testing.T) {
	model := &scriptedLLM{replies: []reply{{text: "  "}}}
	engine := newReadyEngine(t, model)

	_, err := engine.Ask(context.Background(), "dogs?")
	assert.ErrorIs(t, err, ErrEmptyAnswer)
	assert.Equal(t, 0, engine.Memory().Len())
}

func TestAskCondensesFollowUp(t *testing.T) {
	model := &scriptedLLM{replies: []reply{
		{text: "Dogs bark."},
		{text: "What do dogs bark at?"},
		{text: "The mailman."},
	}}
	engine := newReadyEngine(t, model, WithCondenseQuestion(true))
	ctx := context.Background()

	first, err := engine.AskWithSources(ctx, "what do dogs do")
	require.NoError(t, err)
	assert.Empty(t, first.Standalone, "first question has no history to condense")
	require.Equal(t, 1, model.calls())

	second, err := engine.AskWithSources(ctx, "at what?")
	require.NoError(t, err)
	assert.Equal(t, "What do dogs bark at?", second.Standalone)
	assert.Equal(t, "The mailman.", second.Answer)

	require.Equal(t, 3, model.calls())
	assert.Contains(t, model.prompts[1], "Follow Up Input: at what?")
	assert.Contains(t, model.prompts[1], "Human: what do dogs do")
	assert.Contains(t, model.prompts[2], "Question: What do dogs bark at?")

	history := engine.Memory().History()
	require.Len(t, history, 4)
	assert.Equal(t, "at what?", history[2].Content, "memory keeps the original follow-up")
}

func TestAskRecorderFailureIsNotFatal(t *testing.T) {
	model := &scriptedLLM{replies: []reply{{text: "fine"}}}
	recorder := recorderFunc(func(context.Context, string, string, string, []models.Source) error {
		return errors.New("disk full")
	})
	engine := newReadyEngine(t, model, WithRecorder(recorder))

	answer, err := engine.Ask(context.Background(), "dogs?")
	require.NoError(t, err)
	assert.Equal(t, "fine", answer)
	assert.Equal(t, 2, engine.Memory().Len())
}

func TestEngineSetIndexAndClose(t *testing.T) {
	model := &scriptedLLM{}
	engine := newReadyEngine(t, model)
	first := engine.Index()
	require.NotNil(t, first)

	embedder := newLocalEmbedder(t)
	second, err := vectordb.Build(context.Background(), testChunks[:1], embedder)
	require.NoError(t, err)

	engine.SetIndex(second)
	assert.Same(t, second, engine.Index())
	assert.Equal(t, StateReady, engine.State())

	ans, err := engine.AskWithSources(context.Background(), "dogs?")
	require.NoError(t, err)
	require.Len(t, ans.Sources, 1, "only the replacement index should be searched")

	engine.Close()
	assert.Nil(t, engine.Index())
	_, err = engine.Ask(context.Background(), "dogs?")
	var notReady *NotReadyError
	assert.ErrorAs(t, err, &notReady)
}

func TestAskSerializesConcurrentCalls(t *testing.T) {
	model := &scriptedLLM{}
	engine := newReadyEngine(t, model)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Ask(context.Background(), "cats?")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	history := engine.Memory().History()
	require.Len(t, history, 16)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, memory.RoleUser, history[i].Role)
		assert.Equal(t, memory.RoleAssistant, history[i+1].Role)
		assert.True(t, strings.HasPrefix(history[i+1].Content, "default"))
	}
}

// blockingEmbedder 查询向量阻塞到release关闭，文档向量直接交给内部嵌入器
type blockingEmbedder struct {
	embedding.Client
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingEmbedder(t *testing.T) *blockingEmbedder {
	return &blockingEmbedder{
		Client:  newLocalEmbedder(t),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.Client.Embed(ctx, text)
}

// startBlockedAsk 发起一次提问并等待其进入嵌入阶段
func startBlockedAsk(t *testing.T, engine *Engine, embedder *blockingEmbedder) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		_, err := engine.Ask(context.Background(), "what do cats do?")
		errCh <- err
	}()
	select {
	case <-embedder.started:
	case <-time.After(2 * time.Second):
		t.Fatal("ask never reached the embedder")
	}
	return errCh
}

func newBlockingEngine(t *testing.T, model *scriptedLLM) (*Engine, *blockingEmbedder) {
	t.Helper()
	embedder := newBlockingEmbedder(t)
	engine := NewEngine(embedder, model, memory.New(),
		WithProviderPolicy(provider.Policy{MaxAttempts: 1, Timeout: 5 * time.Second}),
		WithEngineLogger(quietLogger()),
	)
	engine.SetIndex(buildTestIndex(t, embedder))
	return engine, embedder
}

func TestCloseDuringAsk(t *testing.T) {
	model := &scriptedLLM{}
	engine, embedder := newBlockingEngine(t, model)

	errCh := startBlockedAsk(t, engine, embedder)
	engine.Close()
	close(embedder.release)

	var err error
	select {
	case err = <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("ask did not return after close")
	}

	var notReady *NotReadyError
	require.ErrorAs(t, err, &notReady)
	var answerErr *AnswerError
	require.ErrorAs(t, err, &answerErr)
	assert.Equal(t, StageRetrieve, answerErr.Stage)

	assert.Equal(t, StateUninitialized, engine.State())
	assert.Nil(t, engine.Index())
	assert.Equal(t, 0, engine.Memory().Len())
	assert.Equal(t, 0, model.calls())
}

func TestSetIndexWaitsForInFlightAsk(t *testing.T) {
	model := &scriptedLLM{}
	engine, embedder := newBlockingEngine(t, model)
	first := engine.Index()

	second, err := vectordb.Build(context.Background(), testChunks[:1], newLocalEmbedder(t))
	require.NoError(t, err)

	errCh := startBlockedAsk(t, engine, embedder)
	swapped := make(chan struct{})
	go func() {
		engine.SetIndex(second)
		close(swapped)
	}()

	assert.Never(t, func() bool {
		select {
		case <-swapped:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond, "index must not change under an in-flight ask")
	assert.Same(t, first, engine.Index())

	close(embedder.release)
	require.NoError(t, <-errCh)
	<-swapped
	assert.Same(t, second, engine.Index())
	assert.Equal(t, StateReady, engine.State())
}

func TestResetMemoryWaitsForInFlightAsk(t *testing.T) {
	model := &scriptedLLM{}
	engine, embedder := newBlockingEngine(t, model)

	errCh := startBlockedAsk(t, engine, embedder)
	reset := make(chan struct{})
	go func() {
		engine.ResetMemory()
		close(reset)
	}()

	assert.Never(t, func() bool {
		select {
		case <-reset:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond)

	close(embedder.release)
	require.NoError(t, <-errCh)
	<-reset
	assert.Equal(t, 0, engine.Memory().Len(), "the exchange answered before the reset must be cleared")
}
