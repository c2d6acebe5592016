package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// GeminiClient Google Gemini嵌入API客户端
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	batchSize  int
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGeminiClient 创建Gemini嵌入客户端
func NewGeminiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	return &GeminiClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.modelPath(),
		batchSize:  cfg.batchSize(),
		httpClient: cfg.client(),
		limiter:    cfg.limiter(),
	}, nil
}

// Name 返回模型名称
func (c *GeminiClient) Name() string {
	return c.model
}

// Embed 生成查询文本的向量表示
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	vectors, err := c.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成文档文本的向量表示
func (c *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > c.batchSize {
		return nil, NewEmbeddingError(ErrCodeBatchTooLarge,
			fmt.Sprintf("batch of %d texts exceeds limit of %d", len(texts), c.batchSize))
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, NewEmbeddingError(ErrCodeEmptyInput, fmt.Sprintf("text %d: %s", i, ErrMsgEmptyInput))
		}
	}

	return c.embed(ctx, texts, taskRetrievalDocument)
}

func (c *GeminiClient) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, NewEmbeddingError(ErrCodeTimeout, err.Error())
		}
	}

	reqData := GeminiBatchEmbedRequest{Requests: make([]GeminiEmbedRequest, len(texts))}
	for i, text := range texts {
		reqData.Requests[i] = GeminiEmbedRequest{
			Model:    c.model,
			Content:  GeminiContent{Parts: []GeminiPart{{Text: text}}},
			TaskType: task,
		}
	}

	var resp GeminiBatchEmbedResponse
	url := fmt.Sprintf("%s/%s:batchEmbedContents", c.baseURL, c.model)
	if err := c.sendRequest(ctx, url, reqData, &resp); err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings)))
	}

	result := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Values) == 0 {
			return nil, NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("empty embedding for text %d", i))
		}
		result[i] = emb.Values
	}
	return result, nil
}

// sendRequest 发送API请求并解析响应
func (c *GeminiClient) sendRequest(ctx context.Context, url string, reqData interface{}, respObj interface{}) error {
	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return NewEmbeddingError(ErrCodeTimeout, fmt.Sprintf("%s: %v", ErrMsgTimeout, err))
		}
		return NewEmbeddingError(ErrCodeNetworkError, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewEmbeddingError(ErrCodeNetworkError, fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		var errResp GeminiErrorResponse
		message := ""
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil {
			message = errResp.Error.Message
		}
		return errorFromStatus(resp.StatusCode, message)
	}

	if err := json.Unmarshal(body, respObj); err != nil {
		return NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("failed to parse response: %v", err))
	}
	return nil
}

func init() {
	RegisterClient("gemini", NewGeminiClient)
}
