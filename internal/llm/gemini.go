package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GeminiClient Google Gemini对话模型客户端
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	defaults   Params
}

// NewGeminiClient 创建Gemini对话模型客户端
func NewGeminiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &GeminiClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      strings.TrimPrefix(cfg.Model, "models/"),
		httpClient: cfg.client(),
		defaults:   cfg.Defaults,
	}, nil
}

// Name 返回模型名称
func (c *GeminiClient) Name() string {
	return c.model
}

// Generate 根据提示词和对话历史生成回答
func (c *GeminiClient) Generate(ctx context.Context, prompt string, history []Message, options ...GenerateOption) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	reqData := GeminiGenerateRequest{
		GenerationConfig: generationConfig(c.defaults.With(options...)),
	}

	var system []GeminiPart
	for _, msg := range history {
		switch msg.Role {
		case RoleSystem:
			system = append(system, GeminiPart{Text: msg.Content})
		case RoleAssistant:
			reqData.Contents = append(reqData.Contents, textContent("model", msg.Content))
		default:
			reqData.Contents = append(reqData.Contents, textContent("user", msg.Content))
		}
	}
	reqData.Contents = append(reqData.Contents, textContent("user", prompt))
	if len(system) > 0 {
		reqData.SystemInstruction = &GeminiContent{Parts: system}
	}

	var resp GeminiGenerateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	if err := c.sendRequest(ctx, url, reqData, &resp); err != nil {
		return nil, err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, NewLLMError(ErrCodeContentFilter,
			fmt.Sprintf("%s: %s", ErrMsgContentFilter, resp.PromptFeedback.BlockReason))
	}
	if len(resp.Candidates) == 0 {
		return nil, NewLLMError(ErrCodeServerError, "no candidates in response")
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		if candidate.FinishReason == "SAFETY" {
			return nil, NewLLMError(ErrCodeContentFilter, ErrMsgContentFilter)
		}
		return nil, NewLLMError(ErrCodeServerError,
			fmt.Sprintf("empty answer (finish reason %q)", candidate.FinishReason))
	}

	return &Response{
		Text:         text.String(),
		FinishReason: candidate.FinishReason,
		TokenCount:   resp.UsageMetadata.TotalTokenCount,
		ModelName:    c.model,
		FinishTime:   time.Now(),
	}, nil
}

func textContent(role, text string) GeminiContent {
	return GeminiContent{Role: role, Parts: []GeminiPart{{Text: text}}}
}

// sendRequest 发送API请求并解析响应
func (c *GeminiClient) sendRequest(ctx context.Context, url string, reqData interface{}, respObj interface{}) error {
	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return NewLLMError(ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return NewLLMError(ErrCodeInvalidRequest, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return NewLLMError(ErrCodeTimeout, fmt.Sprintf("%s: %v", ErrMsgTimeout, err))
		}
		return NewLLMError(ErrCodeNetworkError, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewLLMError(ErrCodeNetworkError, fmt.Sprintf("failed to read response: %v", err))
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
		return NewLLMError(ErrCodeServerError, fmt.Sprintf("failed to parse response: %v", err))
	}
	return nil
}

func init() {
	RegisterClient("gemini", NewGeminiClient)
}

// generationConfig 转换采样参数，零值字段不发送
func generationConfig(p Params) *GeminiGenerationConfig {
	gc := &GeminiGenerationConfig{}
	if p.MaxTokens > 0 {
		gc.MaxOutputTokens = &p.MaxTokens
	}
	if p.Temperature > 0 {
		gc.Temperature = &p.Temperature
	}
	if p.TopP > 0 {
		gc.TopP = &p.TopP
	}
	if p.TopK > 0 {
		gc.TopK = &p.TopK
	}
	return gc
}
