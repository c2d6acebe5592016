package llm

import "time"

// MessageRole 消息角色类型
type MessageRole string

const (
	// RoleSystem 系统角色
	RoleSystem MessageRole = "system"
	// RoleUser 用户角色
	RoleUser MessageRole = "user"
	// RoleAssistant 助手角色
	RoleAssistant MessageRole = "assistant"
)

// Message 对话消息结构
type Message struct {
	Role    MessageRole `json:"role"`    // 角色
	Content string      `json:"content"` // 内容
}

// Response 统一的响应结构
type Response struct {
	Text         string    // 生成的文本
	FinishReason string    // 结束原因
	TokenCount   int       // 使用的token数
	ModelName    string    // 使用的模型名称
	FinishTime   time.Time // 完成时间
}

// GeminiPart 内容片段
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiContent 一条对话内容
type GeminiContent struct {
	Role  string       `json:"role,omitempty"` // user或model
	Parts []GeminiPart `json:"parts"`
}

// GeminiGenerationConfig 生成参数
type GeminiGenerationConfig struct {
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	Temperature     *float32 `json:"temperature,omitempty"`
	TopP            *float32 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
}

// GeminiGenerateRequest generateContent请求体
type GeminiGenerateRequest struct {
	Contents          []GeminiContent         `json:"contents"`
	SystemInstruction *GeminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

// GeminiCandidate 候选回答
type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

// GeminiUsage 资源使用情况
type GeminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// GeminiGenerateResponse generateContent响应体
type GeminiGenerateResponse struct {
	Candidates     []GeminiCandidate `json:"candidates"`
	UsageMetadata  GeminiUsage       `json:"usageMetadata"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// GeminiErrorResponse Google API错误响应
type GeminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Model 常用模型名称
const (
	ModelGeminiFlash     = "gemini-2.5-flash"      // 默认模型，速度与质量平衡
	ModelGeminiPro       = "gemini-2.5-pro"        // 高级推理能力
	ModelGeminiFlashLite = "gemini-2.5-flash-lite" // 低延迟低成本
)
