package model

import (
	"time"

	"github.com/fyerfyer/pdf-chat/internal/memory"
	"github.com/fyerfyer/pdf-chat/internal/services"
	"github.com/fyerfyer/pdf-chat/internal/vectordb"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// SessionCreateResponse 创建会话响应
type SessionCreateResponse struct {
	SessionID string `json:"session_id"`
}

// UploadResponse 文档上传响应
type UploadResponse struct {
	SessionID string                  `json:"session_id"`       // 会话ID
	Files     []string                `json:"files"`            // 上传的文件名
	Status    string                  `json:"status"`           // 处理状态
	Result    *services.ProcessResult `json:"result,omitempty"` // 同步处理的结果
}

// SourceInfo 回答引用的文本块
type SourceInfo struct {
	ChunkID int     `json:"chunk_id"` // 文本块序号
	Offset  int     `json:"offset"`   // 在全文中的偏移
	Text    string  `json:"text"`     // 文本内容
	Score   float32 `json:"score"`    // 相似度分数
}

// AskResponse 问答响应
type AskResponse struct {
	Question           string       `json:"question"`                      // 用户问题
	StandaloneQuestion string       `json:"standalone_question,omitempty"` // 改写后的独立问题
	Answer             string       `json:"answer"`                        // 模型生成的回答
	Sources            []SourceInfo `json:"sources"`                       // 来源信息
}

// NewAskResponse 将问答结果转换为响应
func NewAskResponse(ans *services.Answer) AskResponse {
	return AskResponse{
		Question:           ans.Question,
		StandaloneQuestion: ans.Standalone,
		Answer:             ans.Answer,
		Sources:            ConvertToSourceInfo(ans.Sources),
	}
}

// ConvertToSourceInfo 将检索结果转换为来源信息
func ConvertToSourceInfo(results []vectordb.SearchResult) []SourceInfo {
	sources := make([]SourceInfo, len(results))
	for i, r := range results {
		sources[i] = SourceInfo{
			ChunkID: r.Chunk.ID,
			Offset:  r.Chunk.Offset,
			Text:    r.Chunk.Content,
			Score:   r.Score,
		}
	}
	return sources
}

// TurnInfo 对话轮次
type TurnInfo struct {
	Index     int       `json:"index"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse 对话历史响应
type HistoryResponse struct {
	SessionID string     `json:"session_id"`
	Turns     []TurnInfo `json:"turns"`
}

// NewHistoryResponse 将对话记录转换为响应
func NewHistoryResponse(sessionID string, turns []memory.Turn) HistoryResponse {
	infos := make([]TurnInfo, len(turns))
	for i, t := range turns {
		infos[i] = TurnInfo{
			Index:     t.Index,
			Role:      string(t.Role),
			Content:   t.Content,
			CreatedAt: t.CreatedAt,
		}
	}
	return HistoryResponse{SessionID: sessionID, Turns: infos}
}

// SessionListResponse 会话列表响应
type SessionListResponse struct {
	Total    int                      `json:"total"`
	Sessions []services.SessionStatus `json:"sessions"`
}

// PaginationResponse 分页响应信息
type PaginationResponse struct {
	Total    int64 `json:"total"`     // 总记录数
	Page     int   `json:"page"`      // 当前页码
	PageSize int   `json:"page_size"` // 每页大小
}
