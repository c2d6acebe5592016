package model

import (
	"time"

	"github.com/fyerfyer/pdf-chat/internal/models"
)

// TranscriptListRequest 归档会话列表请求
type TranscriptListRequest struct {
	PaginationRequest // 嵌入分页请求
}

// TranscriptInfo 归档会话信息
type TranscriptInfo struct {
	SessionID string    `json:"session_id"` // 会话ID
	Title     string    `json:"title"`      // 会话标题
	Exchanges int       `json:"exchanges"`  // 问答轮数
	CreatedAt time.Time `json:"created_at"` // 创建时间
	UpdatedAt time.Time `json:"updated_at"` // 最后更新时间
}

// TranscriptListResponse 归档会话列表响应
type TranscriptListResponse struct {
	PaginationResponse
	Sessions []TranscriptInfo `json:"sessions"`
}

// TranscriptMessage 归档的消息
type TranscriptMessage struct {
	ID        uint         `json:"id"`                // 消息ID
	Role      string       `json:"role"`              // 消息角色
	Content   string       `json:"content"`           // 消息内容
	Sources   []SourceInfo `json:"sources,omitempty"` // 回答引用的文本块
	CreatedAt time.Time    `json:"created_at"`        // 创建时间
}

// TranscriptMessagesResponse 归档消息列表响应
type TranscriptMessagesResponse struct {
	PaginationResponse
	SessionID string              `json:"session_id"`
	Messages  []TranscriptMessage `json:"messages"`
}

// NewTranscriptInfo 转换归档会话
func NewTranscriptInfo(s *models.ChatSession) TranscriptInfo {
	return TranscriptInfo{
		SessionID: s.ID,
		Title:     s.Title,
		Exchanges: s.Exchanges,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// NewTranscriptMessage 转换归档消息，无法解析的来源会被忽略
func NewTranscriptMessage(m *models.ChatMessage) TranscriptMessage {
	msg := TranscriptMessage{
		ID:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
	sources, err := m.DecodeSources()
	if err != nil || len(sources) == 0 {
		return msg
	}
	msg.Sources = make([]SourceInfo, len(sources))
	for i, s := range sources {
		msg.Sources[i] = SourceInfo{
			ChunkID: s.ChunkID,
			Offset:  s.Offset,
			Text:    s.Text,
			Score:   s.Score,
		}
	}
	return msg
}
