// Package models 定义对话归档的持久化模型
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ErrSessionNotFound 归档中没有该会话
var ErrSessionNotFound = errors.New("archived session not found")

// MessageRole 消息角色
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatSession 归档的会话，ID与内存中的会话一致
type ChatSession struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title     string    `gorm:"not null" json:"title"`               // 取第一个问题
	Exchanges int       `gorm:"not null;default:0" json:"exchanges"` // 已归档的问答轮数
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime;index" json:"updated_at"`
}

// TableName 表名
func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ChatMessage 归档的单条消息
// 只有助手消息带引用来源
type ChatMessage struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string         `gorm:"not null;index;type:varchar(36)" json:"session_id"`
	Role      MessageRole    `gorm:"not null;type:varchar(20)" json:"role"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	Sources   datatypes.JSON `gorm:"type:json" json:"sources,omitempty"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
}

// TableName 表名
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// Source 回答引用的文本块
type Source struct {
	ChunkID int     `json:"chunk_id"`
	Offset  int     `json:"offset"` // 在拼接文本中的字节偏移
	Text    string  `json:"text"`
	Score   float32 `json:"score,omitempty"`
}

// EncodeSources 编码引用来源，没有来源时返回nil
func EncodeSources(sources []Source) (datatypes.JSON, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sources: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// DecodeSources 解码消息的引用来源
func (m *ChatMessage) DecodeSources() ([]Source, error) {
	if len(m.Sources) == 0 {
		return nil, nil
	}
	var sources []Source
	if err := json.Unmarshal(m.Sources, &sources); err != nil {
		return nil, fmt.Errorf("failed to decode sources of message %d: %w", m.ID, err)
	}
	return sources, nil
}
