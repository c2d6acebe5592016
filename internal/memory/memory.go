// Package memory 保存单个会话的多轮对话记录
package memory

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Role 对话角色
type Role string

const (
	// RoleUser 用户提问
	RoleUser Role = "user"
	// RoleAssistant 助手回答
	RoleAssistant Role = "assistant"
)

// ErrEmptyContent 对话内容为空
var ErrEmptyContent = errors.New("turn content cannot be empty")

// Turn 一轮对话
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Index     int       `json:"turn_index"` // 单调递增的序号
	CreatedAt time.Time `json:"created_at"`
}

// ConversationMemory 按时间顺序追加的对话记录
// 只在显式重置时清空
type ConversationMemory struct {
	mu    sync.RWMutex
	turns []Turn
	next  int
}

// New 创建空的对话记录
func New() *ConversationMemory {
	return &ConversationMemory{}
}

// Append 在末尾追加一轮对话，返回带序号的记录
func (m *ConversationMemory) Append(role Role, content string) (Turn, error) {
	if err := validate(role, content); err != nil {
		return Turn{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(role, content), nil
}

// AppendExchange 原子地追加一问一答
// 两条记录要么都写入，要么都不写入
func (m *ConversationMemory) AppendExchange(question, answer string) (Turn, Turn, error) {
	if err := validate(RoleUser, question); err != nil {
		return Turn{}, Turn{}, err
	}
	if err := validate(RoleAssistant, answer); err != nil {
		return Turn{}, Turn{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.appendLocked(RoleUser, question)
	a := m.appendLocked(RoleAssistant, answer)
	return q, a, nil
}

func (m *ConversationMemory) appendLocked(role Role, content string) Turn {
	turn := Turn{
		Role:      role,
		Content:   content,
		Index:     m.next,
		CreatedAt: time.Now(),
	}
	m.next++
	m.turns = append(m.turns, turn)
	return turn
}

// History 返回全部对话的副本，按时间顺序排列
func (m *ConversationMemory) History() []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Len 返回对话条数
func (m *ConversationMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// Reset 清空对话记录，序号从0重新开始
func (m *ConversationMemory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
	m.next = 0
}

func validate(role Role, content string) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("unknown turn role: %q", role)
	}
	if content == "" {
		return ErrEmptyContent
	}
	return nil
}
