package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/fyerfyer/pdf-chat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxTitleLength 会话标题的最大字符数
const maxTitleLength = 60

// TranscriptRepository 对话归档仓储接口
// 只追加成功的问答，不用于恢复会话状态
type TranscriptRepository interface {
	// RecordExchange 保存一问一答，首次写入时创建会话
	RecordExchange(ctx context.Context, sessionID, question, answer string, sources []models.Source) error

	// GetSession 获取归档的会话
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)

	// ListSessions 按更新时间倒序列出会话
	ListSessions(ctx context.Context, offset, limit int) ([]*models.ChatSession, int64, error)

	// GetMessages 按时间顺序获取会话消息
	GetMessages(ctx context.Context, sessionID string, offset, limit int) ([]*models.ChatMessage, int64, error)

	// DeleteSession 删除会话及其消息
	DeleteSession(ctx context.Context, id string) error
}

// transcriptRepo 基于gorm的实现
type transcriptRepo struct {
	db *gorm.DB
}

// NewTranscriptRepository 创建对话归档仓储
func NewTranscriptRepository(db *gorm.DB) TranscriptRepository {
	return &transcriptRepo{db: db}
}

// RecordExchange 保存一问一答
func (r *transcriptRepo) RecordExchange(ctx context.Context, sessionID, question, answer string, sources []models.Source) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	sourcesJSON, err := models.EncodeSources(sources)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session := &models.ChatSession{ID: sessionID, Title: titleFrom(question)}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(session).Error; err != nil {
			return err
		}

		now := time.Now()
		messages := []*models.ChatMessage{
			{SessionID: sessionID, Role: models.RoleUser, Content: question, CreatedAt: now},
			{SessionID: sessionID, Role: models.RoleAssistant, Content: answer, CreatedAt: now, Sources: sourcesJSON},
		}
		if err := tx.Create(&messages).Error; err != nil {
			return err
		}

		return tx.Model(&models.ChatSession{}).
			Where("id = ?", sessionID).
			Updates(map[string]interface{}{
				"updated_at": now,
				"exchanges":  gorm.Expr("exchanges + ?", 1),
			}).Error
	})
}

// GetSession 获取归档的会话
func (r *transcriptRepo) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
		}
		return nil, err
	}
	return &session, nil
}

// ListSessions 按更新时间倒序列出会话
func (r *transcriptRepo) ListSessions(ctx context.Context, offset, limit int) ([]*models.ChatSession, int64, error) {
	var sessions []*models.ChatSession
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&models.ChatSession{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := db.Order("updated_at DESC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&sessions).Error; err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// GetMessages 按时间顺序获取会话消息
func (r *transcriptRepo) GetMessages(ctx context.Context, sessionID string, offset, limit int) ([]*models.ChatMessage, int64, error) {
	var messages []*models.ChatMessage
	var total int64

	db := r.db.WithContext(ctx)

	var exists int64
	if err := db.Model(&models.ChatSession{}).Where("id = ?", sessionID).Count(&exists).Error; err != nil {
		return nil, 0, err
	}
	if exists == 0 {
		return nil, 0, fmt.Errorf("%w: %s", models.ErrSessionNotFound, sessionID)
	}

	if err := db.Model(&models.ChatMessage{}).Where("session_id = ?", sessionID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := db.Where("session_id = ?", sessionID).Order("id ASC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&messages).Error; err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// DeleteSession 删除会话及其消息
func (r *transcriptRepo) DeleteSession(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.ChatSession{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
		}
		return nil
	})
}

// titleFrom 用第一个问题生成会话标题
func titleFrom(question string) string {
	if utf8.RuneCountInString(question) <= maxTitleLength {
		return question
	}
	runes := []rune(question)
	return string(runes[:maxTitleLength]) + "..."
}
