package handler

import (
	"net/http"

	"github.com/fyerfyer/pdf-chat/api/middleware"
	"github.com/fyerfyer/pdf-chat/api/model"
	"github.com/fyerfyer/pdf-chat/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TranscriptHandler 处理对话归档相关的API请求
type TranscriptHandler struct {
	repo   repository.TranscriptRepository
	logger *logrus.Logger
}

// NewTranscriptHandler 创建对话归档处理器
func NewTranscriptHandler(repo repository.TranscriptRepository) *TranscriptHandler {
	return &TranscriptHandler{
		repo:   repo,
		logger: middleware.GetLogger(),
	}
}

// ListTranscripts 分页列出归档会话
// GET /api/transcripts
func (h *TranscriptHandler) ListTranscripts(c *gin.Context) {
	var req model.TranscriptListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的分页参数", err.Error()))
		return
	}

	sessions, total, err := h.repo.ListSessions(c.Request.Context(), req.Offset(), req.GetPageSize())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	infos := make([]model.TranscriptInfo, len(sessions))
	for i, s := range sessions {
		infos[i] = model.NewTranscriptInfo(s)
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.TranscriptListResponse{
		PaginationResponse: model.PaginationResponse{
			Total:    total,
			Page:     req.GetPage(),
			PageSize: req.GetPageSize(),
		},
		Sessions: infos,
	}))
}

// GetMessages 分页获取归档会话的消息
// GET /api/transcripts/:id/messages
func (h *TranscriptHandler) GetMessages(c *gin.Context) {
	var uri model.SessionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的会话ID", err.Error()))
		return
	}
	var page model.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的分页参数", err.Error()))
		return
	}

	messages, total, err := h.repo.GetMessages(c.Request.Context(), uri.ID, page.Offset(), page.GetPageSize())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	out := make([]model.TranscriptMessage, len(messages))
	for i, m := range messages {
		out[i] = model.NewTranscriptMessage(m)
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.TranscriptMessagesResponse{
		PaginationResponse: model.PaginationResponse{
			Total:    total,
			Page:     page.GetPage(),
			PageSize: page.GetPageSize(),
		},
		SessionID: uri.ID,
		Messages:  out,
	}))
}

// DeleteTranscript 删除归档会话
// DELETE /api/transcripts/:id
func (h *TranscriptHandler) DeleteTranscript(c *gin.Context) {
	var uri model.SessionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的会话ID", err.Error()))
		return
	}
	if err := h.repo.DeleteSession(c.Request.Context(), uri.ID); err != nil {
		middleware.HandleError(c, err)
		return
	}
	h.logger.WithField(middleware.FieldSessionID, uri.ID).Info("Transcript deleted")
	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{"session_id": uri.ID}))
}
