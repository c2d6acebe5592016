package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/fyerfyer/pdf-chat/api/middleware"
	"github.com/fyerfyer/pdf-chat/api/model"
	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// defaultMaxUploadBytes 默认的上传大小上限
const defaultMaxUploadBytes = 32 << 20

// SessionHandler 处理会话、文档和问答相关的API请求
type SessionHandler struct {
	manager        *services.Manager // 会话管理器
	maxUploadBytes int64             // 单次上传的大小上限
	logger         *logrus.Logger    // 日志记录器
}

// SessionHandlerOption 处理器配置选项
type SessionHandlerOption func(*SessionHandler)

// WithMaxUploadMB 设置单次上传的大小上限
func WithMaxUploadMB(mb int) SessionHandlerOption {
	return func(h *SessionHandler) {
		if mb > 0 {
			h.maxUploadBytes = int64(mb) << 20
		}
	}
}

// NewSessionHandler 创建新的会话处理器
func NewSessionHandler(manager *services.Manager, opts ...SessionHandlerOption) *SessionHandler {
	h := &SessionHandler{
		manager:        manager,
		maxUploadBytes: defaultMaxUploadBytes,
		logger:         middleware.GetLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CreateSession 创建会话
// POST /api/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	session, err := h.manager.Create()
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.NewSuccessResponse(model.SessionCreateResponse{
		SessionID: session.ID,
	}))
}

// ListSessions 列出所有会话
// GET /api/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	statuses := h.manager.List()
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.SessionListResponse{
		Total:    len(statuses),
		Sessions: statuses,
	}))
}

// GetSession 获取会话状态
// GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(session.Status()))
}

// DeleteSession 删除会话
// DELETE /api/sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	var uri model.SessionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的会话ID", err.Error()))
		return
	}
	if err := h.manager.Delete(uri.ID); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{"session_id": uri.ID}))
}

// UploadDocuments 上传文档并构建会话索引
// POST /api/sessions/:id/documents
func (h *SessionHandler) UploadDocuments(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var query model.UploadQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的请求参数", err.Error()))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的上传请求", err.Error()))
		return
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		middleware.HandleError(c, document.ErrNoDocuments)
		return
	}

	sources := make([]document.Source, 0, len(headers))
	names := make([]string, 0, len(headers))
	for _, fh := range headers {
		src, err := readSource(fh)
		if err != nil {
			middleware.HandleError(c, err)
			return
		}
		sources = append(sources, src)
		names = append(names, fh.Filename)
	}

	log := h.logger.WithFields(logrus.Fields{
		middleware.FieldSessionID: session.ID,
		"files":                   len(sources),
		"async":                   query.Async,
	})

	if query.Async {
		if err := h.manager.ProcessAsync(session.ID, sources); err != nil {
			middleware.HandleError(c, err)
			return
		}
		log.Info("Documents queued for processing")
		c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.UploadResponse{
			SessionID: session.ID,
			Files:     names,
			Status:    string(services.ProcessingRunning),
		}))
		return
	}

	result, err := h.manager.Process(c.Request.Context(), session.ID, sources)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	log.WithField("chunks", result.Chunks).Info("Documents processed")
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.UploadResponse{
		SessionID: session.ID,
		Files:     names,
		Status:    string(services.ProcessingReady),
		Result:    result,
	}))
}

// Ask 向会话提问
// POST /api/sessions/:id/ask
func (h *SessionHandler) Ask(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req model.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的请求参数", err.Error()))
		return
	}

	ans, err := session.Ask(c.Request.Context(), req.Question)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewAskResponse(ans)))
}

// History 获取会话的对话记录
// GET /api/sessions/:id/history
func (h *SessionHandler) History(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewHistoryResponse(session.ID, session.History())))
}

// Reset 清空会话的对话记录
// POST /api/sessions/:id/reset
func (h *SessionHandler) Reset(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	session.Reset()
	c.JSON(http.StatusOK, model.NewSuccessResponse(session.Status()))
}

// session 按路径参数查找会话，失败时记录错误
func (h *SessionHandler) session(c *gin.Context) (*services.Session, bool) {
	var uri model.SessionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("无效的会话ID", err.Error()))
		return nil, false
	}
	session, err := h.manager.Get(uri.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return nil, false
	}
	return session, true
}

// readSource 读取上传的文件
func readSource(fh *multipart.FileHeader) (document.Source, error) {
	if _, err := document.DetectContentType(fh.Filename); err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &document.ExtractionError{Source: fh.Filename, Err: err}
	}
	return document.NewSource(fh.Filename, data)
}
