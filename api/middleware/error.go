package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/fyerfyer/pdf-chat/api/model"
	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/models"
	"github.com/fyerfyer/pdf-chat/internal/provider"
	"github.com/fyerfyer/pdf-chat/internal/services"
	"github.com/fyerfyer/pdf-chat/internal/vectordb"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// 定义应用中的错误类型常量
const (
	ErrorTypeValidation  = "VALIDATION_ERROR"  // 输入验证错误
	ErrorTypeNotFound    = "NOT_FOUND_ERROR"   // 资源不存在错误
	ErrorTypeNotReady    = "NOT_READY_ERROR"   // 文档尚未处理
	ErrorTypeConflict    = "CONFLICT_ERROR"    // 处理请求被取代
	ErrorTypeExtraction  = "EXTRACTION_ERROR"  // 文档无法提取文本
	ErrorTypeTimeout     = "TIMEOUT_ERROR"     // 模型服务超时
	ErrorTypeUnavailable = "UNAVAILABLE_ERROR" // 模型服务暂时不可用
	ErrorTypeUpstream    = "UPSTREAM_ERROR"    // 模型服务拒绝请求
	ErrorTypeInternal    = "INTERNAL_ERROR"    // 内部服务器错误
)

// AppError 应用错误结构体
type AppError struct {
	Type    string // 错误类型
	Message string // 错误消息
	Details string // 详细错误信息
	Code    int    // HTTP状态码
}

// Error 实现error接口的方法
func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// FromError 将领域错误映射为应用错误
func FromError(err error) AppError {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var (
		notReady   *services.NotReadyError
		extractErr *document.ExtractionError
		configErr  *document.ConfigError
		timeoutErr *provider.TimeoutError
		validErrs  validator.ValidationErrors
		buildErr   *vectordb.IndexBuildError
		answerErr  *services.AnswerError
	)

	detail := err.Error()
	switch {
	case errors.Is(err, services.ErrSessionNotFound), errors.Is(err, models.ErrSessionNotFound):
		return AppError{Type: ErrorTypeNotFound, Message: "会话不存在", Details: detail, Code: http.StatusNotFound}
	case errors.As(err, &notReady):
		return AppError{Type: ErrorTypeNotReady, Message: "请先上传并处理文档", Details: detail, Code: http.StatusConflict}
	case errors.Is(err, services.ErrSuperseded):
		return AppError{Type: ErrorTypeConflict, Message: "文档处理已被新的请求取代", Details: detail, Code: http.StatusConflict}
	case errors.Is(err, services.ErrEmptyQuestion),
		errors.Is(err, document.ErrNoDocuments),
		errors.Is(err, document.ErrUnsupportedFormat),
		errors.As(err, &configErr),
		errors.As(err, &validErrs):
		return NewValidationError("无效的请求参数", detail)
	case errors.Is(err, document.ErrNoText), errors.As(err, &extractErr):
		return AppError{Type: ErrorTypeExtraction, Message: "无法从文档中提取文本", Details: detail, Code: http.StatusUnprocessableEntity}
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return AppError{Type: ErrorTypeTimeout, Message: "模型服务响应超时", Details: detail, Code: http.StatusGatewayTimeout}
	case provider.IsRetryable(err):
		return AppError{Type: ErrorTypeUnavailable, Message: "模型服务暂时不可用，请稍后重试", Details: detail, Code: http.StatusServiceUnavailable}
	case errors.As(err, &answerErr), errors.As(err, &buildErr):
		return AppError{Type: ErrorTypeUpstream, Message: "模型服务调用失败", Details: detail, Code: http.StatusBadGateway}
	default:
		return NewInternalError("服务器内部错误", detail)
	}
}

// ErrorHandler 统一错误处理中间件
// 恢复panic，并把处理器记录的最后一个错误写成统一响应
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithFields(logrus.Fields{
					FieldError: rec,
					"stack":    string(debug.Stack()),
					FieldPath:  c.Request.URL.Path,
				}).Error("Panic recovered in API request")

				resp := model.NewErrorResponse(http.StatusInternalServerError, "An unexpected error occurred")
				if gin.Mode() == gin.DebugMode {
					resp.Message = fmt.Sprintf("Panic: %v", rec)
				}
				resp.TraceID = c.GetString(TraceIDKey)
				c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := FromError(c.Errors.Last().Err)
		traceID := c.GetString(TraceIDKey)

		entry := log.WithFields(logrus.Fields{
			"error_type": appErr.Type,
			FieldTraceID: traceID,
			FieldPath:    c.Request.URL.Path,
			FieldError:   appErr.Details,
			FieldStatus:  appErr.Code,
		})
		if appErr.Code >= http.StatusInternalServerError {
			entry.Error(appErr.Message)
		} else {
			entry.Warn(appErr.Message)
		}

		resp := model.NewErrorResponse(appErr.Code, appErr.Message)
		if gin.Mode() == gin.DebugMode && appErr.Details != "" {
			resp.Message = appErr.Message + ": " + appErr.Details
		}
		resp.TraceID = traceID

		c.AbortWithStatusJSON(appErr.Code, resp)
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
}
