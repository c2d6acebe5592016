package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fyerfyer/pdf-chat/api/model"
	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/embedding"
	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/fyerfyer/pdf-chat/internal/provider"
	"github.com/fyerfyer/pdf-chat/internal/services"
	"github.com/fyerfyer/pdf-chat/internal/vectordb"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"session not found", fmt.Errorf("lookup: %w", services.ErrSessionNotFound), http.StatusNotFound},
		{"not ready", &services.NotReadyError{SessionID: "s1"}, http.StatusConflict},
		{"superseded", services.ErrSuperseded, http.StatusConflict},
		{"empty question", services.ErrEmptyQuestion, http.StatusBadRequest},
		{"no documents", document.ErrNoDocuments, http.StatusBadRequest},
		{"unsupported format", fmt.Errorf("%w: a.docx", document.ErrUnsupportedFormat), http.StatusBadRequest},
		{"chunk config", &document.ConfigError{Field: "chunk_overlap", Message: "too big"}, http.StatusBadRequest},
		{"no text", document.ErrNoText, http.StatusUnprocessableEntity},
		{"extraction", &document.ExtractionError{Source: "a.pdf", Err: errors.New("broken xref")}, http.StatusUnprocessableEntity},
		{
			"timeout",
			&services.AnswerError{Stage: services.StageGenerate, Err: &provider.TimeoutError{Provider: "gemini", Timeout: time.Second, Err: context.DeadlineExceeded}},
			http.StatusGatewayTimeout,
		},
		{
			"retryable provider",
			&services.AnswerError{Stage: services.StageEmbed, Err: embedding.NewEmbeddingError(embedding.ErrCodeRateLimited, "slow down")},
			http.StatusServiceUnavailable,
		},
		{
			"fatal provider",
			&services.AnswerError{Stage: services.StageGenerate, Err: llm.NewLLMError(llm.ErrCodeInvalidAPIKey, llm.ErrMsgInvalidAPIKey)},
			http.StatusBadGateway,
		},
		{
			"fatal index build",
			&vectordb.IndexBuildError{Chunks: 3, Err: embedding.NewEmbeddingError(embedding.ErrCodeInvalidAPIKey, "bad key")},
			http.StatusBadGateway,
		},
		{"app error passthrough", NewNotFoundError("gone"), http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, FromError(tt.err).Code)
		})
	}
}

func TestErrorHandlerWritesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SetTraceID(), ErrorHandler())
	r.GET("/fail", func(c *gin.Context) {
		HandleError(c, &services.NotReadyError{SessionID: "s1"})
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("unexpected")
	})

	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
	var resp model.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "trace-123", resp.TraceID)
	assert.NotEmpty(t, resp.Message)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
