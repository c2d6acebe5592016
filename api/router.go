package api

import (
	"net/http"

	"github.com/fyerfyer/pdf-chat/api/handler"
	"github.com/fyerfyer/pdf-chat/api/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 设置API路由
// transcriptHandler为nil时不注册归档接口
func SetupRouter(
	sessionHandler *handler.SessionHandler,
	transcriptHandler *handler.TranscriptHandler,
) *gin.Engine {
	router := gin.New()

	// 应用全局中间件
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(Cors())

	// 在调试模式下记录请求体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		sessions := api.Group("/sessions")
		{
			// 创建会话 - POST /api/sessions
			sessions.POST("", sessionHandler.CreateSession)

			// 会话列表 - GET /api/sessions
			sessions.GET("", sessionHandler.ListSessions)

			// 会话状态 - GET /api/sessions/:id
			sessions.GET("/:id", sessionHandler.GetSession)

			// 删除会话 - DELETE /api/sessions/:id
			sessions.DELETE("/:id", sessionHandler.DeleteSession)

			// 上传文档 - POST /api/sessions/:id/documents
			sessions.POST("/:id/documents", sessionHandler.UploadDocuments)

			// 提问 - POST /api/sessions/:id/ask
			sessions.POST("/:id/ask", sessionHandler.Ask)

			// 对话记录 - GET /api/sessions/:id/history
			sessions.GET("/:id/history", sessionHandler.History)

			// 清空对话 - POST /api/sessions/:id/reset
			sessions.POST("/:id/reset", sessionHandler.Reset)
		}

		if transcriptHandler != nil {
			transcripts := api.Group("/transcripts")
			{
				transcripts.GET("", transcriptHandler.ListTranscripts)
				transcripts.GET("/:id/messages", transcriptHandler.GetMessages)
				transcripts.DELETE("/:id", transcriptHandler.DeleteTranscript)
			}
		}

		// 健康检查API
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}

// Cors 跨域资源共享中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
