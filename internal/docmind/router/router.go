// Package router provides docmind service routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docmind/internal/docmind/handler"
)

// Register registers the docmind routes on engine.
func Register(engine *gin.Engine, h *handler.DocmindHandler) {
	logger.Info("Registering docmind routes...")

	v1 := engine.Group("/v1")
	{
		docmind := v1.Group("/docmind")
		{
			// 摘要任务
			docmind.POST("/summarize", h.Summarize)
			docmind.GET("/jobs/:id", h.Job)
			docmind.GET("/entities/:entity/latest-job", h.LatestJob)
			docmind.GET("/entities/:entity/history", h.History)

			// 问答与会话
			docmind.POST("/ask", h.Ask)
			docmind.GET("/sessions/:id", h.Session)
			docmind.DELETE("/sessions/:id", h.ClearSession)

			docmind.GET("/healthz", h.Healthz)
		}
	}

	logger.Info("HTTP routes registered")
}
