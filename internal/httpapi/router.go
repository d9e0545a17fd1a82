package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
)

// NewRouter builds the gin engine. A non-nil metrics handler is mounted at /metrics.
func NewRouter(h *Handler, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(h.logger))

	router.GET("/healthz", h.Health)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/files", h.Upload)
		v1.GET("/files", h.Get)
		v1.DELETE("/files", h.Delete)
		v1.POST("/files/fetch", h.Fetch)
		v1.GET("/dirs", h.ListDir)
		v1.GET("/pool", h.PoolStats)
	}

	return router
}

// RequestLogger logs each request at V(1), and failures at info level.
func RequestLogger(logger logr.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		kv := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
		}
		if status >= http.StatusInternalServerError {
			logger.Info("request failed", kv...)
			return
		}
		logger.V(1).Info("request", kv...)
	}
}
