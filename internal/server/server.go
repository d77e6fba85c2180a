// Package server exposes the answer pipeline and the mapping table over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lextransition/internal/index"
	"lextransition/internal/mapping"
	"lextransition/internal/models"
	"lextransition/internal/resolver"
)

// RequestIDHeader carries the request ID in and out
const RequestIDHeader = "X-Request-ID"

// Answerer runs questions and documents through the grounding pipeline
type Answerer interface {
	Ask(ctx context.Context, question string) models.Answer
	AnalyzeDocument(ctx context.Context, doc resolver.Document, question string) models.Answer
}

// Deps are the components the handlers serve
type Deps struct {
	Answerer Answerer
	Table    *mapping.Table
	Index    *index.Index
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Handler handles HTTP requests
type Handler struct {
	answerer Answerer
	table    *mapping.Table
	index    *index.Index
	logger   *slog.Logger
}

// NewRouter builds the gin engine with all routes registered
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.NewRegistry()
	}
	h := &Handler{answerer: d.Answerer, table: d.Table, index: d.Index, logger: d.Logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(d.Logger))

	// Health check endpoint
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	// API routes
	api := r.Group("/api")
	{
		api.POST("/ask", h.Ask)
		api.POST("/documents/analyze", h.AnalyzeDocument)
		api.POST("/resolve", h.Resolve)

		api.GET("/mappings", h.ListMappings)
		api.GET("/mappings/:family/:section", h.GetMapping)
		api.GET("/sections/:family/:section/predecessors", h.Predecessors)
		api.GET("/categories", h.Categories)

		api.GET("/index/stats", h.IndexStats)
	}

	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("Request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", c.GetString("request_id"))
	}
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
