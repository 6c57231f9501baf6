// Package server exposes the flows over HTTP for the CRM's web front end.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tluyben/crmflow/catalog"
	"github.com/tluyben/crmflow/flow"
	"github.com/tluyben/crmflow/flows"
	"go.uber.org/zap"
)

// Options wires the router's collaborators.
type Options struct {
	Catalog     *catalog.Catalog
	Executor    *flow.Executor
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
	Logger      *zap.Logger
}

// Setup builds the gin engine.
func Setup(opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	// promhttp negotiates its own compression.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	h := NewFlowHandler(opts.Catalog, opts.Executor, flows.NewService(opts.Executor), logger)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	{
		fl := api.Group("/flows")
		{
			fl.GET("", h.List)
			fl.GET("/:name", h.Get)
			fl.POST("/:name/execute", h.Execute)
		}
		api.POST("/calls/summarize", h.SummarizeCall)
		api.POST("/scripts/enhance", h.EnhanceScript)
		api.POST("/messages/compose", h.ComposeMultiChannelMessage)
	}
	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.With(zap.String("component", "http"))
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
