package httpapi

import (
	"log/slog"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/jinford/repo-analyst/internal/platform/config"
	"github.com/jinford/repo-analyst/internal/platform/metrics"
)

// RouterDeps はルータが必要とする依存
type RouterDeps struct {
	Analyzer Analyzer
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// NewRouter は gin エンジンを構築する
func NewRouter(cfg config.AppConfig, deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(AccessLog(logger, deps.Metrics))
	router.Use(CORS(cfg.AllowOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	router.GET("/health", Health)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	api := router.Group(apiPrefix(cfg.APIPrefix))
	analysisHandler := NewAnalysisHandler(deps.Analyzer, logger)
	api.POST("/analysis/run", analysisHandler.Run)

	return router
}

// apiPrefix は "/api/" や "api" を "/api" に揃える
func apiPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "/"
	}
	return "/" + prefix
}
