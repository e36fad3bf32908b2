package httpapi

import (
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-Id"
	requestIDKey    = "request_id"
)

// RequestID は X-Request-Id を引き継ぎ、なければ採番する
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set(requestIDHeader, id)
		c.Set(requestIDKey, id)
		c.Next()
	}
}

// CORS は許可リストに従って CORS ヘッダを付与する。"*" を含む場合は全許可
func CORS(allowOrigins []string) gin.HandlerFunc {
	allowAll := len(allowOrigins) == 0 || slices.Contains(allowOrigins, "*")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(allowOrigins, origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id")
		c.Header("Access-Control-Expose-Headers", requestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// HTTPObserver はリクエスト数を記録する
type HTTPObserver interface {
	ObserveHTTP(method, route, status string)
}

// AccessLog はリクエストごとにアクセスログを出し、メトリクスを記録する
func AccessLog(logger *slog.Logger, observer HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		if observer != nil {
			observer.ObserveHTTP(c.Request.Method, route, strconv.Itoa(status))
		}

		logger.Info("HTTPリクエスト",
			"requestId", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", time.Since(started),
		)
	}
}
