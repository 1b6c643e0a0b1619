package middleware

import (
	"context"
	"strings"
	"time"

	"campusjudge/pkg/utils/contextkey"
	"campusjudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TraceIDHeader   = "X-Trace-Id"
	RequestIDHeader = "X-Request-Id"
	UserIDHeader    = "X-User-Id"
)

// TraceContext puts trace/request ids (generated when absent) into the gin and
// request contexts and echoes them back. A gateway-supplied X-User-Id is
// propagated the same way.
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ctx = bind(c, ctx, TraceIDHeader, "trace_id", contextkey.TraceID, true)
		ctx = bind(c, ctx, RequestIDHeader, "request_id", contextkey.RequestID, true)
		ctx = bind(c, ctx, UserIDHeader, "user_id", contextkey.UserID, false)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bind(c *gin.Context, ctx context.Context, header, ginKey string, key interface{}, generate bool) context.Context {
	value := strings.TrimSpace(c.GetHeader(header))
	if value == "" {
		if !generate {
			return ctx
		}
		value = uuid.NewString()
	}
	c.Set(ginKey, value)
	c.Writer.Header().Set(header, value)
	return context.WithValue(ctx, key, value)
}

// RequestLogger logs one line per request after the handler chain finishes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info(c.Request.Context(), "http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
