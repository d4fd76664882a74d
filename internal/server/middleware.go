package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wetty-chat/member-service/internal/auth"
)

const (
	ctxUID       = "uid"
	ctxRequestID = "request_id"

	headerRequestID = "X-Request-Id"
)

// RequestID assigns each request an id, honoring one supplied by the
// edge proxy.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestID, requestID)
		c.Header(headerRequestID, requestID)
		c.Next()
	}
}

// Logging emits one structured line per request.
func Logging(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"request_id": c.GetString(ctxRequestID),
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
		}).Info("request handled")
	}
}

// Identity resolves the caller's uid and aborts with 401 before any
// handler runs when resolution fails.
func Identity(resolver auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := resolver.ResolveCaller(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or invalid caller identity",
			})
			return
		}
		c.Set(ctxUID, uid)
		c.Next()
	}
}

func callerUID(c *gin.Context) int64 {
	return c.GetInt64(ctxUID)
}
