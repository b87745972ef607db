package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CtxRequestID is the gin context key under which the request id is stored.
const CtxRequestID = "agora_request_id"

// RequestID reuses the client-supplied X-Request-ID when present and
// generates one otherwise. The id is echoed on the response so callers
// can correlate log lines across services.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(CtxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// RequestTimeout bounds every request's context so slow database work
// surfaces as a 504 instead of an open socket. Handlers translate the
// resulting context.DeadlineExceeded themselves.
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
