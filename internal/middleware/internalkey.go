package middleware

import (
  "crypto/subtle"
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/medclinic/rag-server/internal/logger"
)

const internalKeyHeader = "X-Internal-Key"

// InternalMiddleware guards the index/reindex surface, which is called by
// the application server and operational scripts, never by end users.
type InternalMiddleware struct {
  log    *logger.Logger
  secret string
}

func NewInternalMiddleware(log *logger.Logger, secret string) *InternalMiddleware {
  middlewareLog := log.With("middleware", "InternalMiddleware")
  return &InternalMiddleware{log: middlewareLog, secret: secret}
}

func (im *InternalMiddleware) RequireInternalKey() gin.HandlerFunc {
  return func(c *gin.Context) {
    key := c.GetHeader(internalKeyHeader)
    if im.secret == "" || key == "" ||
      subtle.ConstantTimeCompare([]byte(key), []byte(im.secret)) != 1 {
      im.log.Warn("Internal key rejected", "path", c.Request.URL.Path)
      c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
      return
    }
    c.Next()
  }
}
