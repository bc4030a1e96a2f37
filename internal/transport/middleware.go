package transport

import (
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"sfdc/internal/core"
)

// Logger is a Gin middleware that logs every request with this node's own
// identity, method, path, status code, and latency. Identity is included
// because a coordinator's log lines are only useful for tracing a
// forwarded-request chain across peers if the reader can tell which node
// emitted them.
func Logger(selfIdentity string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("[%s] %s %s %s | %d | %s",
			selfIdentity,
			c.Request.Method,
			c.Request.URL.Path,
			c.ClientIP(),
			c.Writer.Status(),
			time.Since(start),
		)
	}
}

// Recovery recovers a panic in a later handler (it stands in for Gin's
// own Recovery middleware) and reports it through the
// same {"error","detail"} envelope writeError uses, tagged
// KindUserFetchFailed since a panic mid-fetch is, from a peer's
// perspective, indistinguishable from any other user-fetch failure.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC recovered: %v", r)
				c.AbortWithStatusJSON(statusFor(core.KindUserFetchFailed), gin.H{
					"error":  string(core.KindUserFetchFailed),
					"detail": fmt.Sprintf("panic: %v", r),
				})
			}
		}()
		c.Next()
	}
}
