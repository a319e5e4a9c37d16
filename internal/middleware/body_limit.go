package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
	"github.com/noah-isme/cutreview-api/pkg/response"
)

// BodyLimit caps request bodies at limit bytes. A declared length over the cap is
// rejected before anything is read; other bodies fail once a handler reads past it.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			response.Error(c, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("request body exceeds %d bytes", limit)))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
