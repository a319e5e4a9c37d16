package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appErrors "github.com/noah-isme/cutreview-api/pkg/errors"
	"github.com/noah-isme/cutreview-api/pkg/response"
)

// UUIDParams answers 404 when one of the named path parameters is present but is not
// a UUID. Identifiers are UUID columns, so such a value can never match a row.
func UUIDParams(names ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, name := range names {
			value := c.Param(name)
			if value == "" {
				continue
			}
			if _, err := uuid.Parse(value); err != nil {
				response.Error(c, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", name)))
				c.Abort()
				return
			}
		}
		c.Next()
	}
}
