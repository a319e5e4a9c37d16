package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cutreview-api/internal/service"
	"github.com/noah-isme/cutreview-api/pkg/response"
)

// ProjectAccessHeader carries an access proof for clients that cannot use cookies.
const ProjectAccessHeader = "X-Project-Access"

// ProjectGate blocks review routes of password protected projects until the caller
// presents a proof issued by the gate. The project editor passes without one.
func ProjectGate(gate *service.PasswordGate, guard *service.AccessGuard, cookiePrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("id")
		actor := ActorFrom(c)

		if actor.Authenticated {
			editor, err := guard.IsProjectEditor(c.Request.Context(), actor, projectID)
			if err != nil {
				response.Error(c, err)
				c.Abort()
				return
			}
			if editor {
				SetMeta(c, "editor_access", true)
				c.Next()
				return
			}
		}

		token := c.GetHeader(ProjectAccessHeader)
		if token == "" {
			if cookie, err := c.Cookie(cookiePrefix + projectID); err == nil {
				token = cookie
			}
		}
		if err := gate.Check(c.Request.Context(), projectID, token); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}
