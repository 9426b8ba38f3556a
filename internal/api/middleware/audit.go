package middleware

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/vuserver/internal/logging"
)

// ActivityWriter persists activity entries.
type ActivityWriter interface {
	LogActivity(activity *logging.Activity) error
}

// Audit records every state-changing API request in the activity log.
// Reads are not recorded.
func Audit(writer ActivityWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if writer == nil || c.Request.Method == http.MethodGet || c.Request.Method == http.MethodOptions {
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		status := c.Writer.Status()
		actor := c.GetString(ContextUsername)
		if actor == "" {
			actor = "anonymous"
		}

		activity := &logging.Activity{
			Actor:        actor,
			ActivityType: logging.ActivityAPIRequest,
			Description:  fmt.Sprintf("%s %s", c.Request.Method, path),
			Success:      status < 400,
			Metadata: map[string]interface{}{
				"status":     status,
				"ip":         c.ClientIP(),
				"user_agent": c.Request.UserAgent(),
			},
		}
		if len(c.Errors) > 0 {
			activity.ErrorMessage = c.Errors.String()
		}

		if err := writer.LogActivity(activity); err != nil {
			log.Printf("[Audit] Failed to record request: %v", err)
		}
	}
}
