package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/featureops/fsmon-backend-go/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorHandlingMiddleware recovers panics and turns them into 500s. The
// stack goes to the log, never to the client.
func ErrorHandlingMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithFields(logrus.Fields{
			"panic":       recovered,
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"client_ip":   c.ClientIP(),
			"stack_trace": string(debug.Stack()),
		}).Error("Panic recovered in API middleware")

		utils.SendError(c, http.StatusInternalServerError, "Internal server error")
		c.Abort()
	})
}
