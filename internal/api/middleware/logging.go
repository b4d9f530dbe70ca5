package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LoggingMiddleware returns a gin.HandlerFunc for logging requests.
// Prometheus scrapes of /metrics are skipped to keep the log readable.
func LoggingMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		if param.Path == "/metrics" {
			return ""
		}

		fields := logrus.Fields{
			"client_ip":   param.ClientIP,
			"method":      param.Method,
			"path":        param.Path,
			"status_code": param.StatusCode,
			"latency_ms":  param.Latency.Milliseconds(),
		}
		if param.ErrorMessage != "" {
			fields["error_message"] = param.ErrorMessage
		}

		logger.WithFields(fields).Info("HTTP request")
		return ""
	})
}
