package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/bloggers/pkg/logger"
	"github.com/charlesng35/bloggers/pkg/response"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck probes one backing dependency.
type HealthCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Health returns a readiness payload. Any failing probe turns the response into a 503.
func Health(checks ...HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(requestContext(c), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, check := range checks {
			if check.Probe == nil {
				continue
			}
			if err := check.Probe(ctx); err != nil {
				logger.WithModule("health").Warn("health check failed",
					zap.String("check", check.Name),
					zap.Error(err),
				)
				results[check.Name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			results[check.Name] = "up"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		response.Success(c, status, gin.H{"status": overall, "checks": results})
	}
}
