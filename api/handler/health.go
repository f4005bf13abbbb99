package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/offersync/bridge"
	"github.com/use-agent/offersync/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// browserUp is nil when the service runs without a browser. The status is
// degraded when a configured browser stops answering.
func Health(ctrl bridge.Controller, browserUp func() bool, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.HealthResponse{
			Status:  "healthy",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: Version,
		}
		if browserUp != nil {
			resp.Browser = browserUp()
			if !resp.Browser {
				resp.Status = "degraded"
			}
		}
		if st, err := ctrl.Snapshot(c.Request.Context()); err == nil {
			resp.Running = st.IsRunning
		}
		c.JSON(http.StatusOK, resp)
	}
}
