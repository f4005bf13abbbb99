package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/offersync/bridge"
	"github.com/use-agent/offersync/detector"
	"github.com/use-agent/offersync/models"
)

// SessionCheck returns a handler for POST /api/v1/session/check. It scores
// a posted page and records the verdict on board.
func SessionCheck(d *detector.Detector, board *bridge.SessionBoard) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SessionCheckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		sig, err := d.SignalsFromHTML(req.HTML, req.Cookies)
		if err != nil {
			respondError(c, models.NewSyncError(models.ErrCodeInvalidInput, "unreadable page", err))
			return
		}
		v := detector.Score(sig)
		v.At = time.Now()
		if board != nil {
			board.Publish(v)
		}
		c.JSON(http.StatusOK, v)
	}
}

// Session returns a handler for GET /api/v1/session with the latest verdict.
func Session(board *bridge.SessionBoard) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := board.Latest()
		if !ok {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error: &models.ErrorDetail{Code: models.ErrCodeNotRunning, Message: "no session verdict yet"},
			})
			return
		}
		c.JSON(http.StatusOK, v)
	}
}
