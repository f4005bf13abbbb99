package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/offersync/bridge"
	"github.com/use-agent/offersync/models"
)

// Progress is the source of sync_progress events.
type Progress interface {
	Subscribe() (<-chan models.ProgressEvent, func())
}

// startStatus is the HTTP status of a start_sync answer.
func startStatus(res models.StartResult) int {
	if res.Success {
		return http.StatusOK
	}
	if res.Error != nil {
		return statusFor(res.Error.Code)
	}
	return http.StatusConflict
}

// StartSync returns a handler for POST /api/v1/sync/start.
func StartSync(ctrl bridge.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.StartRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, err)
			return
		}
		res := ctrl.Start(c.Request.Context(), req)
		c.JSON(startStatus(res), res)
	}
}

// StopSync returns a handler for POST /api/v1/sync/stop.
func StopSync(ctrl bridge.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, ctrl.Stop(c.Request.Context()))
	}
}

// Capture returns a handler for POST /api/v1/sync/capture. The payload is
// queued on the relay and acknowledged with 202.
func Capture(relay *bridge.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.DataCaptured
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		env := models.Envelope{Type: models.MsgDataCaptured, DataKey: req.DataKey, Data: req.Data, RunID: req.RunID}
		if err := bridge.Validate(env); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, bridge.Accepted{Accepted: relay.Post(env)})
	}
}

// State returns a handler for GET /api/v1/sync/state.
func State(ctrl bridge.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := ctrl.Snapshot(c.Request.Context())
		if err != nil {
			respondError(c, models.NewSyncError(models.ErrCodeInternal, "state unavailable", err))
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// Events returns a handler for GET /api/v1/sync/events. It streams
// sync_progress events as server-sent events, starting with the latest one,
// until the client goes away.
func Events(progress Progress) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, cancel := progress.Subscribe()
		defer cancel()

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
		ctx := c.Request.Context()
		c.Stream(func(w io.Writer) bool {
			return streamNext(ctx, c, events)
		})
	}
}

func streamNext(ctx context.Context, c *gin.Context, events <-chan models.ProgressEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case ev, ok := <-events:
		if !ok {
			return false
		}
		c.SSEvent(models.MsgSyncProgress, ev)
		return true
	}
}

// Messages returns a handler for POST /api/v1/messages, the generic
// envelope endpoint used by the page-side script.
func Messages(ctrl bridge.Controller, relay *bridge.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBody))
		if err != nil {
			badRequest(c, err)
			return
		}
		env, err := bridge.Decode(body)
		if err != nil {
			respondError(c, err)
			return
		}
		out, err := bridge.Handle(c.Request.Context(), ctrl, relay, env)
		if err != nil {
			respondError(c, err)
			return
		}
		switch v := out.(type) {
		case models.StartResult:
			c.JSON(startStatus(v), v)
		case bridge.Accepted:
			c.JSON(http.StatusAccepted, v)
		default:
			c.JSON(http.StatusOK, v)
		}
	}
}

// maxBody bounds request bodies read by hand.
const maxBody = 16 << 20
