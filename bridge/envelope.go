package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/use-agent/offersync/models"
)

// Controller is the orchestrator surface the bridge drives.
type Controller interface {
	Start(ctx context.Context, req models.StartRequest) models.StartResult
	Stop(ctx context.Context) models.StopResult
	Snapshot(ctx context.Context) (models.SyncState, error)
}

// Decode parses and validates a message envelope.
func Decode(data []byte) (models.Envelope, error) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, models.NewSyncError(models.ErrCodeInvalidInput, "malformed message", err)
	}
	return env, Validate(env)
}

// Validate checks that an envelope carries what its type needs.
func Validate(env models.Envelope) error {
	switch env.Type {
	case models.MsgStartSync, models.MsgStopSync, models.MsgGetState:
		return nil
	case models.MsgDataCaptured:
		if env.DataKey == "" {
			return models.NewSyncError(models.ErrCodeInvalidInput, "data_captured without dataKey", nil)
		}
		if len(env.Data) == 0 || !json.Valid(env.Data) {
			return models.NewSyncError(models.ErrCodeInvalidInput, "data_captured without valid data", nil)
		}
		return nil
	case models.MsgLog, models.MsgSessionState, models.MsgSyncProgress:
		return nil
	case "":
		return models.NewSyncError(models.ErrCodeInvalidInput, "message without type", nil)
	default:
		return models.NewSyncError(models.ErrCodeInvalidInput, fmt.Sprintf("unknown message type %q", env.Type), nil)
	}
}

// Accepted is the reply to fire-and-forget messages.
type Accepted struct {
	Accepted bool `json:"accepted"`
}

// Handle answers one envelope. Request/response messages go to ctrl;
// fire-and-forget ones are queued on relay and acknowledged at once.
func Handle(ctx context.Context, ctrl Controller, relay *Relay, env models.Envelope) (any, error) {
	if err := Validate(env); err != nil {
		return nil, err
	}
	switch env.Type {
	case models.MsgStartSync:
		return ctrl.Start(ctx, models.StartRequest{TabID: env.TabID, CruiseLine: env.CruiseLine}), nil
	case models.MsgStopSync:
		return ctrl.Stop(ctx), nil
	case models.MsgGetState:
		st, err := ctrl.Snapshot(ctx)
		if err != nil {
			return nil, models.NewSyncError(models.ErrCodeInternal, "state unavailable", err)
		}
		return st, nil
	default:
		return Accepted{Accepted: relay.Post(env)}, nil
	}
}
