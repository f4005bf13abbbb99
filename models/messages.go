package models

import (
	"encoding/json"
	"time"
)

// Message types understood by the bridge. They mirror the cross-context
// message surface of the browser extension.
const (
	MsgStartSync    = "start_sync"
	MsgStopSync     = "stop_sync"
	MsgDataCaptured = "data_captured"
	MsgGetState     = "get_state"
	MsgSyncProgress = "sync_progress"
	MsgSessionState = "session_state"
	MsgLog          = "log"
)

// Envelope is the wire form of every cross-context message. Only the fields
// relevant to Type are populated.
type Envelope struct {
	Type string `json:"type"`

	// start_sync
	TabID      *int   `json:"tabId,omitempty"`
	CruiseLine string `json:"cruiseLine,omitempty"`

	// data_captured
	DataKey string          `json:"dataKey,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	RunID   string          `json:"runId,omitempty"`

	// sync_progress
	Progress *ProgressEvent `json:"progress,omitempty"`

	// session_state
	Session *SessionVerdict `json:"session,omitempty"`

	// log
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
}

// StartRequest is the payload of start_sync.
type StartRequest struct {
	TabID      *int   `json:"tab_id,omitempty"`
	CruiseLine string `json:"cruise_line,omitempty"`
}

// StartResult is the reply to start_sync.
type StartResult struct {
	Success bool         `json:"success"`
	RunID   string       `json:"run_id,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// StopResult is the reply to stop_sync.
type StopResult struct {
	Success bool `json:"success"`
}

// DataCaptured carries a payload from the page or content-script context.
type DataCaptured struct {
	DataKey string          `json:"data_key" binding:"required"`
	Data    json.RawMessage `json:"data" binding:"required"`

	// RunID is optional; captures tagged with another run are discarded.
	RunID string `json:"run_id,omitempty"`
}

// ExtractRequest is the payload for POST /api/v1/extract.
type ExtractRequest struct {
	DataKey       string `json:"data_key" binding:"required"`
	CruiseLine    string `json:"cruise_line,omitempty"`
	URL           string `json:"url,omitempty"`
	HTML          string `json:"html" binding:"required"`
	ExpectedCount int    `json:"expected_count,omitempty" binding:"omitempty,min=0,max=500"`
}

// ExtractResponse is the response for POST /api/v1/extract.
type ExtractResponse struct {
	Success     bool            `json:"success"`
	DataKey     string          `json:"data_key,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Diagnostics []Diagnostic    `json:"diagnostics,omitempty"`
	Partial     bool            `json:"partial,omitempty"`
	CacheStatus string          `json:"cache_status,omitempty"`
	Error       *ErrorDetail    `json:"error,omitempty"`
}

// Diagnostic is one structured log line produced by an extractor.
type Diagnostic struct {
	Level   string `json:"level"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// SessionCheckRequest is the payload for POST /api/v1/session/check.
type SessionCheckRequest struct {
	URL     string   `json:"url,omitempty"`
	HTML    string   `json:"html" binding:"required"`
	Cookies []string `json:"cookies,omitempty"`
}

// SessionVerdict is the output of the session detector.
type SessionVerdict struct {
	LoggedIn  bool      `json:"loggedIn"`
	Score     int       `json:"score"`
	Strong    []string  `json:"strong,omitempty"`
	Weak      []string  `json:"weak,omitempty"`
	CookieHit bool      `json:"cookieHit"`
	At        time.Time `json:"at"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"` // "healthy" or "degraded"
	Uptime  string `json:"uptime"`
	Browser bool   `json:"browser"`
	Running bool   `json:"running"`
	Version string `json:"version"`
}
