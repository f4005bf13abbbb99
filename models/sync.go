package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Brand identifies which cruise line's loyalty site is being synced.
type Brand string

const (
	BrandRoyal     Brand = "royal"
	BrandCelebrity Brand = "celebrity"
)

// ParseBrand maps a user-supplied cruise line name to a Brand.
// The second return value is false for unknown names.
func ParseBrand(s string) (Brand, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "royal", "royalcaribbean", "royal caribbean", "rci":
		return BrandRoyal, true
	case "celebrity", "celebritycruises", "celebrity cruises", "x":
		return BrandCelebrity, true
	}
	return "", false
}

// DetectBrand guesses the brand from a page hostname.
func DetectBrand(host string) Brand {
	if strings.Contains(strings.ToLower(host), "celebritycruises") {
		return BrandCelebrity
	}
	return BrandRoyal
}

// BaseURL returns the site root that step paths are appended to.
func (b Brand) BaseURL() string {
	if b == BrandCelebrity {
		return "https://www.celebritycruises.com"
	}
	return "https://www.royalcaribbean.com"
}

// Status is the lifecycle state of a sync run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusError     Status = "error"
)

// ProgressStatus is the status carried by a sync_progress event.
type ProgressStatus string

const (
	ProgressStarted   ProgressStatus = "started"
	ProgressLoading   ProgressStatus = "loading"
	ProgressCompleted ProgressStatus = "completed"
	ProgressWarning   ProgressStatus = "warning"
	ProgressError     ProgressStatus = "error"
	ProgressStopped   ProgressStatus = "stopped"
)

// CaptureSource says how a step's payload reaches the orchestrator.
type CaptureSource string

const (
	// SourceNetwork steps are satisfied by intercepting an API response
	// whose URL contains the step's WaitFor marker.
	SourceNetwork CaptureSource = "network"

	// SourceDOM steps are satisfied by running an extractor over the
	// rendered page.
	SourceDOM CaptureSource = "dom"
)

// StepDefinition is one statically declared unit of a sync run.
type StepDefinition struct {
	Name    string           `json:"name"`
	Paths   map[Brand]string `json:"paths"`
	WaitFor string           `json:"waitFor"`
	DataKey string           `json:"dataKey"`
	Source  CaptureSource    `json:"source"`
}

// Path returns the brand-specific path, falling back to the royal path.
func (s StepDefinition) Path(b Brand) string {
	if p, ok := s.Paths[b]; ok {
		return p
	}
	return s.Paths[BrandRoyal]
}

// SyncState is the single mutable record of the current (or last) run.
// It is owned by the orchestrator; everyone else sees copies.
type SyncState struct {
	RunID        string                     `json:"runId,omitempty"`
	IsRunning    bool                       `json:"isRunning"`
	Status       Status                     `json:"status"`
	TabID        int                        `json:"tabId"`
	Step         int                        `json:"step"`
	TotalSteps   int                        `json:"totalSteps"`
	CapturedData map[string]json.RawMessage `json:"capturedData"`
	CruiseLine   Brand                      `json:"cruiseLine,omitempty"`
	BaseURL      string                     `json:"baseUrl,omitempty"`
	LastProgress *ProgressEvent             `json:"lastProgress,omitempty"`
	Summary      *Summary                   `json:"summary,omitempty"`
	StartedAt    time.Time                  `json:"startedAt,omitzero"`
	UpdatedAt    time.Time                  `json:"updatedAt,omitzero"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s SyncState) Clone() SyncState {
	out := s
	if s.CapturedData != nil {
		out.CapturedData = make(map[string]json.RawMessage, len(s.CapturedData))
		for k, v := range s.CapturedData {
			if v == nil {
				out.CapturedData[k] = nil
				continue
			}
			out.CapturedData[k] = append(json.RawMessage(nil), v...)
		}
	}
	if s.LastProgress != nil {
		p := *s.LastProgress
		out.LastProgress = &p
	}
	if s.Summary != nil {
		sum := *s.Summary
		sum.SkippedSteps = append([]string(nil), s.Summary.SkippedSteps...)
		out.Summary = &sum
	}
	return out
}

// ProgressEvent is the sync_progress broadcast. Only the latest one is kept.
type ProgressEvent struct {
	RunID      string          `json:"runId,omitempty"`
	Step       int             `json:"step"`
	TotalSteps int             `json:"totalSteps"`
	Message    string          `json:"message"`
	Status     ProgressStatus  `json:"status"`
	DataKey    string          `json:"dataKey,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Summary    *Summary        `json:"summary,omitempty"`
	At         time.Time       `json:"at"`
}

// Terminal reports whether the event ends a run from the UI's point of view.
func (e ProgressEvent) Terminal() bool {
	switch e.Status {
	case ProgressStopped:
		return true
	case ProgressCompleted:
		return e.Data != nil
	}
	return false
}

// Summary counts what a completed run captured.
type Summary struct {
	Offers          int      `json:"offers"`
	UpcomingCruises int      `json:"upcomingCruises"`
	CourtesyHolds   int      `json:"courtesyHolds"`
	LoyaltyCaptured bool     `json:"loyaltyCaptured"`
	CapturedSteps   int      `json:"capturedSteps"`
	SkippedSteps    []string `json:"skippedSteps,omitempty"`
}
