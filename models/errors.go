package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeAlreadyRunning = "ALREADY_RUNNING"
	ErrCodeNotRunning     = "NOT_RUNNING"
	ErrCodeTabNotFound    = "TAB_NOT_FOUND"
	ErrCodeNavigation     = "NAVIGATION_FAILED"
	ErrCodeStepTimeout    = "STEP_TIMEOUT"
	ErrCodeExtraction     = "EXTRACTION_FAILED"
	ErrCodeBrowser        = "BROWSER_UNAVAILABLE"
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SyncError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type SyncError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewSyncError creates a new SyncError.
func NewSyncError(code, message string, err error) *SyncError {
	return &SyncError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *SyncError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// ErrorResponse is the body of any failed API call.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}
