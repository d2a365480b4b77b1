package errors

import "fmt"

// AppError represents an application-level error with a code and optional cause
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Error codes
const (
	ErrCodeChannelDial    = "CHANNEL_DIAL_FAILED"
	ErrCodeChannelClosed  = "CHANNEL_CLOSED"
	ErrCodeChannelEmit    = "CHANNEL_EMIT_FAILED"
	ErrCodeConfigLoad     = "CONFIG_LOAD_FAILED"
	ErrCodeConfigInvalid  = "CONFIG_INVALID"
	ErrCodeHistoryFetch   = "HISTORY_FETCH_FAILED"
	ErrCodeHistoryDelete  = "HISTORY_DELETE_FAILED"
	ErrCodeScenarioLoad   = "SCENARIO_LOAD_FAILED"
	ErrCodeThreadStore    = "THREAD_STORE_FAILED"
	ErrCodeSessionUnknown = "SESSION_UNKNOWN"
	ErrCodeInvalidInput   = "INVALID_INPUT"
)
