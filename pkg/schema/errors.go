package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeMalformedInput   = "MALFORMED_INPUT"
	ErrCodeMissingReference = "MISSING_REFERENCE"
	ErrCodeUnresolvedLabel  = "UNRESOLVED_LABEL"
	ErrCodeCycleGuard       = "CYCLE_GUARD"
	ErrCodeGeneration       = "GENERATION_ERROR"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeStore            = "STORE_ERROR"
	ErrCodeQuery            = "QUERY_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeSessionExpired   = "SESSION_EXPIRED"
)

// SOPError is the structured error type for all sopgen operations.
type SOPError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Ref     string         `json:"ref,omitempty"`
	Cause   error          `json:"-"`
}

func (e *SOPError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.Ref, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *SOPError) Unwrap() error {
	return e.Cause
}

// NewError creates a new SOPError.
func NewError(code, message string) *SOPError {
	return &SOPError{Code: code, Message: message}
}

// NewErrorf creates a new SOPError with a formatted message.
func NewErrorf(code, format string, args ...any) *SOPError {
	return &SOPError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithRef attaches the step reference the error occurred at.
func (e *SOPError) WithRef(ref string) *SOPError {
	e.Ref = ref
	return e
}

// WithCause attaches an underlying cause.
func (e *SOPError) WithCause(err error) *SOPError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *SOPError) WithDetails(details map[string]any) *SOPError {
	e.Details = details
	return e
}
