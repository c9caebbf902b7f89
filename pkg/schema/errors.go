package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeAdmissionRejected = "ADMISSION_REJECTED"
	ErrCodeUploadFailed      = "UPLOAD_FAILED"
	ErrCodeSubmitFailed      = "SUBMIT_FAILED"
	ErrCodeSubmitInFlight    = "SUBMIT_IN_FLIGHT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeStore             = "STORE_ERROR"
)

// EnrollError is the structured error type for all enrollkit operations.
type EnrollError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Field   string         `json:"field,omitempty"`
	Slot    string         `json:"slot,omitempty"`
	Cause   error          `json:"-"`
}

func (e *EnrollError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("[%s] field %s: %s", e.Code, e.Field, e.Message)
	case e.Slot != "":
		return fmt.Sprintf("[%s] slot %s: %s", e.Code, e.Slot, e.Message)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}

func (e *EnrollError) Unwrap() error {
	return e.Cause
}

// NewError creates a new EnrollError.
func NewError(code, message string) *EnrollError {
	return &EnrollError{Code: code, Message: message}
}

// NewErrorf creates a new EnrollError with a formatted message.
func NewErrorf(code, format string, args ...any) *EnrollError {
	return &EnrollError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithField attaches the offending field name to the error.
func (e *EnrollError) WithField(field string) *EnrollError {
	e.Field = field
	return e
}

// WithSlot attaches the attachment slot key to the error.
func (e *EnrollError) WithSlot(slot string) *EnrollError {
	e.Slot = slot
	return e
}

// WithCause attaches an underlying cause.
func (e *EnrollError) WithCause(err error) *EnrollError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *EnrollError) WithDetails(details map[string]any) *EnrollError {
	e.Details = details
	return e
}
