package entities

import "fmt"

// Error types carried by ErrorDetail.Type.
const (
	ErrorTypeAllocation  = "allocation"
	ErrorTypeOperational = "operational"
	ErrorTypeDecode      = "decode"
	ErrorTypeValidation  = "validation"
	ErrorTypePanic       = "panic"
	ErrorTypeInternal    = "internal"
)

// ErrorDetail provides structured error information.
// It is the form in which Go-side failures are logged and, flattened through
// Error(), the message written into an envelope's error field.
type ErrorDetail struct {
	// Wrapped contains a wrapped error for error chains.
	Wrapped *ErrorDetail `json:"wrapped,omitempty"`

	// Details contains additional error context.
	Details map[string]any `json:"details,omitempty"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Type categorizes the error.
	Type string `json:"type"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`

	// Stack contains the stack trace for panic errors.
	Stack []byte `json:"stack,omitempty"`
}

// Error implements the error interface.
func (e *ErrorDetail) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.Wrapped != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Wrapped.Error())
	}
	return msg
}

// NewErrorDetail creates a new ErrorDetail with the given type and message.
func NewErrorDetail(errorType, message string) *ErrorDetail {
	return &ErrorDetail{
		Type:    errorType,
		Message: message,
	}
}

// WithDetails attaches details and returns e.
func (e *ErrorDetail) WithDetails(details map[string]any) *ErrorDetail {
	e.Details = details
	return e
}

// WithCode attaches a code and returns e.
func (e *ErrorDetail) WithCode(code string) *ErrorDetail {
	e.Code = code
	return e
}
