package go_applepay

import (
	"errors"
	"fmt"
)

// ValidationError indicates that a request is missing required fields or contains invalid data.
type ValidationError struct {
	Fields []FieldError
}

type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation error"
	}
	if len(e.Fields) == 1 {
		fe := e.Fields[0]
		if fe.Field == "" {
			return fmt.Sprintf("validation error: %s", fe.Message)
		}
		return fmt.Sprintf("validation error: %s: %s", fe.Field, fe.Message)
	}
	return fmt.Sprintf("validation error: %d fields", len(e.Fields))
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

// IsValidationError checks whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GatewayError represents a non-2xx response from the Apple Pay gateway.
//
// The body is kept for server-side logs and must not be forwarded to browsers.
type GatewayError struct {
	StatusCode int
	Body       []byte
}

func (e *GatewayError) Error() string {
	if e == nil {
		return "apple pay gateway error"
	}
	if len(e.Body) == 0 {
		return fmt.Sprintf("apple pay gateway error: status %d", e.StatusCode)
	}
	b := e.Body
	if len(b) > 1024 {
		b = b[:1024]
	}
	return fmt.Sprintf("apple pay gateway error: status %d: %s", e.StatusCode, string(b))
}

// IsGatewayError checks whether err is a *GatewayError.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
