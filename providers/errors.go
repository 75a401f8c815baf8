package providers

import "fmt"

// ErrorKind is the error taxonomy from spec.md 7.
type ErrorKind string

const (
	ErrorHTTPStatus ErrorKind = "http_status"
	ErrorTimeout    ErrorKind = "timeout"
	ErrorParse      ErrorKind = "parse"
	ErrorAPIError   ErrorKind = "api_error"
	ErrorInternal   ErrorKind = "internal"
)

// StreamError is the typed error a provider client / parser returns. It
// implements the error interface so callers that don't care about the
// taxonomy can still treat it as a plain error.
type StreamError struct {
	Kind    ErrorKind
	Message string
	Status  int    // set for ErrorHTTPStatus
	Body    string // set for ErrorHTTPStatus
	APIType string // set for ErrorAPIError
}

func (e *StreamError) Error() string {
	switch e.Kind {
	case ErrorHTTPStatus:
		return fmt.Sprintf("http status %d: %s", e.Status, e.Message)
	case ErrorAPIError:
		return fmt.Sprintf("api error (%s): %s", e.APIType, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func NewHTTPStatusError(status int, body string) *StreamError {
	return &StreamError{Kind: ErrorHTTPStatus, Status: status, Body: body, Message: body}
}

func NewTimeoutError(msg string) *StreamError {
	return &StreamError{Kind: ErrorTimeout, Message: msg}
}

func NewParseError(msg string) *StreamError {
	return &StreamError{Kind: ErrorParse, Message: msg}
}

func NewAPIError(apiType, msg string) *StreamError {
	return &StreamError{Kind: ErrorAPIError, APIType: apiType, Message: msg}
}

func NewInternalError(msg string) *StreamError {
	return &StreamError{Kind: ErrorInternal, Message: msg}
}
