// Package errors provides the error taxonomy shared by the chat client.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Sentinel errors for common cases
var (
	ErrAuthFailed      = errors.New("authentication failed")
	ErrInvalidResponse = errors.New("invalid response format")
	ErrStreamClosed    = errors.New("stream closed before completion")
	ErrEmptyPrompt     = errors.New("prompt cannot be empty")
	ErrNoConversation  = errors.New("no active conversation")
)

// codeMessages maps backend business codes to user-facing text.
var codeMessages = map[int]string{
	1000: "validation failed",
	1001: "invalid username or password",
	1002: "user not found or disabled",
	1003: "registration failed",
	1004: "username already exists",
	1005: "email already exists",
	500:  "internal server error",
}

// MessageForCode returns the friendly text for a backend business code,
// falling back to fallback and then to a generic message.
func MessageForCode(code int, fallback string) string {
	if msg, ok := codeMessages[code]; ok {
		return msg
	}
	if fallback != "" {
		return fallback
	}
	return "request failed"
}

// AuthError represents a rejected bearer token
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "authentication failed: token may have expired"
	}
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// Is allows comparison with sentinel errors
func (e *AuthError) Is(target error) bool {
	if target == ErrAuthFailed {
		return true
	}
	_, ok := target.(*AuthError)
	return ok
}

// NewAuthError creates a new AuthError
func NewAuthError(message string) *AuthError {
	return &AuthError{Message: message}
}

// APIError represents a non-2xx answer from the backend
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("API error [%d] at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("API error at %s: %s", e.Endpoint, e.Message)
}

// NewAPIError creates a new APIError
func NewAPIError(statusCode int, endpoint, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Endpoint:   endpoint,
		Message:    message,
	}
}

// FromStatus converts an HTTP status and response body into a typed error.
// The backend wraps failures as {code, message}; when present they win over
// the bare status text.
func FromStatus(status int, endpoint, body string) error {
	message := http.StatusText(status)
	code := 0
	if gjson.Valid(body) {
		parsed := gjson.Parse(body)
		code = int(parsed.Get("code").Int())
		if m := parsed.Get("message").String(); m != "" {
			message = m
		}
		if code != 0 {
			message = MessageForCode(code, message)
		}
	}

	if status == http.StatusUnauthorized {
		return NewAuthError(message)
	}

	if len(body) > 4096 {
		body = body[:4096]
	}
	return &APIError{
		StatusCode: status,
		Code:       code,
		Message:    message,
		Endpoint:   endpoint,
		Body:       body,
	}
}

// NetworkError represents a transport failure before any response arrived
type NetworkError struct {
	Operation string
	Endpoint  string
	Err       error
}

func (e *NetworkError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("network error during %s at %s: %v", e.Operation, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("network error during %s: %v", e.Operation, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NewNetworkError creates a new NetworkError
func NewNetworkError(operation, endpoint string, err error) *NetworkError {
	return &NetworkError{Operation: operation, Endpoint: endpoint, Err: err}
}

// TimeoutError represents a request timeout
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string {
	if e.Message == "" {
		return "request timed out"
	}
	return fmt.Sprintf("request timed out: %s", e.Message)
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(message string) *TimeoutError {
	return &TimeoutError{Message: message}
}

// ParseError represents a response parsing error
type ParseError struct {
	Message string
	Path    string
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("parse error at %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

// Is allows comparison with sentinel errors
func (e *ParseError) Is(target error) bool {
	if target == ErrInvalidResponse {
		return true
	}
	_, ok := target.(*ParseError)
	return ok
}

// NewParseError creates a new ParseError
func NewParseError(message, path string) *ParseError {
	return &ParseError{Message: message, Path: path}
}

// StreamError is reported when the event stream fails or the server emits
// an error event.
type StreamError struct {
	Code    string
	Message string
	Err     error
}

func (e *StreamError) Error() string {
	var sb strings.Builder
	sb.WriteString("stream error")
	if e.Code != "" {
		sb.WriteString(" [")
		sb.WriteString(e.Code)
		sb.WriteString("]")
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	} else if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *StreamError) Unwrap() error { return e.Err }

// NewStreamError creates a StreamError from a server error event
func NewStreamError(code, message string) *StreamError {
	return &StreamError{Code: code, Message: message}
}

// WrapStreamError wraps a transport failure
func WrapStreamError(err error) *StreamError {
	return &StreamError{Err: err}
}

// SendError wraps a failure of the send collaborator
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// NewSendError creates a new SendError
func NewSendError(err error) *SendError {
	return &SendError{Err: err}
}

// HistoryError wraps a failure to load a history page
type HistoryError struct {
	ConversationID string
	Err            error
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("failed to load history for conversation %s: %v", e.ConversationID, e.Err)
}

func (e *HistoryError) Unwrap() error { return e.Err }

// NewHistoryError creates a new HistoryError
func NewHistoryError(conversationID string, err error) *HistoryError {
	return &HistoryError{ConversationID: conversationID, Err: err}
}

// IsAuthError reports whether err is, or wraps, an authentication failure
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}

// IsNetworkError reports whether err is, or wraps, a NetworkError
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsTimeoutError reports whether err is, or wraps, a TimeoutError
func IsTimeoutError(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// StatusCode extracts the HTTP status from err, or 0
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	if IsAuthError(err) {
		return http.StatusUnauthorized
	}
	return 0
}

// GetEndpoint extracts the endpoint an error refers to, or ""
func GetEndpoint(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Endpoint
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Endpoint
	}
	return ""
}
