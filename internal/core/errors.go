package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorType identifies a failure category. The set is closed.
type ErrorType string

const (
	ErrorUserNotFound   ErrorType = "USER_NOT_FOUND"
	ErrorUserSuspended  ErrorType = "USER_SUSPENDED"
	ErrorRateLimited    ErrorType = "RATE_LIMITED"
	ErrorAPIUnavailable ErrorType = "API_UNAVAILABLE"
	ErrorNetwork        ErrorType = "NETWORK_ERROR"
	ErrorInvalidData    ErrorType = "INVALID_DATA"
	ErrorDatabase       ErrorType = "DATABASE_ERROR"
	ErrorAuthFailure    ErrorType = "AUTH_FAILURE"
	ErrorUnknown        ErrorType = "UNKNOWN_ERROR"
)

// ErrorTypes lists every category in the taxonomy.
var ErrorTypes = []ErrorType{
	ErrorUserNotFound,
	ErrorUserSuspended,
	ErrorRateLimited,
	ErrorAPIUnavailable,
	ErrorNetwork,
	ErrorInvalidData,
	ErrorDatabase,
	ErrorAuthFailure,
	ErrorUnknown,
}

const unknownFallbackMessage = "An unknown error occurred"

var userMessages = map[ErrorType]string{
	ErrorUserNotFound:   "Reddit user not found. Please check the username and try again.",
	ErrorUserSuspended:  "This Reddit account is suspended or private.",
	ErrorRateLimited:    "Reddit API rate limit exceeded. Please try again later.",
	ErrorAPIUnavailable: "Reddit API is temporarily unavailable. Please try again later.",
	ErrorNetwork:        "Network error while contacting Reddit. Please check your connection and try again.",
	ErrorInvalidData:    "Invalid data received from the Reddit API.",
	ErrorDatabase:       "Database error occurred. Please try again later.",
	ErrorAuthFailure:    "Failed to authenticate with the Reddit API.",
}

// Retryable reports the default retry policy for a category.
func (t ErrorType) Retryable() bool {
	switch t {
	case ErrorUserNotFound, ErrorUserSuspended, ErrorInvalidData:
		return false
	default:
		return true
	}
}

// HTTPStatus is the status code reported at HTTP boundaries for a category.
func (t ErrorType) HTTPStatus() int {
	switch t {
	case ErrorUserNotFound:
		return http.StatusNotFound
	case ErrorUserSuspended:
		return http.StatusForbidden
	case ErrorRateLimited:
		return http.StatusTooManyRequests
	case ErrorAPIUnavailable, ErrorNetwork:
		return http.StatusServiceUnavailable
	case ErrorInvalidData:
		return http.StatusUnprocessableEntity
	case ErrorAuthFailure:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError is a non-success response from an upstream HTTP endpoint.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("unexpected http status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected http status %d from %s", e.StatusCode, e.URL)
}

// AuthError is returned when the OAuth token exchange fails.
type AuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reddit authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("reddit authentication failed: status %d: %s", e.StatusCode, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ClassifiedError is a failure mapped into the taxonomy. It is created once
// per failure and not modified afterwards.
type ClassifiedError struct {
	Type       ErrorType
	Message    string
	Username   string
	Retryable  bool
	StatusCode int
	Cause      error
}

func (e *ClassifiedError) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message
}

func (e *ClassifiedError) Unwrap() error { return e.Cause }

// UserMessage returns the fixed user-facing sentence for the error category.
// Unknown errors pass the original message through.
func UserMessage(t ErrorType, original string) string {
	if msg, ok := userMessages[t]; ok {
		return msg
	}
	if strings.TrimSpace(original) == "" {
		return unknownFallbackMessage
	}
	return original
}

// Classify maps any error into the taxonomy. It is deterministic and total:
// every input yields exactly one category, ErrorUnknown by default.
func Classify(err error, username string) *ClassifiedError {
	if err == nil {
		return NewClassifiedError(ErrorUnknown, username, 0, errors.New(unknownFallbackMessage))
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if errType, ok := typeForStatus(httpErr.StatusCode); ok {
			return NewClassifiedError(errType, username, httpErr.StatusCode, err)
		}
		// The error text carries the request URL and so the username; only
		// the response body is safe to match.
		return NewClassifiedError(ClassifyMessage(httpErr.Body), username, httpErr.StatusCode, err)
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return NewClassifiedError(ErrorAuthFailure, username, authErr.StatusCode, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewClassifiedError(ErrorNetwork, username, 0, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewClassifiedError(ErrorNetwork, username, 0, err)
	}

	return NewClassifiedError(typeForMessage(err.Error()), username, 0, err)
}

// NewClassifiedError builds a ClassifiedError with the category defaults.
func NewClassifiedError(t ErrorType, username string, status int, cause error) *ClassifiedError {
	original := ""
	if cause != nil {
		original = cause.Error()
	}
	return &ClassifiedError{
		Type:       t,
		Message:    UserMessage(t, original),
		Username:   username,
		Retryable:  t.Retryable(),
		StatusCode: status,
		Cause:      cause,
	}
}

func typeForStatus(status int) (ErrorType, bool) {
	switch {
	case status == http.StatusNotFound:
		return ErrorUserNotFound, true
	case status == http.StatusForbidden:
		return ErrorUserSuspended, true
	case status == http.StatusTooManyRequests:
		return ErrorRateLimited, true
	case status == http.StatusUnauthorized:
		return ErrorAuthFailure, true
	case status >= 500 && status <= 599:
		return ErrorAPIUnavailable, true
	default:
		return "", false
	}
}

// ClassifyMessage applies the substring heuristics to a bare message.
func ClassifyMessage(message string) ErrorType {
	if strings.TrimSpace(message) == "" {
		return ErrorUnknown
	}
	return typeForMessage(message)
}

func typeForMessage(message string) ErrorType {
	msg := strings.ToLower(message)
	switch {
	case containsAny(msg, "not found", "unavailable"):
		return ErrorUserNotFound
	case containsAny(msg, "suspended", "private"):
		return ErrorUserSuspended
	case containsAny(msg, "rate limit", "too many requests"):
		return ErrorRateLimited
	case containsAny(msg, "unauthorized", "authentication"):
		return ErrorAuthFailure
	case containsAny(msg, "database", "libsql", "sql"):
		return ErrorDatabase
	case containsAny(msg, "invalid", "structure"):
		return ErrorInvalidData
	case containsAny(msg, "network", "timeout", "connection"):
		return ErrorNetwork
	default:
		return ErrorUnknown
	}
}

func containsAny(value string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(value, needle) {
			return true
		}
	}
	return false
}
