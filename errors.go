package tinify

import (
	"errors"
	"fmt"
	"time"
)

// Error represents the different failures a client operation can surface.
// Retryable reports whether the orchestrator may spend another attempt on
// the failure; fatal errors are returned to the caller immediately.
type Error interface {
	error
	Kind() ErrorKind
	Retryable() bool
}

// ErrorKind defines the category of client error
type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindValidation         ErrorKind = "validation"
	KindTransport          ErrorKind = "transport"
	KindServer             ErrorKind = "server"
	KindClient             ErrorKind = "client"
	KindBadRequest         ErrorKind = "bad_request"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindNotFound           ErrorKind = "not_found"
	KindPayloadTooLarge    ErrorKind = "payload_too_large"
	KindUnsupportedMedia   ErrorKind = "unsupported_media"
	KindRateLimited        ErrorKind = "rate_limited"
	KindQuotaExceeded      ErrorKind = "quota_exceeded"
	KindRetriesExhausted   ErrorKind = "retries_exhausted"
	KindMissingLocation    ErrorKind = "missing_location"
	KindCancelled          ErrorKind = "cancelled"
)

// credentialsError reports a key rejected at construction time
type credentialsError struct {
	message string
}

func (e *credentialsError) Error() string {
	return fmt.Sprintf("invalid credentials: %s", e.message)
}

func (e *credentialsError) Kind() ErrorKind {
	return KindInvalidCredentials
}

func (e *credentialsError) Retryable() bool {
	return false
}

// validationError reports invalid input caught before any network I/O
type validationError struct {
	message string
	field   string
	wrapped error
}

func (e *validationError) Error() string {
	if e.field != "" {
		return fmt.Sprintf("validation error: %s (field: %s)", e.message, e.field)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

func (e *validationError) Kind() ErrorKind {
	return KindValidation
}

func (e *validationError) Retryable() bool {
	return false
}

func (e *validationError) Unwrap() error {
	return e.wrapped
}

// transportError reports a failure below the HTTP layer
type transportError struct {
	message string
	wrapped error
}

func (e *transportError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("transport error: %s: %v", e.message, e.wrapped)
	}
	return fmt.Sprintf("transport error: %s", e.message)
}

func (e *transportError) Kind() ErrorKind {
	return KindTransport
}

func (e *transportError) Retryable() bool {
	return true
}

func (e *transportError) Unwrap() error {
	return e.wrapped
}

// timeoutError reports an attempt that exceeded its per-attempt budget
type timeoutError struct {
	message string
	timeout time.Duration
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("timeout error: %s (timeout: %v)", e.message, e.timeout)
}

func (e *timeoutError) Kind() ErrorKind {
	return KindTransport
}

func (e *timeoutError) Retryable() bool {
	return true
}

// cancelledError reports that the caller's context ended the operation
type cancelledError struct {
	wrapped error
}

func (e *cancelledError) Error() string {
	return fmt.Sprintf("operation cancelled: %v", e.wrapped)
}

func (e *cancelledError) Kind() ErrorKind {
	return KindCancelled
}

func (e *cancelledError) Retryable() bool {
	return false
}

func (e *cancelledError) Unwrap() error {
	return e.wrapped
}

// apiError reports a non-2xx response from the service
type apiError struct {
	status     int
	title      string
	message    string
	kind       ErrorKind
	retryable  bool
	retryAfter time.Duration
}

func (e *apiError) Error() string {
	if e.title != "" {
		return fmt.Sprintf("api error: %s: %s (status: %d)", e.title, e.message, e.status)
	}
	return fmt.Sprintf("api error: %s (status: %d)", e.message, e.status)
}

func (e *apiError) Kind() ErrorKind {
	return e.kind
}

func (e *apiError) Retryable() bool {
	return e.retryable
}

// StatusCode returns the HTTP status the service answered with.
func (e *apiError) StatusCode() int {
	return e.status
}

// Title returns the short error name from the service's response body.
func (e *apiError) Title() string {
	return e.title
}

// RetryAfter returns the wait the service asked for on rate-limited
// responses. It is informational; backoff timing stays policy-driven.
func (e *apiError) RetryAfter() time.Duration {
	return e.retryAfter
}

// preflightError reports a local check that failed before any network I/O.
// It reuses the service kinds so callers can switch on kind alone without
// caring whether the client or the service rejected the input.
type preflightError struct {
	kind    ErrorKind
	message string
}

func (e *preflightError) Error() string {
	return e.message
}

func (e *preflightError) Kind() ErrorKind {
	return e.kind
}

func (e *preflightError) Retryable() bool {
	return false
}

// missingLocationError reports a success response without a resource locator
type missingLocationError struct {
	status int
}

func (e *missingLocationError) Error() string {
	return fmt.Sprintf("missing Location header in response (status: %d)", e.status)
}

func (e *missingLocationError) Kind() ErrorKind {
	return KindMissingLocation
}

func (e *missingLocationError) Retryable() bool {
	return false
}

// exhaustedError reports that the attempt budget was spent on retryable failures
type exhaustedError struct {
	attempts int
	last     error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.attempts, e.last)
}

func (e *exhaustedError) Kind() ErrorKind {
	return KindRetriesExhausted
}

func (e *exhaustedError) Retryable() bool {
	return false
}

func (e *exhaustedError) Unwrap() error {
	return e.last
}

// NewCredentialsError creates a new credentials error
func NewCredentialsError(message string) Error {
	return &credentialsError{message: message}
}

// NewValidationError creates a new validation error
func NewValidationError(message, field string) Error {
	return &validationError{message: message, field: field}
}

// wrapValidationError creates a validation error that unwraps to its cause
func wrapValidationError(message, field string, wrapped error) Error {
	return &validationError{message: message, field: field, wrapped: wrapped}
}

// NewTransportError creates a new transport error
func NewTransportError(message string, wrapped error) Error {
	return &transportError{message: message, wrapped: wrapped}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, timeout time.Duration) Error {
	return &timeoutError{message: message, timeout: timeout}
}

// NewCancelledError creates a new cancellation error
func NewCancelledError(wrapped error) Error {
	return &cancelledError{wrapped: wrapped}
}

// NewAPIError creates a new service error with an explicit kind
func NewAPIError(kind ErrorKind, status int, title, message string, retryable bool) Error {
	return &apiError{status: status, title: title, message: message, kind: kind, retryable: retryable}
}

// NewMissingLocationError creates a new missing-locator error
func NewMissingLocationError(status int) Error {
	return &missingLocationError{status: status}
}

// newPreflightError creates a local preflight failure with a service kind
func newPreflightError(kind ErrorKind, message string) Error {
	return &preflightError{kind: kind, message: message}
}

// NewExhaustedError creates a new retries-exhausted error wrapping the last failure
func NewExhaustedError(attempts int, last error) Error {
	return &exhaustedError{attempts: attempts, last: last}
}

// IsKind checks if an error belongs to a specific category
func IsKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}
	var clientErr Error
	if errors.As(err, &clientErr) {
		return clientErr.Kind() == kind
	}
	return false
}

// IsRetryable reports whether the orchestrator may retry after err.
// Unclassified errors are treated as fatal.
func IsRetryable(err error) bool {
	var clientErr Error
	if errors.As(err, &clientErr) {
		return clientErr.Retryable()
	}
	return false
}

// AsError extracts the client error from an error chain
func AsError(err error) (Error, bool) {
	var clientErr Error
	if errors.As(err, &clientErr) {
		return clientErr, true
	}
	return nil, false
}

// IsStatus checks if an error is a service error with a specific status code
func IsStatus(err error, statusCode int) bool {
	var svcErr *apiError
	if errors.As(err, &svcErr) {
		return svcErr.StatusCode() == statusCode
	}
	return false
}

// isSuccessStatus checks if a status code represents success (2xx)
func isSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
