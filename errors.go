package goAccounts

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/goAccounts/graph"
)

// Error is a client-visible failure. Its message and code are shown to GraphQL
// clients; wrap it with fmt.Errorf("%w: %v", ...) to attach internal detail
// that is only logged.
type Error struct {
	msg       string
	code      string
	status    int
	retryable bool
}

func (e *Error) Error() string { return e.msg }

// ErrorCode is the GraphQL extensions.code of e.
func (e *Error) ErrorCode() string { return e.code }

// HTTPStatus is used when e aborts a request before execution.
func (e *Error) HTTPStatus() int { return e.status }

// Retryable reports whether the same request may succeed later.
func (e *Error) Retryable() bool { return e.retryable }

var (
	// ErrUnauthorized is returned by protected fields when the request has no
	// authenticated session.
	ErrUnauthorized = &Error{msg: "authentication required", code: graph.CodeUnauthenticated, status: http.StatusUnauthorized}
	// ErrForbidden is returned by admin-only fields for non-admin users.
	ErrForbidden = &Error{msg: "insufficient permissions", code: graph.CodeForbidden, status: http.StatusForbidden}
	// ErrStorageUnavailable is returned when the user store or session
	// registry cannot be reached. It fails the whole request.
	ErrStorageUnavailable = &Error{msg: "storage unavailable", code: graph.CodeStorageUnavailable, status: http.StatusServiceUnavailable, retryable: true}
	// ErrInvalidCredentials is returned by Authenticate for an unknown email
	// or a wrong password.
	ErrInvalidCredentials = &Error{msg: "invalid credentials", code: graph.CodeBadUserInput, status: http.StatusUnauthorized}
	// ErrInvalidUser is returned by CreateUser for incomplete user records.
	ErrInvalidUser = &Error{msg: "invalid user", code: graph.CodeBadUserInput, status: http.StatusBadRequest}
)

var (
	// ErrUserNotFound is returned by a UserStore when no user matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned by a UserWriter for a duplicate id or email.
	ErrUserExists = errors.New("user already exists")
	// ErrUserStoreReadOnly is returned by CreateUser when the configured store
	// does not implement UserWriter.
	ErrUserStoreReadOnly = errors.New("user store is read-only")
	// ErrSessionRegistryDisabled is returned by session registry operations in
	// ModeJWTOnly without a Redis client.
	ErrSessionRegistryDisabled = errors.New("session registry disabled")
	// ErrEngineNotReady is returned by methods called on a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

var (
	// ErrMissingTokenSecret is returned by Config.Validate when no signing
	// secret is configured for hs256.
	ErrMissingTokenSecret = errors.New("token secret is required")
	// ErrInsecureTokenSecret is returned for well-known or short secrets.
	ErrInsecureTokenSecret = errors.New("token secret is insecure")
)
