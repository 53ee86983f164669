package graph

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Error codes reported in the "code" extension of GraphQL errors.
const (
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeForbidden          = "FORBIDDEN"
	CodeBadUserInput       = "BAD_USER_INPUT"
	CodeInternal           = "INTERNAL_SERVER_ERROR"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeParseFailed        = "GRAPHQL_PARSE_FAILED"
	CodeValidationFailed   = "GRAPHQL_VALIDATION_FAILED"
)

const internalErrorMessage = "internal server error"

// ErrorCoder is implemented by errors whose message may be shown to clients.
// Any error that does not implement it (directly or through wrapping) is
// reported as INTERNAL_SERVER_ERROR with a generic message.
type ErrorCoder interface {
	error
	ErrorCode() string
}

type retryableError interface {
	Retryable() bool
}

type httpStatusError interface {
	HTTPStatus() int
}

type codedError struct {
	code    string
	message string
}

func (e *codedError) Error() string     { return e.message }
func (e *codedError) ErrorCode() string { return e.code }

// NewError returns a client-visible error carrying code.
func NewError(code, message string) error {
	return &codedError{code: code, message: message}
}

// ErrorCode reports the code err would be presented with.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		if code, ok := gqlErr.Extensions["code"].(string); ok {
			return code
		}
	}
	var coder ErrorCoder
	if errors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return CodeInternal
}

// presentError converts a resolver or context error into its wire form. The
// second result is true when the original error was replaced by the generic
// internal message and should be logged server-side.
func presentError(err error, path ast.Path, pos *ast.Position) (*gqlerror.Error, bool) {
	var out *gqlerror.Error
	internal := false

	var gqlErr *gqlerror.Error
	var coder ErrorCoder
	switch {
	case errors.As(err, &gqlErr):
		copied := *gqlErr
		out = &copied
	case errors.As(err, &coder):
		out = &gqlerror.Error{
			Message:    coder.Error(),
			Extensions: map[string]interface{}{"code": coder.ErrorCode()},
		}
	default:
		out = &gqlerror.Error{
			Message:    internalErrorMessage,
			Extensions: map[string]interface{}{"code": CodeInternal},
		}
		internal = true
	}

	var retry retryableError
	if errors.As(err, &retry) && retry.Retryable() {
		if out.Extensions == nil {
			out.Extensions = map[string]interface{}{}
		}
		out.Extensions["retryable"] = true
	}
	if out.Path == nil && len(path) > 0 {
		out.Path = path
	}
	if len(out.Locations) == 0 && pos != nil {
		out.Locations = []gqlerror.Location{{Line: pos.Line, Column: pos.Column}}
	}
	return out, internal
}

// httpStatusFor picks the status of a request that failed before execution.
func httpStatusFor(err error) int {
	var status httpStatusError
	if errors.As(err, &status) {
		return status.HTTPStatus()
	}
	switch ErrorCode(err) {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeBadUserInput, CodeParseFailed, CodeValidationFailed:
		return http.StatusBadRequest
	case CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// queryErrors tags parser and validator errors with their code.
func queryErrors(list gqlerror.List) gqlerror.List {
	out := make(gqlerror.List, 0, len(list))
	for _, e := range list {
		if e == nil {
			continue
		}
		copied := *e
		code := CodeValidationFailed
		if copied.Rule == "" {
			code = CodeParseFailed
		}
		ext := make(map[string]interface{}, len(copied.Extensions)+1)
		for k, v := range copied.Extensions {
			ext[k] = v
		}
		if _, ok := ext["code"]; !ok {
			ext["code"] = code
		}
		copied.Extensions = ext
		out = append(out, &copied)
	}
	return out
}
