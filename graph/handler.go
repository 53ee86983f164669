package graph

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

const maxRequestBody = 1 << 20

// HandlerOptions configures [NewHandler].
type HandlerOptions struct {
	// Context builds the per-request context handed to every resolver. When
	// nil, the request's own context is used.
	Context ContextFunc

	// Logger receives internal resolver errors with their field path.
	// Defaults to a no-op logger.
	Logger *zap.Logger
}

type handler struct {
	schema *Schema
	ctx    ContextFunc
	log    *zap.Logger
}

// NewHandler serves schema over HTTP. POST bodies are JSON encoded requests;
// GET requests carry query, operationName and variables (JSON) as URL
// parameters and may only run queries. A mutation sent over GET gets 405.
func NewHandler(schema *Schema, opts HandlerOptions) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &handler{schema: schema, ctx: opts.Context, log: log}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if p := recover(); p != nil {
			h.log.Error("graphql handler panic", zap.Any("panic", p), zap.String("path", r.URL.Path))
			writeResponse(w, errorResponse(http.StatusInternalServerError, &gqlerror.Error{
				Message:    internalErrorMessage,
				Extensions: map[string]interface{}{"code": CodeInternal},
			}))
		}
	}()

	req, err := readRequest(r)
	if err != nil {
		writeResponse(w, errorResponse(http.StatusBadRequest, &gqlerror.Error{
			Message:    err.Error(),
			Extensions: map[string]interface{}{"code": CodeBadUserInput},
		}))
		return
	}

	ctx := r.Context()
	if h.ctx != nil {
		ctx, err = h.ctx(r)
		if err != nil {
			presented, internal := presentError(err, nil, nil)
			if internal {
				h.log.Error("graphql context failed", zap.Error(err))
			} else {
				h.log.Warn("graphql context rejected", zap.Error(err), zap.String("code", ErrorCode(err)))
			}
			writeResponse(w, errorResponse(httpStatusFor(err), presented))
			return
		}
	}

	resp := h.schema.Execute(ctx, req)
	for _, ie := range resp.InternalErrors() {
		h.log.Error("graphql resolver failed", zap.String("field", ie.Path), zap.Error(ie.Err))
	}
	writeResponse(w, resp)
}

func readRequest(r *http.Request) (Request, error) {
	var req Request
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.queryOnly = true
		req.Query = q.Get("query")
		req.OperationName = q.Get("operationName")
		if vars := q.Get("variables"); vars != "" {
			if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
				return req, NewError(CodeBadUserInput, "variables must be a JSON object")
			}
		}
	case http.MethodPost:
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			return req, NewError(CodeBadUserInput, "content type must be application/json")
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
		if err != nil {
			return req, NewError(CodeBadUserInput, "could not read request body")
		}
		if len(body) > maxRequestBody {
			return req, NewError(CodeBadUserInput, "request body too large")
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return req, NewError(CodeBadUserInput, "request body is not valid JSON")
		}
	default:
		return req, NewError(CodeBadUserInput, "only GET and POST are supported")
	}
	if req.Query == "" {
		return req, NewError(CodeBadUserInput, "query is required")
	}
	return req, nil
}

func writeResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	if resp.StatusCode() == http.StatusMethodNotAllowed {
		w.Header().Set("Allow", http.MethodPost)
	}
	w.WriteHeader(resp.StatusCode())
	_, _ = resp.WriteTo(w)
}
