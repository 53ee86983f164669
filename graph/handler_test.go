package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type viewerKey struct{}

type statusErr struct {
	code   string
	status int
}

func (e statusErr) Error() string     { return "rejected" }
func (e statusErr) ErrorCode() string { return e.code }
func (e statusErr) HTTPStatus() int   { return e.status }

func newTestHandler(t *testing.T, ctxFunc ContextFunc) (http.Handler, *observer.ObservedLogs) {
	t.Helper()

	s := MustCompose(Module{
		Name:     "m",
		TypeDefs: `type Query { viewer: String echo(text: String!): String boom: String }`,
		Resolvers: Resolvers{"Query": {
			"viewer": func(ctx context.Context, _ interface{}, _ map[string]interface{}) (interface{}, error) {
				v, _ := ctx.Value(viewerKey{}).(string)
				return v, nil
			},
			"echo": func(_ context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				return args["text"], nil
			},
			"boom": func(context.Context, interface{}, map[string]interface{}) (interface{}, error) {
				return nil, assert.AnError
			},
		}},
	})

	core, logs := observer.New(zap.DebugLevel)
	return NewHandler(s, HandlerOptions{Context: ctxFunc, Logger: zap.New(core)}), logs
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandlerPost(t *testing.T) {
	h, _ := newTestHandler(t, func(r *http.Request) (context.Context, error) {
		return context.WithValue(r.Context(), viewerKey{}, "alice"), nil
	})

	body := `{"query":"query($t: String!) { viewer echo(text: $t) }","variables":{"t":"hi"}}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"viewer":"alice","echo":"hi"}}`, rec.Body.String())
}

func TestHandlerGet(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	q := url.Values{}
	q.Set("query", `query($t: String!) { echo(text: $t) }`)
	q.Set("variables", `{"t":"from-get"}`)
	req := httptest.NewRequest(http.MethodGet, "/graphql?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"echo":"from-get"}}`, rec.Body.String())
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	cases := []struct {
		name        string
		method      string
		contentType string
		body        string
	}{
		{"wrong content type", http.MethodPost, "text/plain", `{"query":"{ viewer }"}`},
		{"invalid json", http.MethodPost, "application/json", `{"query":`},
		{"missing query", http.MethodPost, "application/json", `{}`},
		{"unsupported method", http.MethodPut, "application/json", `{"query":"{ viewer }"}`},
		{"parse error", http.MethodPost, "application/json", `{"query":"{ viewer "}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/graphql", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.contentType)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			out := decodeBody(t, rec)
			assert.NotContains(t, out, "data")
			assert.NotEmpty(t, out["errors"])
		})
	}
}

func TestHandlerContextErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		code     string
		internal bool
	}{
		{"coded", NewError(CodeUnauthenticated, "no"), http.StatusUnauthorized, CodeUnauthenticated, false},
		{"explicit status", statusErr{code: CodeStorageUnavailable, status: http.StatusServiceUnavailable}, http.StatusServiceUnavailable, CodeStorageUnavailable, false},
		{"internal", assert.AnError, http.StatusInternalServerError, CodeInternal, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, logs := newTestHandler(t, func(*http.Request) (context.Context, error) { return nil, tc.err })

			req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ viewer }"}`))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			out := decodeBody(t, rec)
			errs := out["errors"].([]interface{})
			require.Len(t, errs, 1)
			ext := errs[0].(map[string]interface{})["extensions"].(map[string]interface{})
			assert.Equal(t, tc.code, ext["code"])

			assert.Equal(t, tc.internal, logs.FilterMessage("graphql context failed").Len() == 1)
		})
	}
}

func TestHandlerLogsInternalResolverErrors(t *testing.T) {
	h, logs := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ boom viewer }"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())

	entries := logs.FilterMessage("graphql resolver failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].ContextMap()["field"])
}

func TestHandlerRejectsMutationsOverGet(t *testing.T) {
	calls := 0
	s := MustCompose(Module{
		Name:     "m",
		TypeDefs: `type Query { ping: String } type Mutation { logout: Boolean }`,
		Resolvers: Resolvers{
			"Query": {"ping": constant("pong")},
			"Mutation": {"logout": func(context.Context, interface{}, map[string]interface{}) (interface{}, error) {
				calls++
				return true, nil
			}},
		},
	})
	h := NewHandler(s, HandlerOptions{})

	q := url.Values{}
	q.Set("query", `mutation { logout }`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphql?"+q.Encode(), nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	assert.NotContains(t, decodeBody(t, rec), "data")
	assert.Equal(t, 0, calls)

	q.Set("query", `query A { ping } mutation B { logout }`)
	q.Set("operationName", "B")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphql?"+q.Encode(), nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 0, calls)

	q.Set("operationName", "A")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphql?"+q.Encode(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"ping":"pong"}}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"mutation { logout }"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)
}
