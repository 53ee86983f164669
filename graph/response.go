package graph

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Response is the result of executing one GraphQL request.
type Response struct {
	Data   json.RawMessage
	Errors gqlerror.List

	status   int
	internal []InternalError
}

// InternalError is a resolver failure that was hidden from the client behind
// the generic internal message.
type InternalError struct {
	Path string
	Err  error
}

// StatusCode is the HTTP status the response should be served with.
func (r *Response) StatusCode() int {
	if r == nil || r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// InternalErrors returns the original errors behind every generic internal
// error in the response.
func (r *Response) InternalErrors() []InternalError {
	if r == nil {
		return nil
	}
	return r.internal
}

// WriteTo writes the response as unindented JSON.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	if r == nil {
		n, err := io.WriteString(w, `{"errors":[{"message":"internal server error"}],"data":null}`)
		return int64(n), err
	}

	js, err := json.Marshal(struct {
		Errors gqlerror.List   `json:"errors,omitempty"`
		Data   json.RawMessage `json:"data,omitempty"`
	}{
		Errors: r.Errors,
		Data:   r.Data,
	})
	if err != nil {
		js = []byte(`{"errors":[{"message":"failed to marshal response"}],"data":null}`)
	}

	n, err := w.Write(js)
	return int64(n), err
}

func errorResponse(status int, errs ...*gqlerror.Error) *Response {
	return &Response{Errors: errs, status: status}
}

// orderedMap is an object result that marshals its keys in selection order.
type orderedMap struct {
	keys   []string
	values []interface{}
}

func newOrderedMap(size int) *orderedMap {
	return &orderedMap{
		keys:   make([]string, 0, size),
		values: make([]interface{}, 0, size),
	}
}

func (m *orderedMap) set(key string, value interface{}) {
	m.keys = append(m.keys, key)
	m.values = append(m.values, value)
}

func (m *orderedMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(m.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
