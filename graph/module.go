package graph

import (
	"context"
	"net/http"
)

// FieldResolver produces the value of one field. parent is the value of the
// enclosing object (nil for root fields) and args holds the coerced field
// arguments with defaults applied.
type FieldResolver func(ctx context.Context, parent interface{}, args map[string]interface{}) (interface{}, error)

// Resolvers maps type name → field name → resolver.
type Resolvers map[string]map[string]FieldResolver

// DirectiveFunc turns a field resolver into one that enforces a schema
// directive. It is called once per marked field during [Compose] with the
// directive's argument values (defaults applied).
type DirectiveFunc func(next FieldResolver, args map[string]interface{}) (FieldResolver, error)

// ContextFunc builds the per-request context handed to every resolver of a
// request. A returned error aborts the request before execution.
type ContextFunc func(r *http.Request) (context.Context, error)

// Module is one unit of schema composition.
type Module struct {
	Name       string
	TypeDefs   string
	Resolvers  Resolvers
	Directives map[string]DirectiveFunc
}

// MergeResolvers combines resolver tables. Entries for the same type are merged
// field by field; when two sets define the same field, the later set wins.
// The inputs are not modified.
func MergeResolvers(sets ...Resolvers) Resolvers {
	out := make(Resolvers)
	for _, set := range sets {
		for typeName, fields := range set {
			dst, ok := out[typeName]
			if !ok {
				dst = make(map[string]FieldResolver, len(fields))
				out[typeName] = dst
			}
			for fieldName, resolver := range fields {
				dst[fieldName] = resolver
			}
		}
	}
	return out
}

type fieldInfoContextKey struct{}

// FieldInfo describes the field currently being resolved.
type FieldInfo struct {
	ParentType string
	Name       string
	Alias      string
	Path       string
}

// FieldFromContext returns the field being resolved, if ctx was passed to a
// resolver by the executor.
func FieldFromContext(ctx context.Context) (*FieldInfo, bool) {
	if ctx == nil {
		return nil, false
	}
	info, ok := ctx.Value(fieldInfoContextKey{}).(*FieldInfo)
	return info, ok
}

func withFieldInfo(ctx context.Context, info *FieldInfo) context.Context {
	return context.WithValue(ctx, fieldInfoContextKey{}, info)
}
