package graph

import (
	"context"
	"reflect"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Fielder is implemented by values that resolve their own fields without
// reflection. It is consulted by the default resolver only.
type Fielder interface {
	GraphQLField(name string) (interface{}, error)
}

// structFields caches json-name → field index paths per struct type.
var structFields sync.Map

func defaultResolver(name string) FieldResolver {
	return func(_ context.Context, parent interface{}, _ map[string]interface{}) (interface{}, error) {
		return resolveDefault(parent, name)
	}
}

// resolveDefault reads field name from parent: a map key, a [Fielder], or an
// exported struct field matched by its json tag or lower-camel Go name.
func resolveDefault(parent interface{}, name string) (interface{}, error) {
	switch p := parent.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		return p[name], nil
	case Fielder:
		return p.GraphQLField(name)
	}

	rv := reflect.ValueOf(parent)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, errors.Errorf("cannot resolve %q on map with %s keys", name, rv.Type().Key())
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, nil
		}
		return v.Interface(), nil
	case reflect.Struct:
		index, ok := fieldIndex(rv.Type(), name)
		if !ok {
			return nil, nil
		}
		f, err := rv.FieldByIndexErr(index)
		if err != nil {
			return nil, nil
		}
		return f.Interface(), nil
	}
	return nil, errors.Errorf("cannot resolve %q on %T", name, parent)
}

func fieldIndex(t reflect.Type, name string) ([]int, bool) {
	cached, ok := structFields.Load(t)
	if !ok {
		cached, _ = structFields.LoadOrStore(t, buildFieldIndex(t))
	}
	index, ok := cached.(map[string][]int)[name]
	return index, ok
}

func buildFieldIndex(t reflect.Type) map[string][]int {
	out := map[string][]int{}
	fallback := map[string][]int{}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		if name, _, _ := strings.Cut(tag, ","); name != "" {
			out[name] = f.Index
			continue
		}
		fallback[lowerFirst(f.Name)] = f.Index
	}
	for name, index := range fallback {
		if _, ok := out[name]; !ok {
			out[name] = index
		}
	}
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	if strings.ToUpper(s) == s {
		return strings.ToLower(s)
	}
	return strings.ToLower(s[:1]) + s[1:]
}
