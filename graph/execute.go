package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strconv"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
)

// Request is a GraphQL request as sent over HTTP.
type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`

	// queryOnly is set for requests that arrived over GET.
	queryOnly bool
}

// Execute runs req against the schema using ctx as the request context for
// every resolver. Resolver errors do not abort execution: they are reported
// per field and the field becomes null, propagating to the nearest nullable
// parent when the field is non-null.
//
// Fields are resolved one at a time in selection order.
func (s *Schema) Execute(ctx context.Context, req Request) *Response {
	if ctx == nil {
		ctx = context.Background()
	}

	doc, errs := gqlparser.LoadQuery(s.schema, req.Query)
	if len(errs) > 0 {
		return errorResponse(http.StatusBadRequest, queryErrors(errs)...)
	}

	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		msg := fmt.Sprintf("operation %q not found", req.OperationName)
		if req.OperationName == "" {
			msg = "operation name is required when the document defines several operations"
		}
		return errorResponse(http.StatusBadRequest, &gqlerror.Error{
			Message:    msg,
			Extensions: map[string]interface{}{"code": CodeBadUserInput},
		})
	}

	if req.queryOnly && op.Operation != ast.Query {
		return errorResponse(http.StatusMethodNotAllowed, &gqlerror.Error{
			Message:    fmt.Sprintf("%s operations must be sent with POST", op.Operation),
			Extensions: map[string]interface{}{"code": CodeBadUserInput},
		})
	}

	vars, err := validator.VariableValues(s.schema, op, req.Variables)
	if err != nil {
		return errorResponse(http.StatusBadRequest, variableError(err))
	}

	var root *ast.Definition
	serial := false
	switch op.Operation {
	case ast.Query:
		root = s.schema.Query
	case ast.Mutation:
		root = s.schema.Mutation
		serial = true
	}
	if root == nil {
		return errorResponse(http.StatusBadRequest, &gqlerror.Error{
			Message:    fmt.Sprintf("%s operations are not supported", op.Operation),
			Extensions: map[string]interface{}{"code": CodeBadUserInput},
		})
	}

	ex := &executor{schema: s, doc: doc, vars: vars}
	data, ok := ex.executeSelectionSet(ctx, root, nil, []ast.SelectionSet{op.SelectionSet}, nil, serial)

	resp := &Response{Errors: ex.errs, internal: ex.internal}
	if !ok {
		resp.Data = json.RawMessage("null")
		return resp
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		resp.Data = json.RawMessage("null")
		resp.Errors = append(resp.Errors, &gqlerror.Error{
			Message:    internalErrorMessage,
			Extensions: map[string]interface{}{"code": CodeInternal},
		})
		resp.internal = append(resp.internal, InternalError{Err: errors.Wrap(err, "encode result")})
		return resp
	}
	resp.Data = encoded
	return resp
}

func variableError(err error) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		copied := *gqlErr
		if copied.Extensions == nil {
			copied.Extensions = map[string]interface{}{}
		}
		copied.Extensions["code"] = CodeBadUserInput
		return &copied
	}
	return &gqlerror.Error{
		Message:    err.Error(),
		Extensions: map[string]interface{}{"code": CodeBadUserInput},
	}
}

type executor struct {
	schema   *Schema
	doc      *ast.QueryDocument
	vars     map[string]interface{}
	errs     gqlerror.List
	internal []InternalError
}

type collectedField struct {
	key    string
	name   string
	fields []*ast.Field
}

func (e *executor) addError(err error, path ast.Path, pos *ast.Position) {
	presented, internal := presentError(err, path, pos)
	e.errs = append(e.errs, presented)
	if internal {
		e.internal = append(e.internal, InternalError{Path: path.String(), Err: err})
	}
}

// executeSelectionSet resolves the merged selection sets on one object. The
// second result is false when a non-null field inside came back null, in which
// case the whole object must be treated as null by the caller.
func (e *executor) executeSelectionSet(ctx context.Context, objectType *ast.Definition, parent interface{}, sets []ast.SelectionSet, path ast.Path, serial bool) (*orderedMap, bool) {
	fields := e.collectFields(objectType, sets)
	out := newOrderedMap(len(fields))
	valid := true
	for _, cf := range fields {
		value, ok := e.executeField(ctx, objectType, parent, cf, appendPath(path, ast.PathName(cf.key)))
		if !ok {
			if serial {
				return nil, false
			}
			valid = false
			continue
		}
		out.set(cf.key, value)
	}
	if !valid {
		return nil, false
	}
	return out, true
}

func (e *executor) collectFields(objectType *ast.Definition, sets []ast.SelectionSet) []*collectedField {
	var out []*collectedField
	byKey := map[string]*collectedField{}
	visited := map[string]bool{}

	var walk func(set ast.SelectionSet)
	walk = func(set ast.SelectionSet) {
		for _, sel := range set {
			switch sel := sel.(type) {
			case *ast.Field:
				if !e.shouldInclude(sel.Directives) {
					continue
				}
				key := sel.Alias
				if key == "" {
					key = sel.Name
				}
				cf, ok := byKey[key]
				if !ok {
					cf = &collectedField{key: key, name: sel.Name}
					byKey[key] = cf
					out = append(out, cf)
				}
				cf.fields = append(cf.fields, sel)
			case *ast.InlineFragment:
				if !e.shouldInclude(sel.Directives) || !e.typeApplies(objectType, sel.TypeCondition) {
					continue
				}
				walk(sel.SelectionSet)
			case *ast.FragmentSpread:
				if !e.shouldInclude(sel.Directives) || visited[sel.Name] {
					continue
				}
				visited[sel.Name] = true
				frag := sel.Definition
				if frag == nil {
					frag = e.doc.Fragments.ForName(sel.Name)
				}
				if frag == nil || !e.typeApplies(objectType, frag.TypeCondition) {
					continue
				}
				walk(frag.SelectionSet)
			}
		}
	}
	for _, set := range sets {
		walk(set)
	}
	return out
}

func (e *executor) shouldInclude(directives ast.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil {
		if v, ok := e.conditionValue(d); ok && v {
			return false
		}
	}
	if d := directives.ForName("include"); d != nil {
		if v, ok := e.conditionValue(d); ok && !v {
			return false
		}
	}
	return true
}

func (e *executor) conditionValue(d *ast.Directive) (bool, bool) {
	arg := d.Arguments.ForName("if")
	if arg == nil || arg.Value == nil {
		return false, false
	}
	v, err := arg.Value.Value(e.vars)
	if err != nil {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func (e *executor) typeApplies(objectType *ast.Definition, condition string) bool {
	if condition == "" || condition == objectType.Name {
		return true
	}
	def := e.schema.schema.Types[condition]
	if def == nil {
		return false
	}
	for _, possible := range e.schema.schema.GetPossibleTypes(def) {
		if possible.Name == objectType.Name {
			return true
		}
	}
	return false
}

func (e *executor) executeField(ctx context.Context, objectType *ast.Definition, parent interface{}, cf *collectedField, path ast.Path) (interface{}, bool) {
	first := cf.fields[0]
	if cf.name == "__typename" {
		return objectType.Name, true
	}

	fieldDef := objectType.Fields.ForName(cf.name)
	if fieldDef == nil {
		e.addError(NewError(CodeValidationFailed, fmt.Sprintf("cannot query field %q on type %q", cf.name, objectType.Name)), path, first.Position)
		return nil, true
	}

	args, err := argumentValues(fieldDef.Arguments, first.Arguments, e.vars)
	if err != nil {
		e.addError(NewError(CodeBadUserInput, err.Error()), path, first.Position)
		return nil, !fieldDef.Type.NonNull
	}

	info := &FieldInfo{
		ParentType: objectType.Name,
		Name:       cf.name,
		Alias:      cf.key,
		Path:       path.String(),
	}
	result, err := callResolver(withFieldInfo(ctx, info), e.schema.resolver(objectType.Name, cf.name), parent, args)
	if err != nil {
		e.addError(err, path, first.Position)
		return nil, !fieldDef.Type.NonNull
	}

	return e.completeValue(ctx, fieldDef.Type, cf.fields, result, path)
}

func callResolver(ctx context.Context, resolver FieldResolver, parent interface{}, args map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = errors.Errorf("resolver panic: %v", p)
		}
	}()
	return resolver(ctx, parent, args)
}

func (e *executor) completeValue(ctx context.Context, typ *ast.Type, fields []*ast.Field, result interface{}, path ast.Path) (interface{}, bool) {
	pos := fields[0].Position

	if isNil(result) {
		if typ.NonNull {
			e.addError(NewError(CodeInternal, "must not be null"), path, pos)
			return nil, false
		}
		return nil, true
	}

	if typ.Elem != nil {
		rv := reflect.ValueOf(result)
		for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			e.addError(errors.Errorf("expected a list for %s, got %T", typ.String(), result), path, pos)
			return nil, !typ.NonNull
		}
		items := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, ok := e.completeValue(ctx, typ.Elem, fields, rv.Index(i).Interface(), appendPath(path, ast.PathIndex(i)))
			if !ok {
				return nil, !typ.NonNull
			}
			items[i] = v
		}
		return items, true
	}

	def := e.schema.schema.Types[typ.NamedType]
	if def == nil {
		e.addError(errors.Errorf("unknown type %q", typ.NamedType), path, pos)
		return nil, !typ.NonNull
	}

	switch def.Kind {
	case ast.Scalar:
		v, err := coerceScalar(def.Name, result)
		if err != nil {
			e.addError(err, path, pos)
			return nil, !typ.NonNull
		}
		return v, true
	case ast.Enum:
		v, err := coerceEnum(def, result)
		if err != nil {
			e.addError(err, path, pos)
			return nil, !typ.NonNull
		}
		return v, true
	case ast.Interface, ast.Union:
		concrete, err := e.resolveAbstractType(def, result)
		if err != nil {
			e.addError(err, path, pos)
			return nil, !typ.NonNull
		}
		def = concrete
	}

	sets := make([]ast.SelectionSet, 0, len(fields))
	for _, f := range fields {
		sets = append(sets, f.SelectionSet)
	}
	obj, ok := e.executeSelectionSet(ctx, def, result, sets, path, false)
	if !ok {
		return nil, !typ.NonNull
	}
	return obj, true
}

// TypeNamer lets values of interface or union fields name their concrete
// object type.
type TypeNamer interface {
	GraphQLType() string
}

func (e *executor) resolveAbstractType(def *ast.Definition, value interface{}) (*ast.Definition, error) {
	var name string
	switch v := value.(type) {
	case TypeNamer:
		name = v.GraphQLType()
	case map[string]interface{}:
		name, _ = v["__typename"].(string)
	}

	possible := e.schema.schema.GetPossibleTypes(def)
	if name == "" {
		if len(possible) == 1 {
			return possible[0], nil
		}
		t := reflect.TypeOf(value)
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		name = t.Name()
	}
	for _, p := range possible {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, errors.Errorf("cannot resolve concrete type of %s for value %T", def.Name, value)
}

func coerceScalar(name string, value interface{}) (interface{}, error) {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}

	switch name {
	case "String":
		if s, ok := value.(fmt.Stringer); ok && rv.Kind() != reflect.String {
			return s.String(), nil
		}
		if rv.Kind() == reflect.String {
			return rv.String(), nil
		}
	case "ID":
		switch rv.Kind() {
		case reflect.String:
			return rv.String(), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return strconv.FormatInt(rv.Int(), 10), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return strconv.FormatUint(rv.Uint(), 10), nil
		}
		if s, ok := value.(fmt.Stringer); ok {
			return s.String(), nil
		}
	case "Int":
		var n int64
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n = rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if rv.Uint() > 1<<31-1 {
				return nil, errors.Errorf("Int cannot represent %v", value)
			}
			n = int64(rv.Uint())
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			if f != float64(int64(f)) {
				return nil, errors.Errorf("Int cannot represent non-integer %v", value)
			}
			n = int64(f)
		default:
			return nil, errors.Errorf("Int cannot represent %T", value)
		}
		if n > 1<<31-1 || n < -1<<31 {
			return nil, errors.Errorf("Int cannot represent %v", value)
		}
		return n, nil
	case "Float":
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			return rv.Float(), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(rv.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return float64(rv.Uint()), nil
		}
	case "Boolean":
		if rv.Kind() == reflect.Bool {
			return rv.Bool(), nil
		}
	default:
		return value, nil
	}
	return nil, errors.Errorf("%s cannot represent %T", name, value)
}

func coerceEnum(def *ast.Definition, value interface{}) (interface{}, error) {
	var name string
	switch v := value.(type) {
	case string:
		name = v
	case fmt.Stringer:
		name = v.String()
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.String {
			return nil, errors.Errorf("enum %s cannot represent %T", def.Name, value)
		}
		name = rv.String()
	}
	if def.EnumValues.ForName(name) == nil {
		return nil, errors.Errorf("enum %s has no value %q", def.Name, name)
	}
	return name, nil
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func appendPath(path ast.Path, elem ast.PathElement) ast.Path {
	out := make(ast.Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}
