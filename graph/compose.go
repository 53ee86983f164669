package graph

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

// Schema is an executable schema produced by [Compose]. It is immutable and
// safe for concurrent use.
type Schema struct {
	schema    *ast.Schema
	resolvers map[string]map[string]FieldResolver
}

// Compose merges modules into one executable schema.
//
// Type definitions are parsed as one source per module, so a later module may
// extend types declared by an earlier one. Resolvers are merged in module
// order with [MergeResolvers]; a resolver for a type or field that does not
// exist in the composed schema is a build error. Every field that carries a
// registered directive, on the field itself or on its object type, is wrapped
// by that directive here and never again.
func Compose(modules ...Module) (*Schema, error) {
	sources := make([]*ast.Source, 0, len(modules))
	resolverSets := make([]Resolvers, 0, len(modules))
	directives := map[string]DirectiveFunc{}
	directiveOwner := map[string]string{}

	for i, m := range modules {
		name := m.Name
		if name == "" {
			name = fmt.Sprintf("module-%d", i)
		}
		if strings.TrimSpace(m.TypeDefs) != "" {
			sources = append(sources, &ast.Source{Name: name, Input: m.TypeDefs})
		}
		if m.Resolvers != nil {
			resolverSets = append(resolverSets, m.Resolvers)
		}
		for dirName, fn := range m.Directives {
			if fn == nil {
				return nil, errors.Errorf("module %s: directive %q has no implementation", name, dirName)
			}
			if owner, ok := directiveOwner[dirName]; ok {
				return nil, errors.Errorf("directive %q registered by both %s and %s", dirName, owner, name)
			}
			directiveOwner[dirName] = name
			directives[dirName] = fn
		}
	}
	if len(sources) == 0 {
		return nil, errors.New("no type definitions to compose")
	}

	parsed, err := gqlparser.LoadSchema(sources...)
	if err != nil {
		return nil, errors.Wrap(err, "load schema")
	}
	if parsed.Query == nil {
		return nil, errors.New("schema has no Query type")
	}

	for dirName := range directives {
		if _, ok := parsed.Directives[dirName]; !ok {
			return nil, errors.Errorf("directive %q is implemented by %s but not declared in any type definitions", dirName, directiveOwner[dirName])
		}
	}

	merged := MergeResolvers(resolverSets...)
	if err := checkResolvers(parsed, merged); err != nil {
		return nil, err
	}

	s := &Schema{
		schema:    parsed,
		resolvers: make(map[string]map[string]FieldResolver, len(merged)),
	}

	for _, typeName := range sortedTypeNames(parsed) {
		def := parsed.Types[typeName]
		if def.Kind != ast.Object || strings.HasPrefix(def.Name, "__") {
			continue
		}
		for _, field := range def.Fields {
			if strings.HasPrefix(field.Name, "__") {
				continue
			}
			resolver := merged[def.Name][field.Name]
			wrapped, err := applyDirectives(parsed, directives, def, field, resolver)
			if err != nil {
				return nil, errors.Wrapf(err, "%s.%s", def.Name, field.Name)
			}
			if wrapped == nil {
				continue
			}
			if s.resolvers[def.Name] == nil {
				s.resolvers[def.Name] = map[string]FieldResolver{}
			}
			s.resolvers[def.Name][field.Name] = wrapped
		}
	}

	for typeName, fields := range introspectionResolvers(parsed) {
		if s.resolvers[typeName] == nil {
			s.resolvers[typeName] = map[string]FieldResolver{}
		}
		for fieldName, r := range fields {
			s.resolvers[typeName][fieldName] = r
		}
	}

	return s, nil
}

// MustCompose is like [Compose] but panics on error.
func MustCompose(modules ...Module) *Schema {
	s, err := Compose(modules...)
	if err != nil {
		panic(err)
	}
	return s
}

func checkResolvers(schema *ast.Schema, resolvers Resolvers) error {
	for typeName, fields := range resolvers {
		def := schema.Types[typeName]
		if def == nil {
			return errors.Errorf("resolvers defined for unknown type %q", typeName)
		}
		if def.Kind != ast.Object {
			return errors.Errorf("resolvers defined for %s type %q", strings.ToLower(string(def.Kind)), typeName)
		}
		for fieldName, r := range fields {
			if def.Fields.ForName(fieldName) == nil {
				return errors.Errorf("resolver defined for unknown field %s.%s", typeName, fieldName)
			}
			if r == nil {
				return errors.Errorf("nil resolver for %s.%s", typeName, fieldName)
			}
		}
	}
	return nil
}

// applyDirectives wraps resolver with every registered directive on field and
// then on its object type, so type-level checks run first.
func applyDirectives(schema *ast.Schema, directives map[string]DirectiveFunc, def *ast.Definition, field *ast.FieldDefinition, resolver FieldResolver) (FieldResolver, error) {
	marks := make([]*ast.Directive, 0, len(field.Directives)+len(def.Directives))
	marks = append(marks, field.Directives...)
	marks = append(marks, def.Directives...)

	current := resolver
	for _, d := range marks {
		fn, ok := directives[d.Name]
		if !ok {
			continue
		}
		if current == nil {
			current = defaultResolver(field.Name)
		}
		args, err := directiveArguments(schema, d)
		if err != nil {
			return nil, err
		}
		next, err := fn(current, args)
		if err != nil {
			return nil, errors.Wrapf(err, "directive @%s", d.Name)
		}
		if next == nil {
			return nil, errors.Errorf("directive @%s returned a nil resolver", d.Name)
		}
		current = next
	}
	return current, nil
}

func directiveArguments(schema *ast.Schema, d *ast.Directive) (map[string]interface{}, error) {
	def := d.Definition
	if def == nil {
		def = schema.Directives[d.Name]
	}
	if def == nil {
		return nil, errors.Errorf("directive @%s is not declared", d.Name)
	}
	return argumentValues(def.Arguments, d.Arguments, nil)
}

func sortedTypeNames(schema *ast.Schema) []string {
	names := make([]string, 0, len(schema.Types))
	for name := range schema.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Types returns the composed type definitions.
func (s *Schema) Types() map[string]*ast.Definition {
	return s.schema.Types
}

// HasResolver reports whether a resolver (possibly a directive wrapper) is
// installed for typeName.fieldName.
func (s *Schema) HasResolver(typeName, fieldName string) bool {
	_, ok := s.resolvers[typeName][fieldName]
	return ok
}

// WriteSDL prints the composed schema in SDL form.
func (s *Schema) WriteSDL(w io.Writer) {
	formatter.NewFormatter(w).FormatSchema(s.schema)
}

func (s *Schema) resolver(typeName, fieldName string) FieldResolver {
	if r, ok := s.resolvers[typeName][fieldName]; ok {
		return r
	}
	return defaultResolver(fieldName)
}

func argumentValues(defs ast.ArgumentDefinitionList, args ast.ArgumentList, vars map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(defs))
	for _, def := range defs {
		arg := args.ForName(def.Name)

		var value *ast.Value
		if arg != nil {
			value = arg.Value
		}
		if value != nil && value.Kind == ast.Variable {
			if v, ok := vars[value.Raw]; ok {
				out[def.Name] = v
				continue
			}
			value = nil
		}
		if value == nil {
			value = def.DefaultValue
		}
		if value == nil {
			continue
		}

		v, err := value.Value(vars)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %q", def.Name)
		}
		out[def.Name] = v
	}
	return out, nil
}
