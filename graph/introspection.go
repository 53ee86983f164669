package graph

import (
	"context"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

// Introspection is served from the parsed schema through ordinary resolvers on
// the __Schema, __Type, … types declared by the parser's prelude.

type introType struct {
	schema *ast.Schema
	typ    *ast.Type
	def    *ast.Definition
}

type introField struct {
	schema *ast.Schema
	def    *ast.FieldDefinition
}

type introInputValue struct {
	schema *ast.Schema
	def    *ast.ArgumentDefinition
}

func typeFromDef(schema *ast.Schema, def *ast.Definition) *introType {
	if def == nil {
		return nil
	}
	return &introType{schema: schema, def: def}
}

func typeFromRef(schema *ast.Schema, t *ast.Type) *introType {
	if t == nil {
		return nil
	}
	if !t.NonNull && t.Elem == nil {
		return typeFromDef(schema, schema.Types[t.NamedType])
	}
	return &introType{schema: schema, typ: t}
}

func (t *introType) wrapper() bool {
	return t.typ != nil
}

func (t *introType) kind() string {
	switch {
	case t.typ != nil && t.typ.NonNull:
		return "NON_NULL"
	case t.typ != nil:
		return "LIST"
	}
	return string(t.def.Kind)
}

func (t *introType) ofType() interface{} {
	if t.typ == nil {
		return nil
	}
	if t.typ.NonNull {
		inner := *t.typ
		inner.NonNull = false
		return orNil(typeFromRef(t.schema, &inner))
	}
	return orNil(typeFromRef(t.schema, t.typ.Elem))
}

func orNil(t *introType) interface{} {
	if t == nil {
		return nil
	}
	return t
}

func optionalString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func deprecation(directives ast.DirectiveList) (bool, interface{}) {
	d := directives.ForName("deprecated")
	if d == nil {
		return false, nil
	}
	reason := "No longer supported"
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		reason = arg.Value.Raw
	}
	return true, reason
}

func includeDeprecated(args map[string]interface{}) bool {
	v, _ := args["includeDeprecated"].(bool)
	return v
}

func inputValues(schema *ast.Schema, defs ast.ArgumentDefinitionList, withDeprecated bool) []*introInputValue {
	out := make([]*introInputValue, 0, len(defs))
	for _, d := range defs {
		if deprecated, _ := deprecation(d.Directives); deprecated && !withDeprecated {
			continue
		}
		out = append(out, &introInputValue{schema: schema, def: d})
	}
	return out
}

func inputFieldsAsArguments(fields ast.FieldList) ast.ArgumentDefinitionList {
	out := make(ast.ArgumentDefinitionList, 0, len(fields))
	for _, f := range fields {
		out = append(out, &ast.ArgumentDefinition{
			Description:  f.Description,
			Name:         f.Name,
			DefaultValue: f.DefaultValue,
			Type:         f.Type,
			Directives:   f.Directives,
			Position:     f.Position,
		})
	}
	return out
}

func namedTypes(schema *ast.Schema, names []string) []*introType {
	out := make([]*introType, 0, len(names))
	for _, name := range names {
		if t := typeFromDef(schema, schema.Types[name]); t != nil {
			out = append(out, t)
		}
	}
	return out
}

func introspectionResolvers(schema *ast.Schema) Resolvers {
	return Resolvers{
		"Query": {
			"__schema": func(context.Context, interface{}, map[string]interface{}) (interface{}, error) {
				return schema, nil
			},
			"__type": func(_ context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
				name, _ := args["name"].(string)
				return orNil(typeFromDef(schema, schema.Types[name])), nil
			},
		},
		"__Schema": {
			"description": func(context.Context, interface{}, map[string]interface{}) (interface{}, error) {
				return nil, nil
			},
			"types": func(context.Context, interface{}, map[string]interface{}) (interface{}, error) {
				return namedTypes(schema, sortedTypeNames(schema)), nil
			},
			"queryType": func(context.Context, interface{}, map[string]interface{}) (interface{}, error) {
				return orNil(typeFromDef(schema, schema.Query)), nil
			},
			"mutationType": func(context.Context, interface{}, map[string]interface{}) (interface{}, error) {
				return orNil(typeFromDef(schema, schema.Mutation)), nil
			},
			"subscriptionType": func(context.Context, interface{}, map[string]interface{}) (interface{}, error) {
				return orNil(typeFromDef(schema, schema.Subscription)), nil
			},
			"directives": func(context.Context, interface{}, map[string]interface{}) (interface{}, error) {
				names := make([]string, 0, len(schema.Directives))
				for name := range schema.Directives {
					names = append(names, name)
				}
				sort.Strings(names)
				out := make([]*ast.DirectiveDefinition, 0, len(names))
				for _, name := range names {
					out = append(out, schema.Directives[name])
				}
				return out, nil
			},
		},
		"__Type": {
			"kind": onType(func(t *introType, _ map[string]interface{}) interface{} {
				return t.kind()
			}),
			"name": onType(func(t *introType, _ map[string]interface{}) interface{} {
				if t.wrapper() {
					return nil
				}
				return t.def.Name
			}),
			"description": onType(func(t *introType, _ map[string]interface{}) interface{} {
				if t.wrapper() {
					return nil
				}
				return optionalString(t.def.Description)
			}),
			"specifiedByURL": onType(func(t *introType, _ map[string]interface{}) interface{} {
				if t.wrapper() || t.def.Kind != ast.Scalar {
					return nil
				}
				if d := t.def.Directives.ForName("specifiedBy"); d != nil {
					if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
						return arg.Value.Raw
					}
				}
				return nil
			}),
			"fields": onType(func(t *introType, args map[string]interface{}) interface{} {
				if t.wrapper() || (t.def.Kind != ast.Object && t.def.Kind != ast.Interface) {
					return nil
				}
				withDeprecated := includeDeprecated(args)
				out := make([]*introField, 0, len(t.def.Fields))
				for _, f := range t.def.Fields {
					if strings.HasPrefix(f.Name, "__") {
						continue
					}
					if deprecated, _ := deprecation(f.Directives); deprecated && !withDeprecated {
						continue
					}
					out = append(out, &introField{schema: t.schema, def: f})
				}
				return out
			}),
			"interfaces": onType(func(t *introType, _ map[string]interface{}) interface{} {
				if t.wrapper() || (t.def.Kind != ast.Object && t.def.Kind != ast.Interface) {
					return nil
				}
				return namedTypes(t.schema, t.def.Interfaces)
			}),
			"possibleTypes": onType(func(t *introType, _ map[string]interface{}) interface{} {
				if t.wrapper() || (t.def.Kind != ast.Interface && t.def.Kind != ast.Union) {
					return nil
				}
				possible := t.schema.GetPossibleTypes(t.def)
				names := make([]string, 0, len(possible))
				for _, p := range possible {
					if p.Kind == ast.Object {
						names = append(names, p.Name)
					}
				}
				sort.Strings(names)
				return namedTypes(t.schema, names)
			}),
			"enumValues": onType(func(t *introType, args map[string]interface{}) interface{} {
				if t.wrapper() || t.def.Kind != ast.Enum {
					return nil
				}
				withDeprecated := includeDeprecated(args)
				out := make([]*ast.EnumValueDefinition, 0, len(t.def.EnumValues))
				for _, v := range t.def.EnumValues {
					if deprecated, _ := deprecation(v.Directives); deprecated && !withDeprecated {
						continue
					}
					out = append(out, v)
				}
				return out
			}),
			"inputFields": onType(func(t *introType, args map[string]interface{}) interface{} {
				if t.wrapper() || t.def.Kind != ast.InputObject {
					return nil
				}
				return inputValues(t.schema, inputFieldsAsArguments(t.def.Fields), includeDeprecated(args))
			}),
			"ofType": onType(func(t *introType, _ map[string]interface{}) interface{} {
				return t.ofType()
			}),
		},
		"__Field": {
			"name": onField(func(f *introField, _ map[string]interface{}) interface{} {
				return f.def.Name
			}),
			"description": onField(func(f *introField, _ map[string]interface{}) interface{} {
				return optionalString(f.def.Description)
			}),
			"args": onField(func(f *introField, args map[string]interface{}) interface{} {
				return inputValues(f.schema, f.def.Arguments, includeDeprecated(args))
			}),
			"type": onField(func(f *introField, _ map[string]interface{}) interface{} {
				return orNil(typeFromRef(f.schema, f.def.Type))
			}),
			"isDeprecated": onField(func(f *introField, _ map[string]interface{}) interface{} {
				deprecated, _ := deprecation(f.def.Directives)
				return deprecated
			}),
			"deprecationReason": onField(func(f *introField, _ map[string]interface{}) interface{} {
				_, reason := deprecation(f.def.Directives)
				return reason
			}),
		},
		"__InputValue": {
			"name": onInput(func(v *introInputValue) interface{} {
				return v.def.Name
			}),
			"description": onInput(func(v *introInputValue) interface{} {
				return optionalString(v.def.Description)
			}),
			"type": onInput(func(v *introInputValue) interface{} {
				return orNil(typeFromRef(v.schema, v.def.Type))
			}),
			"defaultValue": onInput(func(v *introInputValue) interface{} {
				if v.def.DefaultValue == nil {
					return nil
				}
				return v.def.DefaultValue.String()
			}),
			"isDeprecated": onInput(func(v *introInputValue) interface{} {
				deprecated, _ := deprecation(v.def.Directives)
				return deprecated
			}),
			"deprecationReason": onInput(func(v *introInputValue) interface{} {
				_, reason := deprecation(v.def.Directives)
				return reason
			}),
		},
		"__EnumValue": {
			"name": onEnumValue(func(v *ast.EnumValueDefinition) interface{} {
				return v.Name
			}),
			"description": onEnumValue(func(v *ast.EnumValueDefinition) interface{} {
				return optionalString(v.Description)
			}),
			"isDeprecated": onEnumValue(func(v *ast.EnumValueDefinition) interface{} {
				deprecated, _ := deprecation(v.Directives)
				return deprecated
			}),
			"deprecationReason": onEnumValue(func(v *ast.EnumValueDefinition) interface{} {
				_, reason := deprecation(v.Directives)
				return reason
			}),
		},
		"__Directive": {
			"name": onDirective(func(d *ast.DirectiveDefinition, _ map[string]interface{}) interface{} {
				return d.Name
			}),
			"description": onDirective(func(d *ast.DirectiveDefinition, _ map[string]interface{}) interface{} {
				return optionalString(d.Description)
			}),
			"locations": onDirective(func(d *ast.DirectiveDefinition, _ map[string]interface{}) interface{} {
				out := make([]string, 0, len(d.Locations))
				for _, l := range d.Locations {
					out = append(out, string(l))
				}
				return out
			}),
			"args": onDirective(func(d *ast.DirectiveDefinition, args map[string]interface{}) interface{} {
				return inputValues(schema, d.Arguments, includeDeprecated(args))
			}),
			"isRepeatable": onDirective(func(d *ast.DirectiveDefinition, _ map[string]interface{}) interface{} {
				return d.IsRepeatable
			}),
		},
	}
}

func onType(fn func(*introType, map[string]interface{}) interface{}) FieldResolver {
	return func(_ context.Context, parent interface{}, args map[string]interface{}) (interface{}, error) {
		t, ok := parent.(*introType)
		if !ok || t == nil {
			return nil, nil
		}
		return fn(t, args), nil
	}
}

func onField(fn func(*introField, map[string]interface{}) interface{}) FieldResolver {
	return func(_ context.Context, parent interface{}, args map[string]interface{}) (interface{}, error) {
		f, ok := parent.(*introField)
		if !ok || f == nil {
			return nil, nil
		}
		return fn(f, args), nil
	}
}

func onInput(fn func(*introInputValue) interface{}) FieldResolver {
	return func(_ context.Context, parent interface{}, _ map[string]interface{}) (interface{}, error) {
		v, ok := parent.(*introInputValue)
		if !ok || v == nil {
			return nil, nil
		}
		return fn(v), nil
	}
}

func onEnumValue(fn func(*ast.EnumValueDefinition) interface{}) FieldResolver {
	return func(_ context.Context, parent interface{}, _ map[string]interface{}) (interface{}, error) {
		v, ok := parent.(*ast.EnumValueDefinition)
		if !ok || v == nil {
			return nil, nil
		}
		return fn(v), nil
	}
}

func onDirective(fn func(*ast.DirectiveDefinition, map[string]interface{}) interface{}) FieldResolver {
	return func(_ context.Context, parent interface{}, args map[string]interface{}) (interface{}, error) {
		d, ok := parent.(*ast.DirectiveDefinition)
		if !ok || d == nil {
			return nil, nil
		}
		return fn(d, args), nil
	}
}
