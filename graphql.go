package goAccounts

import (
	"context"
	"time"

	"github.com/MrEthical07/goAccounts/graph"
)

// Roles accepted by the requires argument of @auth.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// TypeDefs declares the accounts types, the @auth marker and the root
// fields served by the module returned from GraphQL. Applications add their
// own root fields with "extend type Query" and "extend type Mutation".
const TypeDefs = `
"Restricts a field, or every field of an object type, to signed-in users."
directive @auth(requires: AuthRole = USER) on OBJECT | FIELD_DEFINITION

enum AuthRole {
	USER
	ADMIN
}

type User {
	id: ID!
	email: String
	username: String
	isAdmin: Boolean!
}

type LoginResult {
	token: String!
	"RFC 3339 timestamp."
	expiresAt: String!
	user: User!
}

type Query {
	"The signed-in user, or null."
	getUser: User
}

type Mutation {
	authenticate(email: String!, password: String!): LoginResult
	logout: Boolean @auth
}
`

// GraphQL returns the accounts schema module: TypeDefs, its resolvers and
// the @auth directive bound to e.
func (e *Engine) GraphQL() graph.Module {
	return graph.Module{
		Name:     "accounts",
		TypeDefs: TypeDefs,
		Resolvers: graph.Resolvers{
			"Query": {
				"getUser": e.resolveGetUser,
			},
			"Mutation": {
				"authenticate": e.resolveAuthenticate,
				"logout":       e.resolveLogout,
			},
			"LoginResult": {
				"expiresAt": resolveExpiresAt,
			},
		},
		Directives: map[string]graph.DirectiveFunc{
			"auth": e.AuthDirective,
		},
	}
}

func (e *Engine) resolveGetUser(ctx context.Context, _ interface{}, _ map[string]interface{}) (interface{}, error) {
	s, _ := SessionFromContext(ctx)
	if !s.Authenticated() {
		return nil, nil
	}
	return s.User(), nil
}

func (e *Engine) resolveAuthenticate(ctx context.Context, _ interface{}, args map[string]interface{}) (interface{}, error) {
	email, _ := args["email"].(string)
	password, _ := args["password"].(string)
	result, err := e.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) resolveLogout(ctx context.Context, _ interface{}, _ map[string]interface{}) (interface{}, error) {
	s, _ := SessionFromContext(ctx)
	if err := e.Logout(ctx, s); err != nil {
		return nil, err
	}
	return true, nil
}

func resolveExpiresAt(_ context.Context, parent interface{}, _ map[string]interface{}) (interface{}, error) {
	result, ok := parent.(*LoginResult)
	if !ok || result == nil {
		return nil, nil
	}
	return result.ExpiresAt.UTC().Format(time.RFC3339), nil
}
