// Package app is the demo application served by cmd/goaccounts: a handful of
// public, signed-in and admin-only fields composed with the accounts module.
package app

import (
	"context"

	goAccounts "github.com/MrEthical07/goAccounts"
	"github.com/MrEthical07/goAccounts/graph"
	"go.uber.org/zap"
)

const typeDefs = `
type PrivateType @auth {
	field: String
}

extend type Query {
	publicField: String
	privateField: String @auth
	privateType: PrivateType
	adminField: String @auth(requires: ADMIN)
}

extend type User {
	firstName: String
}
`

// Module returns the demo schema module. It depends on the accounts module
// for User and @auth.
func Module() graph.Module {
	return graph.Module{
		Name:     "app",
		TypeDefs: typeDefs,
		Resolvers: graph.Resolvers{
			"Query": {
				"publicField":  constant("public"),
				"privateField": constant("private"),
				"privateType":  constant(map[string]interface{}{"field": "private"}),
				"adminField":   constant("admin field"),
			},
			"User": {
				"firstName": constant("first"),
			},
		},
	}
}

// Schema composes the accounts module of engine with Module.
func Schema(engine *goAccounts.Engine) (*graph.Schema, error) {
	return graph.Compose(engine.GraphQL(), Module())
}

// Subscribe logs logins and created users.
func Subscribe(b *goAccounts.Builder, log *zap.Logger) *goAccounts.Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return b.
		OnEvent(goAccounts.EventLogin, func(_ context.Context, ev goAccounts.Event) {
			log.Info("onLogin",
				zap.String("user_id", ev.UserID),
				zap.String("session_id", ev.SessionID),
				zap.String("ip", ev.IP),
			)
		}).
		OnEvent(goAccounts.EventCreateUser, func(_ context.Context, ev goAccounts.Event) {
			log.Info("onCreateUser", zap.String("user_id", ev.UserID), zap.String("email", ev.Email))
		})
}

func constant(v interface{}) graph.FieldResolver {
	return func(context.Context, interface{}, map[string]interface{}) (interface{}, error) {
		return v, nil
	}
}
