// Package goAccounts adds account authentication and field-level
// authorization to a GraphQL server built with the graph package.
//
// An [Engine] issues signed identity tokens ([Engine.Authenticate]), turns
// the token of each HTTP request into a [Session] ([Engine.ResolveSession])
// and gates schema fields marked with @auth ([Protect], [Engine.AuthDirective]).
// [Engine.GraphQL] returns the accounts schema module; applications compose
// it with their own modules:
//
//	schema, err := graph.Compose(engine.GraphQL(), app.Module())
//	handler := graph.NewHandler(schema, graph.HandlerOptions{Context: engine.ContextFactory()})
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// goAccounts is the public surface. It exposes [Engine], [Builder], [Config]
// and value types ([Session], [User], [MetricsSnapshot]). Event dispatch,
// counters and the session record encoding live under internal/ or in the
// session package and are never exposed through Engine.
//
// # What this package must NOT do
//
//   - Re-authenticate within a request. The Session attached by
//     [Engine.ContextFactory] is the only identity resolvers see.
//   - Report an unavailable store as an authentication failure. Storage
//     errors surface as [ErrStorageUnavailable] and fail the request.
//   - Import any sub-package that re-imports goAccounts (no import cycles).
//
// # Performance contract
//
// Token verification performs no I/O. Session resolution costs one user
// store lookup, plus one Redis GET in [ModeStrict].
package goAccounts
