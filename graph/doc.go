// Package graph is a small GraphQL runtime: it composes schema modules into a
// single executable schema, executes queries and mutations against a
// type → field → resolver table, and serves the result over HTTP.
//
// # Composition
//
// A [Module] carries SDL type definitions, resolvers and directive
// implementations. [Compose] parses every module as a separate source (so
// `extend type` works across modules), merges resolvers in module order and
// applies registered directives to the fields they mark. Directive wrapping
// happens once, at build time; the executor never inspects directives on
// schema fields.
//
// # Architecture boundaries
//
// This package knows nothing about users, tokens or sessions. Authorization is
// plugged in from the outside as a [DirectiveFunc], and request identity
// arrives through the [ContextFunc] given to [NewHandler].
//
// # What this package must NOT do
//
//   - Import goAccounts or any storage package.
//   - Leak internal error text to clients (see [ErrorCoder]).
//   - Mutate a [Schema] after [Compose] returns it.
package graph
