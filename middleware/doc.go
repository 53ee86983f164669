// Package middleware exposes net/http adapters that give non-GraphQL routes
// the same per-request identity the GraphQL handler gets from
// goAccounts.Engine.ContextFactory.
//
// # Middleware
//
//   - [Session] — resolves the session once and stores it in the request context.
//   - [Guard] — 401 unless the session is authenticated.
//   - [RequireAdmin] — 401 for anonymous requests, 403 for non-admin users.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to Engine).
//   - Access Redis or the user store (Engine handles I/O).
//   - Resolve a session twice for one request.
package middleware
