// Package session provides the Redis-backed registry of live token sessions
// and the compact binary encoding of its records.
//
// A session record exists for every token issued by a login and is deleted on
// logout. In strict validation mode a token whose record is gone is treated as
// revoked even though its signature and expiry are still valid.
//
// # Binary encoding
//
// Records are stored as a versioned binary blob. The encoder is append-only:
// new versions add fields but never reinterpret old ones.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Record] model. It
// does NOT interpret tokens, look up users, or make authorization decisions;
// those belong to the Engine.
//
// # What this package must NOT do
//
//   - Import goAccounts or jwt (no upward imports).
//   - Store token strings or password material in [Record] fields.
package session
