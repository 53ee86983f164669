// Package jwt issues and verifies the signed identity tokens that carry a user
// id (and optionally a session id) between requests.
//
// Verification checks the signature over the raw signing input before any
// payload decoding and performs no I/O, so it is safe on every request path.
package jwt
