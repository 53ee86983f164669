// Package password hashes and verifies account passwords with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.NeedsRehash] reports hashes produced with weaker parameters than the
// current configuration so seeding tools can refresh them.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Credential lookup and the
// login decision belong to the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other goAccounts package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
