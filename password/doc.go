// Package password hashes and verifies passwords with Argon2id.
//
// # Output format
//
// Hashes use the PHC string encoding, so every stored hash carries the
// parameters it was produced with:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Because parameters travel with the hash, [Hasher.NeedsRehash] can tell
// when a stored hash predates a cost increase; the engine re-hashes on the
// next successful login when UpgradeOnLogin is set.
//
// # Architecture boundaries
//
// Hashing and verification only. Password policy (minimum length) is the
// engine's job, and the package never sees where hashes are stored.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext, receive hashes.
//   - Import any other authgate package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
