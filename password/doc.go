// Package password is the credential verifier: argon2id hashing and
// constant-time verification of account secrets.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Secrets are trimmed of leading and trailing whitespace before hashing and
// before verification ([Normalize]). Inner whitespace is significant.
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// engine can re-hash after the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve credentials. Callers supply plaintext and receive hashes.
//   - Import any other goAccount package.
//   - Log secrets or digests.
package password
