// Package password checks new passwords against a composition policy and
// hashes them for storage.
//
// # Policy
//
// [Policy.Check] is pure and returns every unmet [Rule], not just the first,
// so a form can show all requirements at once.
//
// # Hashing
//
// [Bcrypt] is the default [Hasher] (cost 12). [Argon2] produces PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Both hashers reject over-long inputs instead of truncating them, and expose
// NeedsUpgrade so callers can rehash after a parameter bump.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other package from this module.
//   - Log plaintext passwords.
package password
