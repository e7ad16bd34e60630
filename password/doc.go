// Package password hashes and verifies account passwords.
//
// # Output format
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Hashes created by earlier deployments with bcrypt ($2a$, $2b$, $2y$) still
// verify. [Hasher.NeedsUpgrade] reports true for them and for Argon2 hashes
// produced with weaker parameters, so the caller can re-hash after the next
// successful login.
//
// Password policy (minimum length, reuse) is enforced by the caller. This
// package never stores or logs plaintext.
package password
