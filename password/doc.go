// Package password hashes and verifies passwords for UserStore
// implementations.
//
// New hashes are Argon2id in PHC form:
//
//	$argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>
//
// bcrypt hashes ($2a$, $2b$, $2y$) are still verified so that existing
// user tables can be migrated lazily; [Verifier.NeedsRehash] reports them
// for upgrade.
//
// This package never stores, logs or retrieves passwords.
package password
