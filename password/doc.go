// Package password implements credential hashing.
//
// [Bcrypt] is the default hasher (cost 10, `$2a$10$...`). [Argon2] produces
// PHC strings (`$argon2id$v=19$m=..,t=..,p=..$salt$hash`) and can be selected
// instead. [Multi] verifies against whichever algorithm recognises a stored
// hash so deployments can migrate between them; NeedsRehash tells the caller
// to re-hash after the next successful login.
//
// Password policy (minimum length and similar) is enforced by the engine, not
// here. This package never logs plaintext or hash material.
package password
