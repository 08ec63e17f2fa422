// Package auth resolves API keys to caller identities for the HTTP
// transport. Keys are stored as Argon2id hashes in the configuration;
// the raw key never leaves the request.
package auth

import (
	"errors"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidKey is returned when an API key matches no configured identity.
var ErrInvalidKey = errors.New("invalid api key")

// Identity is an authenticated caller. The ID becomes the opaque
// caller_identity carried on every ToolCall and audit record.
type Identity struct {
	// ID is the unique identifier for this identity.
	ID string
	// Name is the display name for this identity.
	Name string
}

// KeyEntry pairs an Argon2id key hash with the identity it authenticates.
type KeyEntry struct {
	Hash     string
	Identity Identity
}

// argon2idParams uses the OWASP minimum parameters for Argon2id.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024, // 47 MiB
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKey returns an Argon2id hash of the raw key in PHC format
// ($argon2id$v=19$m=47104,t=1,p=1$<salt>$<hash>).
func HashKey(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// Resolver validates raw API keys against the configured key entries.
// The entry set is fixed at startup, so Resolver needs no locking.
type Resolver struct {
	entries []KeyEntry
}

// NewResolver creates a resolver over the given entries.
func NewResolver(entries []KeyEntry) *Resolver {
	return &Resolver{entries: entries}
}

// Resolve verifies a raw key against every configured hash and returns
// the matching identity. Returns ErrInvalidKey when nothing matches.
// Argon2id hashes are salted, so a linear scan is the only option; the
// entry set is small and static.
func (r *Resolver) Resolve(rawKey string) (*Identity, error) {
	if rawKey == "" {
		return nil, ErrInvalidKey
	}
	for i := range r.entries {
		match, err := argon2id.ComparePasswordAndHash(rawKey, r.entries[i].Hash)
		if err != nil {
			continue
		}
		if match {
			id := r.entries[i].Identity
			return &id, nil
		}
	}
	return nil, ErrInvalidKey
}
