// Package idgen generates the identifiers used by the playground: UUIDv7
// session ids, random hex request ids and content-derived snapshot handles.
package idgen

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs (time-sortable).
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Hex returns a Generator of random lowercase hex ids of 2*n characters.
func Hex(n int) Generator {
	return func() string {
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		return hex.EncodeToString(buf)
	}
}

// Prefixed prepends prefix to every id of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// HandleLen is the length of a snapshot handle in hex characters.
const HandleLen = 24

// Handle returns the snapshot handle of data: the first HandleLen hex
// characters of its SHA-256. Equal snapshots share a handle.
func Handle(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:HandleLen]
}

// Default generates session ids.
var Default Generator = UUIDv7()
