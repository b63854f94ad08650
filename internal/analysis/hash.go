package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// canonicalJSON serializes v compactly with deterministic ordering: struct
// fields in declaration order, map keys sorted (encoding/json guarantees
// both). All hashed payloads are structs with fixed field order, so the
// same logical state always serializes to the same bytes.
func canonicalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// canonicalHash returns the hex sha256 of the canonical JSON of v.
func canonicalHash(v interface{}) string {
	b, err := canonicalJSON(v)
	if err != nil {
		// Hashed payloads are plain data structs; marshal cannot fail for
		// them. Surface loudly if that assumption ever breaks.
		panic("analysis: canonical marshal failed: " + err.Error())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
