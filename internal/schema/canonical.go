package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON re-serializes a JSON document into its canonical form:
// object keys sorted lexicographically, minimal separators, and numbers kept
// exactly as written. Two semantically equal documents always canonicalize to
// identical bytes, which makes the result safe to hash.
func CanonicalJSON(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber() // preserve number literals verbatim

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedJSON, err.Error())
	}

	// encoding/json sorts map keys and emits minimal separators, so a
	// decode/encode round trip through interface{} is the canonical form.
	canonical, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize JSON: %w", err)
	}

	return canonical, nil
}

// PayloadHash computes the SHA-256 hex digest of the canonical form of a
// payload document. The hash is stored with the event and lets operators spot
// payload drift between retries of the same event_id.
func PayloadHash(payload []byte) (string, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)

	return hex.EncodeToString(sum[:]), nil
}
