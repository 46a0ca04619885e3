// SPDX-License-Identifier: Apache-2.0
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Key prefixes used by the core.
const (
	PrefixEnsemble = "ensemble"
	PrefixMemory   = "memory"
	PrefixHealth   = "health"
)

// Key derives a stable cache key: "<prefix>:<first 16 hex chars of
// sha256(canonical JSON payload)>". Equal (prefix, payload) always
// yields an equal key.
func Key(prefix string, payload any) (string, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("cache key derivation failed: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return prefix + ":" + hex.EncodeToString(sum[:])[:16], nil
}

// canonicalJSON renders the payload with deterministic field ordering
// by round-tripping through generic values; encoding/json sorts map
// keys on output.
func canonicalJSON(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
