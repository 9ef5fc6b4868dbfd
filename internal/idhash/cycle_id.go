// Package idhash computes deterministic record identifiers. Replaying the
// same tick sequence must reproduce byte-identical rows, so ids are content
// hashes rather than random values.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeCycleID computes a deterministic cycle id using SHA256.
// Formula: SHA256(coin|threshold|start_time_ms)
// Returns hex-encoded hash (64 characters).
func ComputeCycleID(coin string, threshold float64, startTimeMs int64) string {
	data := fmt.Sprintf("%s|%.6f|%d", coin, threshold, startTimeMs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeReseedCycleID computes the id of a cycle that opens at the same
// millisecond its predecessor both opened and closed. The base formula
// would reproduce the predecessor's id there; chaining on the predecessor
// keeps the id unique while replays still reproduce it byte for byte.
func ComputeReseedCycleID(coin string, threshold float64, startTimeMs int64, prevID string) string {
	data := fmt.Sprintf("%s|%.6f|%d|%s", coin, threshold, startTimeMs, prevID)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
