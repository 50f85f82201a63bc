package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade id using SHA256.
// Formula: SHA256(mint|strategy|trigger|tx_signature|executed_at_ms)
// Returns hex-encoded hash (64 characters).
// Dry runs have no signature, so the timestamp keeps their ids distinct.
func ComputeTradeID(
	mint string,
	strategy string,
	trigger string,
	txSignature string,
	executedAtMs int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d",
		mint,
		strategy,
		trigger,
		txSignature,
		executedAtMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
