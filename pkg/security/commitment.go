package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// CommitmentSeparator joins verdict and reasoning before hashing.
const CommitmentSeparator = "|"

// Commitment returns the lowercase hex SHA-256 of verdict|reasoning.
func Commitment(verdict, reasoning string) string {
	sum := sha256.Sum256([]byte(verdict + CommitmentSeparator + reasoning))
	return hex.EncodeToString(sum[:])
}

// VerifyCommitment reports whether hash seals verdict and reasoning.
func VerifyCommitment(hash, verdict, reasoning string) bool {
	expected := Commitment(verdict, reasoning)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(hash)) == 1
}
