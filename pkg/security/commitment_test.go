package security

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommitment(t *testing.T) {
	sum := sha256.Sum256([]byte("YES|because it is fair"))
	want := hex.EncodeToString(sum[:])

	got := Commitment("YES", "because it is fair")
	require.Equal(t, want, got)
	require.Len(t, got, 64)
}

func TestVerifyCommitment(t *testing.T) {
	hash := Commitment("NO", "harm outweighs benefit")

	require.True(t, VerifyCommitment(hash, "NO", "harm outweighs benefit"))
	require.False(t, VerifyCommitment(hash, "YES", "harm outweighs benefit"))
	require.False(t, VerifyCommitment(hash, "NO", "harm outweighs benefit."))
}
