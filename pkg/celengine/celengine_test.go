package celengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	attrs := map[string]any{
		"total_participants": int64(120),
		"creator_threshold":  int64(100),
		"is_ai_generated":    false,
	}

	ok, err := Evaluate("total_participants >= creator_threshold && !is_ai_generated", attrs)
	require.NoError(t, err)
	require.True(t, ok)

	attrs["total_participants"] = int64(50)
	ok, err = Evaluate("total_participants >= creator_threshold", attrs)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateRejectsNonBool(t *testing.T) {
	_, err := Evaluate("total_participants + 1", map[string]any{"total_participants": int64(1)})
	require.Error(t, err)
}

func TestEvaluateRejectsInvalidExpression(t *testing.T) {
	_, err := Evaluate("unknown_field > 1", map[string]any{"total_participants": int64(1)})
	require.Error(t, err)
}

func TestStructToMap(t *testing.T) {
	got := StructToMap(struct {
		Name string `json:"name"`
	}{Name: "x"})
	require.Equal(t, map[string]any{"name": "x"}, got)
	require.Empty(t, StructToMap(nil))
}
