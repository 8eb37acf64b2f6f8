package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseErrorIsMatchesSentinel(t *testing.T) {
	sentinel := BaseError{Code: StatusConflict, Message: "duplicate vote"}

	err := fmt.Errorf("vote: %w", sentinel.Wrap(errors.New("unique constraint")))
	require.ErrorIs(t, err, sentinel)
	require.NotErrorIs(t, err, BaseError{Code: StatusConflict, Message: "other"})

	be, ok := From(err)
	require.True(t, ok)
	require.Equal(t, StatusConflict, be.Status())
	require.Contains(t, be.Error(), "unique constraint")
}

func TestHelpersKeepCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := BadGateway("ledger unavailable", cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, http.StatusBadGateway, StatusBadGateway.HTTPStatus())
	require.Equal(t, http.StatusUnprocessableEntity, StatusValidationFailed.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, CoreStatus("nope").HTTPStatus())
}
