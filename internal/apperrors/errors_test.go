package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappedErrorsMatchSentinel(t *testing.T) {
	err := Wrap(ErrInsufficientPoints, "need %d points, have %d", 2000, 1500)

	assert.True(t, errors.Is(err, ErrInsufficientPoints))
	assert.False(t, errors.Is(err, ErrRewardUnavailable))
	assert.Equal(t, "need 2000 points, have 1500", err.Error())

	outer := fmt.Errorf("redeem: %w", err)
	assert.True(t, errors.Is(outer, ErrInsufficientPoints))
	assert.Equal(t, KindConflict, KindOf(outer))
}

func TestTransientKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transient(cause, "error locking account")

	assert.Equal(t, KindTransient, KindOf(err))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsRetryable(err))
	assert.Nil(t, Transient(nil, "nothing"))

	// already-typed errors pass through unchanged
	assert.Equal(t, ErrTierIneligible, Transient(ErrTierIneligible, "ignored"))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		ErrInvalidAmount:             http.StatusBadRequest,
		ErrRewardNotFound:            http.StatusNotFound,
		ErrAlreadyRewarded:           http.StatusConflict,
		ErrStorage:                   http.StatusServiceUnavailable,
		ErrUnknownTier:               http.StatusInternalServerError,
		errors.New("something"):      http.StatusInternalServerError,
		Validation("bad page %d", 0): http.StatusBadRequest,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
	assert.False(t, IsRetryable(ErrDuplicateReferral))
	assert.Equal(t, "internal_error", CodeOf(errors.New("x")))
}
