package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/servetable/servetable/internal/testutil"
)

func TestErrorWrapsKind(t *testing.T) {
	t.Parallel()
	err := New(ErrGone, "session expired")
	testutil.Equal(t, "session expired", err.Error())
	testutil.True(t, errors.Is(err, ErrGone))
	testutil.False(t, errors.Is(err, ErrNotFound))

	wrapped := fmt.Errorf("verifying: %w", err)
	testutil.True(t, errors.Is(wrapped, err))
	testutil.Equal(t, ErrGone, Kind(wrapped))
}

func TestKindUnknown(t *testing.T) {
	t.Parallel()
	testutil.Nil(t, Kind(errors.New("boom")))
	testutil.Nil(t, Kind(nil))
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind error
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrGone, http.StatusGone},
		{ErrForbidden, http.StatusForbidden},
		{ErrBadRequest, http.StatusBadRequest},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrInvalidArgument, http.StatusBadRequest},
		{ErrUnsupported, http.StatusNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.kind.Error(), func(t *testing.T) {
			testutil.Equal(t, tt.want, HTTPStatus(New(tt.kind, "x")))
		})
	}
	testutil.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("db down")))
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()
	base := New(ErrRateLimited, "slow down")
	err := fmt.Errorf("sending: %w", &RetryAfterError{Err: base, Wait: 42 * time.Second})

	wait, ok := RetryAfter(err)
	testutil.True(t, ok)
	testutil.Equal(t, 42*time.Second, wait)
	testutil.True(t, errors.Is(err, ErrRateLimited))
	testutil.True(t, errors.Is(err, base))

	_, ok = RetryAfter(base)
	testutil.False(t, ok)
}
