package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/servetable/servetable/internal/apperr"
	"github.com/servetable/servetable/internal/testutil"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestWriteAppErrorKinds(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("verifying: %w", apperr.New(apperr.ErrGone, "OTP expired"))
	w := httptest.NewRecorder()
	WriteAppError(w, testutil.DiscardLogger(), err)

	testutil.StatusCode(t, http.StatusGone, w.Code)
	resp := decodeError(t, w)
	testutil.Equal(t, http.StatusGone, resp.Code)
	testutil.Equal(t, "OTP expired", resp.Message)
}

func TestWriteAppErrorRetryAfter(t *testing.T) {
	t.Parallel()
	err := &apperr.RetryAfterError{Err: apperr.New(apperr.ErrRateLimited, "too soon"), Wait: 1500 * time.Millisecond}
	w := httptest.NewRecorder()
	WriteAppError(w, nil, err)

	testutil.StatusCode(t, http.StatusTooManyRequests, w.Code)
	testutil.Equal(t, "2", w.Header().Get("Retry-After"))
	testutil.Equal(t, "too soon", decodeError(t, w).Message)
}

func TestWriteAppErrorInternal(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	WriteAppError(w, testutil.DiscardLogger(), errors.New("pq: connection refused"))

	testutil.StatusCode(t, http.StatusInternalServerError, w.Code)
	testutil.Equal(t, "internal error", decodeError(t, w).Message)
}

func TestWriteAppErrorBareKind(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	WriteAppError(w, nil, fmt.Errorf("lookup: %w", apperr.ErrNotFound))
	testutil.StatusCode(t, http.StatusNotFound, w.Code)
	testutil.Equal(t, "not found", decodeError(t, w).Message)
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()
	var v struct {
		Phone string `json:"phone"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"phone":"+37369123456"}`))
	w := httptest.NewRecorder()
	testutil.True(t, DecodeJSON(w, r, &v))
	testutil.Equal(t, "+37369123456", v.Phone)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"phone":1`))
	w = httptest.NewRecorder()
	testutil.False(t, DecodeJSON(w, r, &v))
	testutil.StatusCode(t, http.StatusBadRequest, w.Code)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"phone":"x","extra":true}`))
	w = httptest.NewRecorder()
	testutil.False(t, DecodeJSON(w, r, &v))
}

func TestReadBody(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	body, err := ReadBody(httptest.NewRecorder(), r)
	testutil.NoError(t, err)
	testutil.Equal(t, `{"a":1}`, string(body))

	big := strings.Repeat("x", MaxBodySize+1)
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	_, err = ReadBody(httptest.NewRecorder(), r)
	testutil.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, ok := ExtractBearerToken(r)
		testutil.Equal(t, tt.ok, ok)
		testutil.Equal(t, tt.want, got)
	}
}
