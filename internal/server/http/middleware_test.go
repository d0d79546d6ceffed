package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/thermolink/internal/errs"
)

func TestRateLimiter_PerIP(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(1, 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	hit := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, hit("10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.2"))
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zaptest.NewLogger(t)))
	r.GET("/", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
		ok   bool
	}{
		"ok":       {"Bearer abc", "abc", true},
		"lower":    {"bearer abc", "abc", true},
		"empty":    {"", "", false},
		"basic":    {"Basic abc", "", false},
		"no token": {"Bearer   ", "", false},
		"short":    {"Bear", "", false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, ok := bearerToken(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		code   int
		reason string
	}{
		{errs.ErrDeviceNotFound, http.StatusNotFound, "device_not_found"},
		{errs.ErrChallengeNotFound, http.StatusUnauthorized, "challenge_not_found"},
		{errs.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
		{fmt.Errorf("wrap: %w", errs.ErrInvalidToken), http.StatusUnauthorized, "invalid_token"},
		{errs.ErrSubjectNotFound, http.StatusUnauthorized, "subject_not_found"},
		{errs.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{errs.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{errs.ErrNotOwner, http.StatusNotFound, "not_found"},
		{errs.ErrNotFound, http.StatusNotFound, "not_found"},
		{errs.ErrForbidden, http.StatusForbidden, "forbidden"},
		{errs.ErrValidation, http.StatusBadRequest, "bad_request"},
		{errs.ErrAlreadyExists, http.StatusConflict, "conflict"},
		{errs.ErrDeviceUnregistered, http.StatusBadRequest, "device_unregistered"},
		{errors.New("db down"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		code, reason := statusFor(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
		assert.Equal(t, tc.reason, reason, tc.err.Error())
	}
}
