package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirmit/internal/ratelimit/models"
	"confirmit/internal/ratelimit/service"
	"confirmit/internal/ratelimit/store/bucket"
	"confirmit/pkg/testutil"
)

type erroringLimiter struct{}

func (erroringLimiter) CheckIP(context.Context, string, models.EndpointClass) (*service.Decision, error) {
	return nil, errors.New("store down")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
}

func newLimiter(t *testing.T) *service.Service {
	t.Helper()
	svc, err := service.New(bucket.New(), map[models.EndpointClass]models.Limit{
		models.ClassReport: {Requests: 1, Window: time.Hour},
	})
	require.NoError(t, err)
	return svc
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("second report from the same address is rejected", func(t *testing.T) {
		h := New(newLimiter(t), logger).RateLimit(models.ClassReport)(okHandler())

		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/accounts/report-fraud", map[string]string{})
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatus(t, rr, http.StatusCreated)
		assert.Equal(t, "1", rr.Header().Get(HeaderLimit))
		assert.Equal(t, "0", rr.Header().Get(HeaderRemaining))
		assert.NotEmpty(t, rr.Header().Get(HeaderReset))

		req = testutil.NewJSONRequest(t, http.MethodPost, "/api/accounts/report-fraud", map[string]string{})
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		rr = testutil.DoRequest(h, req)
		testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "rate_limit_exceeded")
		assert.NotEmpty(t, rr.Header().Get("Retry-After"))

		req = testutil.NewJSONRequest(t, http.MethodPost, "/api/accounts/report-fraud", map[string]string{})
		req.Header.Set("X-Forwarded-For", "203.0.113.8")
		testutil.AssertStatus(t, testutil.DoRequest(h, req), http.StatusCreated)
	})

	t.Run("limiter errors fail open", func(t *testing.T) {
		h := New(erroringLimiter{}, logger).RateLimit(models.ClassReport)(okHandler())
		rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodPost, "/api/accounts/report-fraud"))
		testutil.AssertStatus(t, rr, http.StatusCreated)
		assert.Empty(t, rr.Header().Get(HeaderLimit))
	})

	t.Run("disabled passes through", func(t *testing.T) {
		h := New(newLimiter(t), logger, WithDisabled(true)).RateLimit(models.ClassReport)(okHandler())
		for range 3 {
			rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodPost, "/api/accounts/report-fraud"))
			testutil.AssertStatus(t, rr, http.StatusCreated)
		}
	})

	t.Run("nil middleware passes through", func(t *testing.T) {
		var m *Middleware
		rr := testutil.DoRequest(m.RateLimit(models.ClassReport)(okHandler()), testutil.NewRequest(t, http.MethodPost, "/"))
		testutil.AssertStatus(t, rr, http.StatusCreated)
	})
}
