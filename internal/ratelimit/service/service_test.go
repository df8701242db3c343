package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirmit/internal/ratelimit/models"
	"confirmit/internal/ratelimit/store/bucket"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/platform/circuit"
)

type failingStore struct {
	calls int
}

func (f *failingStore) Allow(context.Context, string, int, time.Duration) (*models.Result, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

var testLimits = map[models.EndpointClass]models.Limit{
	models.ClassReport: {Requests: 2, Window: time.Hour},
}

func TestNew(t *testing.T) {
	_, err := New(nil, testLimits)
	require.Error(t, err)

	_, err = New(bucket.New(), map[models.EndpointClass]models.Limit{"admin": {Requests: 1, Window: time.Minute}})
	require.Error(t, err)

	_, err = New(bucket.New(), map[models.EndpointClass]models.Limit{models.ClassScan: {Requests: 0, Window: time.Minute}})
	require.Error(t, err)
}

func TestCheckIP(t *testing.T) {
	ctx := context.Background()

	t.Run("budget is per ip and class", func(t *testing.T) {
		svc, err := New(bucket.New(), testLimits)
		require.NoError(t, err)

		for range 2 {
			d, err := svc.CheckIP(ctx, "198.51.100.1", models.ClassReport)
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.False(t, d.Degraded)
		}
		d, err := svc.CheckIP(ctx, "198.51.100.1", models.ClassReport)
		require.NoError(t, err)
		assert.False(t, d.Allowed)

		d, err = svc.CheckIP(ctx, "198.51.100.2", models.ClassReport)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})

	t.Run("unconfigured class", func(t *testing.T) {
		svc, err := New(bucket.New(), testLimits)
		require.NoError(t, err)
		_, err = svc.CheckIP(ctx, "198.51.100.1", models.ClassScan)
		require.Error(t, err)
	})

	t.Run("store failure without fallback", func(t *testing.T) {
		svc, err := New(&failingStore{}, testLimits)
		require.NoError(t, err)
		_, err = svc.CheckIP(ctx, "198.51.100.1", models.ClassReport)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))
	})

	t.Run("store failure uses fallback and open circuit skips primary", func(t *testing.T) {
		primary := &failingStore{}
		svc, err := New(primary, testLimits,
			WithFallback(bucket.New()),
			WithBreaker(circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))),
		)
		require.NoError(t, err)

		for range 2 {
			d, err := svc.CheckIP(ctx, "198.51.100.1", models.ClassReport)
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.True(t, d.Degraded)
		}
		assert.Equal(t, 2, primary.calls)

		d, err := svc.CheckIP(ctx, "198.51.100.1", models.ClassReport)
		require.NoError(t, err)
		assert.False(t, d.Allowed, "fallback keeps enforcing the budget")
		assert.True(t, d.Degraded)
		assert.Equal(t, 2, primary.calls, "open circuit must not call the primary")
	})
}
