package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome int

const (
	fail outcome = iota
	succeed
)

// TestBreakerTransitions drives a breaker through a sequence of call
// outcomes and checks the state after the last one.
func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name      string
		opts      []Option
		outcomes  []outcome
		wantState State
	}{
		{
			name:      "stays closed below the failure threshold",
			opts:      []Option{WithFailureThreshold(3)},
			outcomes:  []outcome{fail, fail},
			wantState: StateClosed,
		},
		{
			name:      "opens at the failure threshold",
			opts:      []Option{WithFailureThreshold(3)},
			outcomes:  []outcome{fail, fail, fail},
			wantState: StateOpen,
		},
		{
			name:      "a success while closed clears the failure streak",
			opts:      []Option{WithFailureThreshold(3)},
			outcomes:  []outcome{fail, fail, succeed, fail, fail},
			wantState: StateClosed,
		},
		{
			name:      "stays open until enough consecutive successes",
			opts:      []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			outcomes:  []outcome{fail, succeed},
			wantState: StateOpen,
		},
		{
			name:      "closes after the success threshold",
			opts:      []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			outcomes:  []outcome{fail, succeed, succeed},
			wantState: StateClosed,
		},
		{
			name:      "a failure while open restarts the success streak",
			opts:      []Option{WithFailureThreshold(1), WithSuccessThreshold(3)},
			outcomes:  []outcome{fail, succeed, succeed, fail, succeed, succeed},
			wantState: StateOpen,
		},
		{
			name:      "non-positive thresholds keep the defaults",
			opts:      []Option{WithFailureThreshold(0), WithSuccessThreshold(-1)},
			outcomes:  []outcome{fail, fail, fail, fail},
			wantState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("reputation-oracle", tt.opts...)
			for _, o := range tt.outcomes {
				if o == fail {
					b.RecordFailure()
				} else {
					b.RecordSuccess()
				}
			}
			assert.Equal(t, tt.wantState, b.State())
			assert.Equal(t, tt.wantState == StateOpen, b.IsOpen())
		})
	}
}

func TestBreakerReportsStateChangesOnce(t *testing.T) {
	b := New("analysis", WithFailureThreshold(2), WithSuccessThreshold(1))

	useFallback, change := b.RecordFailure()
	assert.False(t, useFallback)
	assert.False(t, change.Opened)

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, change.Opened)

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback, "open breaker keeps asking for the fallback")
	assert.False(t, change.Opened, "already open")

	usePrimary, change := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)

	usePrimary, change = b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.False(t, change.Closed, "already closed")
}

func TestBreakerCooldownTrialCall(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("ratelimit-store", WithFailureThreshold(1), WithCooldown(10*time.Second),
		withClock(func() time.Time { return now }))

	require.True(t, b.Allow(), "closed breaker allows every call")
	b.RecordFailure()
	assert.False(t, b.Allow())

	now = now.Add(9 * time.Second)
	assert.False(t, b.Allow(), "still cooling down")

	now = now.Add(2 * time.Second)
	assert.True(t, b.Allow(), "one trial call after the cooldown")
	assert.False(t, b.Allow(), "the next trial waits another cooldown")

	now = now.Add(10 * time.Second)
	assert.True(t, b.Allow())
}

func TestBreakerReset(t *testing.T) {
	b := New("reputation-oracle", WithFailureThreshold(1))
	b.RecordFailure()
	require.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
	assert.Equal(t, "reputation-oracle", b.Name())
	assert.True(t, b.Allow())
}
