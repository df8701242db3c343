package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirmit/pkg/domain"
)

const scanID = domain.ScanID("RCP-0011223344556677")

func drain(t *testing.T, sub *Subscription) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("subscription did not close")
			return out
		}
	}
}

func TestHub_DeliversInOrderAndClosesOnTerminal(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()

	sub, err := hub.Subscribe(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers(scanID))

	hub.Emit(ctx, Event{ScanID: scanID, Pct: 10, Stage: "uploading"})
	hub.Emit(ctx, Event{ScanID: scanID, Pct: 30, Stage: "analyzing"})
	hub.Emit(ctx, Event{ScanID: "RCP-OTHER", Pct: 99, Stage: "analyzing"})
	hub.Emit(ctx, Event{ScanID: scanID, Pct: 100, Stage: StageCompleted})

	events := drain(t, sub)
	require.Len(t, events, 3)
	assert.Equal(t, []int{10, 30, 100}, []int{events[0].Pct, events[1].Pct, events[2].Pct})
	assert.Equal(t, 0, hub.Subscribers(scanID))

	select {
	case <-sub.Done():
	default:
		t.Fatal("done not closed after terminal event")
	}
	sub.Close()
}

func TestHub_EmitWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	hub.Emit(context.Background(), Event{ScanID: scanID, Pct: 10})
	hub.Emit(context.Background(), Event{ScanID: scanID, Pct: 100, Stage: StageFailed})
	assert.Equal(t, 0, hub.Subscribers(scanID))
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(WithBufferSize(2))
	sub, err := hub.Subscribe(ctx, scanID)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for pct := 1; pct <= 50; pct++ {
			hub.Emit(ctx, Event{ScanID: scanID, Pct: pct})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full subscriber")
	}

	sub.Close()
	events := drain(t, sub)
	assert.Len(t, events, 2)
}

func TestHub_ContextCancellationDetaches(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := hub.Subscribe(ctx, scanID)
	require.NoError(t, err)

	cancel()
	drain(t, sub)
	assert.Eventually(t, func() bool { return hub.Subscribers(scanID) == 0 }, time.Second, 10*time.Millisecond)

	_, err = hub.Subscribe(ctx, scanID)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHub_ConcurrentSubscribersAndEmitters(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(WithBufferSize(64))

	var subs []*Subscription
	for i := 0; i < 10; i++ {
		sub, err := hub.Subscribe(ctx, scanID)
		require.NoError(t, err)
		subs = append(subs, sub)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pct := 0; pct < 10; pct++ {
				hub.Emit(ctx, Event{ScanID: scanID, Pct: pct})
			}
		}()
	}
	wg.Wait()
	hub.Emit(ctx, Event{ScanID: scanID, Pct: 100, Stage: StageCompleted})

	for _, sub := range subs {
		events := drain(t, sub)
		assert.Len(t, events, 41)
		assert.True(t, events[len(events)-1].Terminal())
	}
}

func TestEventTerminal(t *testing.T) {
	assert.True(t, Event{Stage: StageCompleted}.Terminal())
	assert.True(t, Event{Stage: StageFailed}.Terminal())
	assert.False(t, Event{Stage: "anchoring"}.Terminal())
}
