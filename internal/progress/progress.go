// Package progress fans scan progress events out to live subscribers.
//
// Delivery is at-most-once: an event is offered to the subscribers attached at
// the moment it is emitted and dropped for any subscriber whose buffer is full.
// The durable scan session, not this stream, is the record of progress.
package progress

import (
	"context"
	"sync"
	"time"

	"confirmit/pkg/domain"
)

const (
	StageCompleted = "completed"
	StageFailed    = "failed"

	defaultBufferSize = 16
)

// Event is one progress update for a scan.
type Event struct {
	ScanID  domain.ScanID `json:"scan_id"`
	Pct     int           `json:"progress"`
	Message string        `json:"message"`
	Stage   string        `json:"stage"`
	At      time.Time     `json:"timestamp"`
}

// Terminal reports whether no further events follow for the scan.
func (e Event) Terminal() bool {
	return e.Stage == StageCompleted || e.Stage == StageFailed
}

// Broadcaster publishes and subscribes to per-scan progress.
type Broadcaster interface {
	Emit(ctx context.Context, ev Event)
	Subscribe(ctx context.Context, scanID domain.ScanID) (*Subscription, error)
}

// Subscription is a stream of events for one scan. The channel closes after a
// terminal event, on Close, or when the subscribing context ends.
type Subscription struct {
	ScanID domain.ScanID
	events chan Event
	done   chan struct{}
	once   sync.Once
	stop   func()
}

func newSubscription(scanID domain.ScanID, buffer int, stop func()) *Subscription {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	return &Subscription{
		ScanID: scanID,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
		stop:   stop,
	}
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed once the subscription has ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.stop)
}
