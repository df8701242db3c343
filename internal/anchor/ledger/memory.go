package ledger

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrMessageNotFound is returned for refs the log never issued.
var ErrMessageNotFound = errors.New("ledger message not found")

const memoryTopic = "memory"

// MemoryLog is an in-process Log for development and tests.
type MemoryLog struct {
	mu       sync.RWMutex
	messages [][]byte
	now      func() time.Time
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{now: time.Now}
}

func (l *MemoryLog) Submit(ctx context.Context, message []byte) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, slices.Clone(message))
	pos := Position{Topic: memoryTopic, Offset: int64(len(l.messages) - 1)}
	return Receipt{TransactionRef: pos.String(), ConsensusTimestamp: l.now().UTC()}, nil
}

func (l *MemoryLog) Message(_ context.Context, ref string) ([]byte, error) {
	pos, err := ParsePosition(ref)
	if err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if pos.Topic != memoryTopic || pos.Partition != 0 || pos.Offset >= int64(len(l.messages)) {
		return nil, ErrMessageNotFound
	}
	return slices.Clone(l.messages[pos.Offset]), nil
}

// Len returns the number of submitted messages.
func (l *MemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
