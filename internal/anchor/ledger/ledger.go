// Package ledger submits digests to an append-only consensus log.
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Receipt is the log's acknowledgement of a submitted message.
type Receipt struct {
	TransactionRef     string
	ConsensusTimestamp time.Time
}

// Log is an external append-only message log. Implementations are safe for
// concurrent use.
type Log interface {
	Submit(ctx context.Context, message []byte) (Receipt, error)
	Message(ctx context.Context, ref string) ([]byte, error)
}

// Position locates a message as topic/partition/offset.
type Position struct {
	Topic     string
	Partition int32
	Offset    int64
}

func (p Position) String() string {
	return fmt.Sprintf("%s/%d/%d", p.Topic, p.Partition, p.Offset)
}

// ParsePosition is the inverse of Position.String. Topic names may not
// contain '/'.
func ParsePosition(ref string) (Position, error) {
	parts := strings.Split(ref, "/")
	if len(parts) != 3 || parts[0] == "" {
		return Position{}, fmt.Errorf("malformed transaction ref %q", ref)
	}
	partition, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil || partition < 0 {
		return Position{}, fmt.Errorf("malformed partition in transaction ref %q", ref)
	}
	offset, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || offset < 0 {
		return Position{}, fmt.Errorf("malformed offset in transaction ref %q", ref)
	}
	return Position{Topic: parts[0], Partition: int32(partition), Offset: offset}, nil
}
