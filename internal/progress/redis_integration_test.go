//go:build integration

package progress_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"confirmit/internal/progress"
	"confirmit/pkg/domain"
	"confirmit/pkg/testutil/containers"
)

type RedisBroadcasterSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisBroadcasterSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBroadcasterSuite))
}

func (s *RedisBroadcasterSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

// Publisher and subscriber use separate connections, as two instances would.
func (s *RedisBroadcasterSuite) TestCrossInstanceDelivery() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	subClient := s.redis.NewClient(s.T())

	publisher, err := progress.NewRedisBroadcaster(s.redis.Client)
	s.Require().NoError(err)
	subscriber, err := progress.NewRedisBroadcaster(subClient)
	s.Require().NoError(err)

	scanID := domain.NewScanID()
	sub, err := subscriber.Subscribe(ctx, scanID)
	s.Require().NoError(err)
	defer sub.Close()

	publisher.Emit(ctx, progress.Event{ScanID: scanID, Pct: 10, Stage: "uploading", At: time.Now().UTC()})
	publisher.Emit(ctx, progress.Event{ScanID: domain.NewScanID(), Pct: 50, Stage: "analyzing"})
	publisher.Emit(ctx, progress.Event{ScanID: scanID, Pct: 100, Stage: progress.StageCompleted})

	var got []progress.Event
	for ev := range sub.Events() {
		got = append(got, ev)
	}
	s.Require().Len(got, 2)
	s.Equal(10, got[0].Pct)
	s.Equal("uploading", got[0].Stage)
	s.True(got[1].Terminal())
}

func (s *RedisBroadcasterSuite) TestCloseEndsStream() {
	ctx := context.Background()
	b, err := progress.NewRedisBroadcaster(s.redis.Client)
	s.Require().NoError(err)

	sub, err := b.Subscribe(ctx, domain.NewScanID())
	s.Require().NoError(err)
	sub.Close()

	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		s.Fail("subscription did not end after Close")
	}
}
