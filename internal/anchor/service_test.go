package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"confirmit/internal/anchor/ledger"
	"confirmit/internal/anchor/mocks"
	"confirmit/internal/anchor/models"
	"confirmit/internal/anchor/store"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/requestcontext"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

type snapshot struct {
	ID    string `json:"id"`
	Score int    `json:"score"`
}

func (s snapshot) AnchorEntityID() string   { return s.ID }
func (s snapshot) AnchorEntityType() string { return "test_snapshot" }

// stubLog fails every call and records the deadlines it saw.
type stubLog struct {
	err             error
	sawDeadline     time.Duration
	sawReadDeadline time.Duration
}

func (l *stubLog) Submit(ctx context.Context, _ []byte) (ledger.Receipt, error) {
	if d, ok := ctx.Deadline(); ok {
		l.sawDeadline = time.Until(d)
	}
	return ledger.Receipt{}, l.err
}

func (l *stubLog) Message(ctx context.Context, _ string) ([]byte, error) {
	if d, ok := ctx.Deadline(); ok {
		l.sawReadDeadline = time.Until(d)
	}
	return nil, l.err
}

func newService(t *testing.T, log ledger.Log) (*Service, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	svc, err := New(log, st, WithLogger(logger), WithExplorerBaseURL("https://explorer.test/tx/"))
	require.NoError(t, err)
	return svc, st
}

func TestDigest(t *testing.T) {
	a, err := Digest(snapshot{ID: "BIZ-1", Score: 85})
	require.NoError(t, err)
	b, err := Digest(snapshot{ID: "BIZ-1", Score: 85})
	require.NoError(t, err)
	c, err := Digest(snapshot{ID: "BIZ-1", Score: 86})
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestAnchor(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), t0)
	log := ledger.NewMemoryLog()
	svc, st := newService(t, log)
	entity := snapshot{ID: "BIZ-1", Score: 85}

	rec, err := svc.Anchor(ctx, entity)
	require.NoError(t, err)

	digest, _ := Digest(entity)
	assert.Equal(t, "BIZ-1", rec.EntityID)
	assert.Equal(t, "test_snapshot", rec.EntityType)
	assert.Equal(t, digest, rec.DataHash)
	assert.Equal(t, "memory/0/0", rec.TransactionRef)
	assert.Equal(t, "https://explorer.test/tx/memory%2F0%2F0", rec.ExplorerURL)
	assert.Equal(t, t0, rec.CreatedAt)

	raw, err := log.Message(ctx, rec.TransactionRef)
	require.NoError(t, err)
	var msg models.Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, models.Message{
		EntityID:   "BIZ-1",
		EntityType: "test_snapshot",
		DataHash:   digest,
		Timestamp:  t0.Format(time.RFC3339Nano),
	}, msg)

	stored, err := st.FindByRef(ctx, rec.TransactionRef)
	require.NoError(t, err)
	assert.Equal(t, *rec, *stored)
}

func TestAnchor_SubmissionFailure(t *testing.T) {
	log := &stubLog{err: context.DeadlineExceeded}
	svc, st := newService(t, log)

	_, err := svc.Anchor(context.Background(), snapshot{ID: "BIZ-1"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAnchorSubmissionFailed))
	assert.True(t, dErrors.IsRetryable(err))

	records, err := st.ListByEntity(context.Background(), "BIZ-1")
	require.NoError(t, err)
	assert.Empty(t, records, "failed submission records nothing")
}

func TestAnchor_DefaultTimeout(t *testing.T) {
	t.Run("applied when caller has no deadline", func(t *testing.T) {
		log := &stubLog{err: errors.New("down")}
		svc, _ := newService(t, log)
		_, _ = svc.Anchor(context.Background(), snapshot{ID: "BIZ-1"})
		assert.InDelta(t, defaultSubmitTimeout.Seconds(), log.sawDeadline.Seconds(), 1)
	})

	t.Run("caller deadline wins", func(t *testing.T) {
		log := &stubLog{err: errors.New("down")}
		svc, _ := newService(t, log)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = svc.Anchor(ctx, snapshot{ID: "BIZ-1"})
		assert.LessOrEqual(t, log.sawDeadline, 2*time.Second)
	})
}

func TestAnchor_RejectsAnonymousEntity(t *testing.T) {
	svc, _ := newService(t, ledger.NewMemoryLog())
	_, err := svc.Anchor(context.Background(), snapshot{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestAnchor_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	st.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	svc, err := New(ledger.NewMemoryLog(), st, WithLogger(logger))
	require.NoError(t, err)

	_, err = svc.Anchor(context.Background(), snapshot{ID: "BIZ-1"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestVerifyAnchor(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, ledger.NewMemoryLog())
	rec, err := svc.Anchor(ctx, snapshot{ID: "BIZ-1"})
	require.NoError(t, err)

	ok, err := svc.VerifyAnchor(ctx, rec.TransactionRef)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.VerifyAnchor(ctx, "memory/0/99")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.VerifyAnchor(ctx, " ")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestVerifyIntegrity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, ledger.NewMemoryLog())
	original := snapshot{ID: "BIZ-1", Score: 85}
	rec, err := svc.Anchor(ctx, original)
	require.NoError(t, err)

	t.Run("unaltered entity verifies", func(t *testing.T) {
		v, err := svc.VerifyIntegrity(ctx, rec.TransactionRef, original)
		require.NoError(t, err)
		assert.True(t, v.Valid())
	})

	t.Run("tampered entity is detected", func(t *testing.T) {
		v, err := svc.VerifyIntegrity(ctx, rec.TransactionRef, snapshot{ID: "BIZ-1", Score: 99})
		require.NoError(t, err)
		assert.False(t, v.Valid())
		assert.True(t, v.EntityMatches)
		assert.False(t, v.DigestMatches)
		assert.False(t, v.LedgerConfirmed)
	})

	t.Run("different entity is detected", func(t *testing.T) {
		v, err := svc.VerifyIntegrity(ctx, rec.TransactionRef, snapshot{ID: "BIZ-2", Score: 85})
		require.NoError(t, err)
		assert.False(t, v.EntityMatches)
	})

	t.Run("unknown ref", func(t *testing.T) {
		_, err := svc.VerifyIntegrity(ctx, "memory/0/42", original)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestVerifyIntegrity_LedgerUnavailable(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	entity := snapshot{ID: "BIZ-1"}
	digest, _ := Digest(entity)
	require.NoError(t, st.Create(ctx, &models.Record{
		EntityID: "BIZ-1", EntityType: "test_snapshot", TransactionRef: "t/0/1", DataHash: digest,
	}))
	svc, err := New(&stubLog{err: errors.New("broker unreachable")}, st, WithLogger(logger))
	require.NoError(t, err)

	_, err = svc.VerifyIntegrity(ctx, "t/0/1", entity)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))
}

func TestVerifyIntegrity_BoundsLogRead(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	entity := snapshot{ID: "BIZ-1"}
	digest, _ := Digest(entity)
	require.NoError(t, st.Create(ctx, &models.Record{
		EntityID: "BIZ-1", EntityType: "test_snapshot", TransactionRef: "t/0/1", DataHash: digest,
	}))
	log := &stubLog{err: context.DeadlineExceeded}
	svc, err := New(log, st, WithLogger(logger), WithSubmitTimeout(3*time.Second))
	require.NoError(t, err)

	_, err = svc.VerifyIntegrity(ctx, "t/0/1", entity)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))
	assert.InDelta(t, 3, log.sawReadDeadline.Seconds(), 1, "a caller without a deadline still gets one")
}

func TestListByEntity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, ledger.NewMemoryLog())
	for i := 0; i < 3; i++ {
		_, err := svc.Anchor(ctx, snapshot{ID: "BIZ-1", Score: i})
		require.NoError(t, err)
	}
	_, err := svc.Anchor(ctx, snapshot{ID: "BIZ-2"})
	require.NoError(t, err)

	records, err := svc.ListByEntity(ctx, "BIZ-1")
	require.NoError(t, err)
	assert.Len(t, records, 3)
}
