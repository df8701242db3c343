package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirmit/internal/anchor/models"
	"confirmit/pkg/domain"
)

func record(ref, entity string, at time.Time) *models.Record {
	return &models.Record{
		ID:             domain.NewAnchorID(),
		EntityID:       entity,
		EntityType:     "score_snapshot",
		TransactionRef: ref,
		DataHash:       "ab",
		CreatedAt:      at,
	}
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	t0 := time.Now()

	require.NoError(t, s.Create(ctx, record("memory/0/0", "BIZ-1", t0)))
	require.NoError(t, s.Create(ctx, record("memory/0/1", "BIZ-1", t0.Add(time.Minute))))
	require.NoError(t, s.Create(ctx, record("memory/0/2", "BIZ-2", t0)))

	assert.ErrorIs(t, s.Create(ctx, record("memory/0/0", "BIZ-3", t0)), ErrConflict)

	found, err := s.FindByRef(ctx, "memory/0/1")
	require.NoError(t, err)
	assert.Equal(t, "BIZ-1", found.EntityID)

	_, err = s.FindByRef(ctx, "memory/0/9")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.ListByEntity(ctx, "BIZ-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "memory/0/1", list[0].TransactionRef, "newest first")

	// returned records are copies
	found.DataHash = "tampered"
	again, _ := s.FindByRef(ctx, "memory/0/1")
	assert.Equal(t, "ab", again.DataHash)
}
