package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
)

const subject = domain.SubjectHash("84d89877f0d4041efb6bf91a16f0248f2fd573e6af05c19f96bedb9f882f7882")

func TestNewReport(t *testing.T) {
	now := time.Now()

	t.Run("pending with trimmed fields", func(t *testing.T) {
		r, err := NewReport(domain.NewReportID(), subject, " Non-delivery of goods ", " paid, never shipped ", now)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, r.Status)
		assert.Equal(t, "Non-delivery of goods", r.Category)
		assert.Equal(t, "paid, never shipped", r.Description)
		assert.Nil(t, r.ReviewedAt)
	})

	tests := map[string]struct {
		category, description string
	}{
		"empty category":    {"", "desc"},
		"blank description": {"scam", "   "},
		"long category":     {strings.Repeat("x", 101), "desc"},
		"long description":  {"scam", strings.Repeat("x", 2001)},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewReport(domain.NewReportID(), subject, tt.category, tt.description, now)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}
}

func TestReport_ApplyReview(t *testing.T) {
	now := time.Now()
	newReport := func() *Report {
		r, err := NewReport(domain.NewReportID(), subject, "scam", "desc", now)
		require.NoError(t, err)
		return r
	}

	t.Run("pending to verified", func(t *testing.T) {
		r := newReport()
		require.NoError(t, r.ApplyReview(StatusVerified, now))
		assert.Equal(t, StatusVerified, r.Status)
		require.NotNil(t, r.ReviewedAt)
	})

	t.Run("reviewed report is final", func(t *testing.T) {
		r := newReport()
		require.NoError(t, r.ApplyReview(StatusRejected, now))
		err := r.ApplyReview(StatusVerified, now)
		require.Error(t, err)
		assert.Equal(t, StatusRejected, r.Status)
	})

	t.Run("cannot move back to pending", func(t *testing.T) {
		r := newReport()
		assert.False(t, r.CanReview(StatusPending))
	})
}
