package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "confirmit/pkg/domain-errors"
)

func TestRecord_NeedsRefresh(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	window := 7 * 24 * time.Hour

	tests := []struct {
		name   string
		record *Record
		want   bool
	}{
		{name: "absent", record: nil, want: true},
		{name: "never checked", record: &Record{}, want: true},
		{name: "checked yesterday", record: &Record{LastChecked: now.Add(-24 * time.Hour)}, want: false},
		{name: "exactly at window", record: &Record{LastChecked: now.Add(-window)}, want: false},
		{name: "eight days old", record: &Record{LastChecked: now.Add(-8 * 24 * time.Hour)}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.NeedsRefresh(now, window))
		})
	}
}

func TestRecord_Clone(t *testing.T) {
	score := 85
	r := &Record{
		Flags:            []string{"a"},
		VerifiedBusiness: &VerifiedBusiness{Name: "Acme", TrustScore: &score},
	}
	c := r.Clone()
	c.Flags[0] = "b"
	*c.VerifiedBusiness.TrustScore = 10

	assert.Equal(t, "a", r.Flags[0])
	assert.Equal(t, 85, *r.VerifiedBusiness.TrustScore)
}

func TestNewReportedRecord(t *testing.T) {
	now := time.Now()
	r := NewReportedRecord("abc", now)

	assert.Equal(t, ReportedTrustScore, r.TrustScore)
	assert.Equal(t, RiskHigh, r.RiskLevel)
	assert.Equal(t, FraudSummary{Total: 1, Recent30d: 1}, r.Fraud)
	assert.Equal(t, []string{ReportedFlag}, r.Flags)
	assert.True(t, r.LastChecked.IsZero())
	assert.True(t, r.NeedsRefresh(now, time.Hour))
}

func TestAssessment_Validate(t *testing.T) {
	valid := Assessment{TrustScore: 70, RiskLevel: RiskMedium}
	require.NoError(t, valid.Validate())

	for name, a := range map[string]Assessment{
		"score above range": {TrustScore: 101, RiskLevel: RiskLow},
		"negative score":    {TrustScore: -1, RiskLevel: RiskLow},
		"unknown risk":      {TrustScore: 50, RiskLevel: "severe"},
		"negative counters": {TrustScore: 50, RiskLevel: RiskLow, Fraud: FraudSummary{Total: -1}},
	} {
		t.Run(name, func(t *testing.T) {
			err := a.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}
}
