package models

import (
	"slices"
	"time"

	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
)

// RiskLevel buckets a trust score for display and filtering.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh:
		return RiskLevel(s), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown risk level: "+s)
	}
}

// Values assigned to a subject first seen through a fraud report.
const (
	ReportedTrustScore = 30
	ReportedFlag       = "Reported for fraudulent activity"
)

type FraudSummary struct {
	Total     int `json:"total"`
	Recent30d int `json:"recent_30_days"`
}

// VerifiedBusiness is the registry summary attached to a record whose
// account belongs to a registered business.
type VerifiedBusiness struct {
	BusinessID domain.BusinessID `json:"business_id"`
	Name       string            `json:"name"`
	Verified   bool              `json:"verified"`
	TrustScore *int              `json:"trust_score,omitempty"`
}

// Record is the cached reputation of one subject hash.
type Record struct {
	SubjectHash      domain.SubjectHash `json:"account_hash"`
	BankCode         string             `json:"bank_code,omitempty"`
	TrustScore       int                `json:"trust_score"`
	RiskLevel        RiskLevel          `json:"risk_level"`
	Fraud            FraudSummary       `json:"fraud_reports"`
	VerifiedBusiness *VerifiedBusiness  `json:"verified_business,omitempty"`
	Flags            []string           `json:"flags"`
	// LastChecked is zero until the first oracle refresh.
	LastChecked time.Time `json:"last_checked"`
	CheckCount  int64     `json:"check_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NeedsRefresh reports whether the record must be re-scored before serving.
// A record exactly window old is still fresh.
func (r *Record) NeedsRefresh(now time.Time, window time.Duration) bool {
	if r == nil || r.LastChecked.IsZero() {
		return true
	}
	return now.Sub(r.LastChecked) > window
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Flags = slices.Clone(r.Flags)
	if r.VerifiedBusiness != nil {
		vb := *r.VerifiedBusiness
		if r.VerifiedBusiness.TrustScore != nil {
			score := *r.VerifiedBusiness.TrustScore
			vb.TrustScore = &score
		}
		c.VerifiedBusiness = &vb
	}
	return &c
}

// NewReportedRecord builds the record for a subject whose first appearance
// is a fraud report. LastChecked stays zero so the next check refreshes it.
func NewReportedRecord(subject domain.SubjectHash, now time.Time) *Record {
	return &Record{
		SubjectHash: subject,
		TrustScore:  ReportedTrustScore,
		RiskLevel:   RiskHigh,
		Fraud:       FraudSummary{Total: 1, Recent30d: 1},
		Flags:       []string{ReportedFlag},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Query is what the reputation oracle is asked about a subject.
type Query struct {
	Subject      domain.SubjectHash
	BankCode     string
	BusinessName string
}

// Assessment is the oracle's scored view of a subject.
type Assessment struct {
	TrustScore         int
	RiskLevel          RiskLevel
	Fraud              FraudSummary
	VerifiedBusinessID string
	Flags              []string
}

// Validate enforces the ranges a record may hold.
func (a *Assessment) Validate() error {
	if a.TrustScore < 0 || a.TrustScore > 100 {
		return dErrors.New(dErrors.CodeInvariantViolation, "trust score must be between 0 and 100")
	}
	if _, err := ParseRiskLevel(string(a.RiskLevel)); err != nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "risk level must be low, medium or high")
	}
	if a.Fraud.Total < 0 || a.Fraud.Recent30d < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "fraud counters must not be negative")
	}
	return nil
}

// Refresh carries everything the store writes on an oracle refresh.
type Refresh struct {
	Subject          domain.SubjectHash
	BankCode         string
	Assessment       Assessment
	VerifiedBusiness *VerifiedBusiness
	CheckedAt        time.Time
}
