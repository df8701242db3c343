// Package analysis talks to the document analysis oracle. Adapters return a
// normalized models.Analysis whatever the oracle's wire format.
package analysis

import (
	"errors"
	"fmt"
	"strings"

	"confirmit/internal/scan/models"
	"confirmit/pkg/platform/sentinel"
	pstrings "confirmit/pkg/platform/strings"
)

// Request asks the oracle to analyze the document at ImageURL.
type Request struct {
	ImageURL         string
	IncludeForensics bool
	CheckReputation  bool
}

var (
	// ErrUnavailable marks outages and timeouts. Callers may retry.
	ErrUnavailable = sentinel.ErrUnavailable
	// ErrBadResponse marks a response that could not be understood.
	ErrBadResponse = errors.New("malformed analysis response")
	// ErrRejected marks a request the oracle refused or reported as failed.
	ErrRejected = errors.New("analysis rejected")
)

// result is the oracle wire format shared by every adapter.
type result struct {
	Success          *bool     `json:"success"`
	TrustScore       *int      `json:"trust_score"`
	Verdict          string    `json:"verdict"`
	Issues           []string  `json:"issues"`
	Merchant         *merchant `json:"merchant"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
	Summary          string    `json:"summary"`
	Message          string    `json:"message"`
}

type merchant struct {
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
}

func (r *result) normalize() (*models.Analysis, error) {
	if r.Success != nil && !*r.Success {
		return nil, fmt.Errorf("%w: %s", ErrRejected, r.Message)
	}
	if r.TrustScore == nil {
		return nil, fmt.Errorf("%w: trust_score missing", ErrBadResponse)
	}
	if *r.TrustScore < 0 || *r.TrustScore > 100 {
		return nil, fmt.Errorf("%w: trust_score %d out of range", ErrBadResponse, *r.TrustScore)
	}

	a := &models.Analysis{
		TrustScore:       *r.TrustScore,
		Verdict:          normalizeVerdict(r.Verdict),
		Issues:           pstrings.DedupeAndTrim(r.Issues),
		ProcessingTimeMS: r.ProcessingTimeMS,
		Summary:          strings.TrimSpace(r.Summary),
	}
	if a.Issues == nil {
		a.Issues = []string{}
	}
	if a.Summary == "" {
		a.Summary = strings.TrimSpace(r.Message)
	}
	if r.Merchant != nil {
		m := &models.Merchant{
			Name:          strings.TrimSpace(r.Merchant.Name),
			AccountNumber: strings.TrimSpace(r.Merchant.AccountNumber),
			BankCode:      strings.TrimSpace(r.Merchant.BankCode),
		}
		if *m != (models.Merchant{}) {
			a.Merchant = m
		}
	}
	return a, nil
}

func normalizeVerdict(v string) string {
	switch v = strings.ToLower(strings.TrimSpace(v)); v {
	case models.VerdictAuthentic, models.VerdictSuspicious, models.VerdictFraudulent:
		return v
	default:
		return models.VerdictUnclear
	}
}
