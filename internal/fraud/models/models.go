package models

import (
	"strings"
	"time"

	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusVerified, StatusRejected:
		return Status(s), nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unknown report status: "+s)
	}
}

const (
	maxCategoryLen    = 100
	maxDescriptionLen = 2000
)

// Report is a user-submitted fraud claim against a subject. Only Status and
// ReviewedAt ever change after creation.
type Report struct {
	ID          domain.ReportID    `json:"report_id"`
	Subject     domain.SubjectHash `json:"account_hash"`
	Category    string             `json:"category"`
	Description string             `json:"description"`
	Status      Status             `json:"status"`
	ReportedAt  time.Time          `json:"reported_at"`
	ReviewedAt  *time.Time         `json:"reviewed_at,omitempty"`
}

// NewReport builds a pending report, enforcing the field invariants.
func NewReport(id domain.ReportID, subject domain.SubjectHash, category, description string, now time.Time) (*Report, error) {
	category = strings.TrimSpace(category)
	description = strings.TrimSpace(description)
	if subject == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subject is required")
	}
	if category == "" || len(category) > maxCategoryLen {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "category must be 1-100 characters")
	}
	if description == "" || len(description) > maxDescriptionLen {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "description must be 1-2000 characters")
	}
	return &Report{
		ID:          id,
		Subject:     subject,
		Category:    category,
		Description: description,
		Status:      StatusPending,
		ReportedAt:  now,
	}, nil
}

// CanReview reports whether the report may move to status.
func (r *Report) CanReview(to Status) bool {
	return r.Status == StatusPending && (to == StatusVerified || to == StatusRejected)
}

// ApplyReview performs the single permitted transition.
func (r *Report) ApplyReview(to Status, now time.Time) error {
	if !r.CanReview(to) {
		return dErrors.New(dErrors.CodeInvariantViolation, "report can only move from pending to verified or rejected")
	}
	r.Status = to
	r.ReviewedAt = &now
	return nil
}
