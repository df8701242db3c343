package models

import (
	"net/mail"
	"strings"
	"time"

	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
)

// Status is a business verification state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Env scopes an API key.
type Env string

const (
	EnvTest Env = "test"
	EnvLive Env = "live"
)

func ParseEnv(s string) (Env, error) {
	switch Env(strings.ToLower(strings.TrimSpace(s))) {
	case "", EnvLive:
		return EnvLive, nil
	case EnvTest:
		return EnvTest, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "environment must be test or live")
	}
}

const (
	MinTier = 1
	MaxTier = 3

	maxNameLen     = 128
	maxCategoryLen = 64
	maxReasonLen   = 500

	maxDocuments  = 10
	maxDocKindLen = 64
	maxDocRefLen  = 2048
)

type Contact struct {
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// BankAccount holds the settlement account. The number is only ever stored
// sealed; Masked is safe to display.
type BankAccount struct {
	NumberSealed []byte `json:"-"`
	Masked       string `json:"number_masked"`
	BankCode     string `json:"bank_code"`
	AccountName  string `json:"account_name"`
}

// APIKey is the stored half of an issued key. The raw key is shown once.
type APIKey struct {
	KeyID     string    `json:"key_id"`
	KeyHash   string    `json:"-"`
	Env       Env       `json:"environment"`
	CreatedAt time.Time `json:"created_at"`
}

type Stats struct {
	ProfileViews  int64 `json:"profile_views"`
	Verifications int64 `json:"verifications"`
}

// Business is a merchant profile.
//
// Invariants:
//   - Status moves pending → approved or pending → rejected, once
//   - TrustScore is nil until approval and is only set with an anchor ref
//   - Tier is between 1 and 3
type Business struct {
	ID              domain.BusinessID `json:"business_id"`
	Name            string            `json:"name"`
	Category        string            `json:"category"`
	Contact         Contact           `json:"contact"`
	BankAccount     BankAccount       `json:"bank_account"`
	Tier            int               `json:"tier"`
	Status          Status            `json:"status"`
	VerifiedAt      *time.Time        `json:"verified_at,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	TrustScore      *int              `json:"trust_score,omitempty"`
	AnchorRef       string            `json:"anchor_ref,omitempty"`
	// Documents maps a supporting document kind, e.g. "cac_certificate", to
	// where the reviewer can fetch it.
	Documents       map[string]string `json:"documents"`
	APIKeys         []APIKey          `json:"api_keys"`
	Stats           Stats             `json:"stats"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewBusiness builds a pending profile. A zero tier defaults to 1.
func NewBusiness(id domain.BusinessID, name, category string, contact Contact, bank BankAccount, tier int, now time.Time) (*Business, error) {
	name = strings.TrimSpace(name)
	category = strings.TrimSpace(category)
	if name == "" || len(name) > maxNameLen {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "business name must be 1 to 128 characters")
	}
	if category == "" || len(category) > maxCategoryLen {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "category must be 1 to 64 characters")
	}
	contact.Email = strings.TrimSpace(contact.Email)
	if _, err := mail.ParseAddress(contact.Email); err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "contact email is invalid")
	}
	if tier == 0 {
		tier = MinTier
	}
	if tier < MinTier || tier > MaxTier {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tier must be between 1 and 3")
	}
	if len(bank.NumberSealed) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "bank account is required")
	}
	return &Business{
		ID:          id,
		Name:        name,
		Category:    category,
		Contact:     contact,
		BankAccount: bank,
		Tier:        tier,
		Status:      StatusPending,
		Documents:   map[string]string{},
		APIKeys:     []APIKey{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (b *Business) IsApproved() bool {
	return b.Status == StatusApproved
}

// AttachDocuments replaces the supporting documents. Kinds and references are
// trimmed; both must be non-empty.
func (b *Business) AttachDocuments(docs map[string]string) error {
	if len(docs) > maxDocuments {
		return dErrors.New(dErrors.CodeValidation, "at most 10 documents may be attached")
	}
	out := make(map[string]string, len(docs))
	for kind, ref := range docs {
		kind = strings.ToLower(strings.TrimSpace(kind))
		ref = strings.TrimSpace(ref)
		if kind == "" || len(kind) > maxDocKindLen {
			return dErrors.New(dErrors.CodeValidation, "document kind must be 1 to 64 characters")
		}
		if ref == "" || len(ref) > maxDocRefLen {
			return dErrors.New(dErrors.CodeValidation, "document "+kind+" needs a reference of at most 2048 characters")
		}
		out[kind] = ref
	}
	b.Documents = out
	return nil
}

// CanApprove checks that the business is still awaiting review.
func (b *Business) CanApprove() error {
	if b.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvariantViolation, "business is not pending review")
	}
	return nil
}

// ApplyApproval records an anchored initial score.
func (b *Business) ApplyApproval(score int, anchorRef string, now time.Time) {
	b.Status = StatusApproved
	b.TrustScore = &score
	b.AnchorRef = anchorRef
	b.VerifiedAt = &now
	b.UpdatedAt = now
}

func (b *Business) CanReject() error {
	if b.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvariantViolation, "business is not pending review")
	}
	return nil
}

func (b *Business) ApplyRejection(reason string, now time.Time) {
	b.Status = StatusRejected
	b.RejectionReason = reason
	b.UpdatedAt = now
}

// ValidateRejectionReason trims reason and enforces its length.
func ValidateRejectionReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" || len(reason) > maxReasonLen {
		return "", dErrors.New(dErrors.CodeValidation, "rejection reason must be 1 to 500 characters")
	}
	return reason, nil
}

// FindKey returns the key with keyID, if any.
func (b *Business) FindKey(keyID string) (APIKey, bool) {
	for _, k := range b.APIKeys {
		if k.KeyID == keyID {
			return k, true
		}
	}
	return APIKey{}, false
}

// Clone returns a deep copy.
func (b *Business) Clone() *Business {
	if b == nil {
		return nil
	}
	c := *b
	c.BankAccount.NumberSealed = append([]byte(nil), b.BankAccount.NumberSealed...)
	c.APIKeys = append([]APIKey{}, b.APIKeys...)
	c.Documents = make(map[string]string, len(b.Documents))
	for k, v := range b.Documents {
		c.Documents[k] = v
	}
	if b.TrustScore != nil {
		s := *b.TrustScore
		c.TrustScore = &s
	}
	if b.VerifiedAt != nil {
		t := *b.VerifiedAt
		c.VerifiedAt = &t
	}
	return &c
}

// StatsView is the public dashboard summary.
type StatsView struct {
	BusinessID domain.BusinessID `json:"business_id"`
	Stats      Stats             `json:"stats"`
	TrustScore *int              `json:"trust_score,omitempty"`
	Tier       int               `json:"tier"`
	Status     Status            `json:"status"`
	APIKeys    int               `json:"api_keys"`
}

func (b *Business) StatsView() *StatsView {
	c := b.Clone()
	return &StatsView{
		BusinessID: c.ID,
		Stats:      c.Stats,
		TrustScore: c.TrustScore,
		Tier:       c.Tier,
		Status:     c.Status,
		APIKeys:    len(c.APIKeys),
	}
}
