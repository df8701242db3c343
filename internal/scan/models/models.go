package models

import (
	"time"

	anchormodels "confirmit/internal/anchor/models"
	"confirmit/internal/progress"
	repmodels "confirmit/internal/reputation/models"
	"confirmit/pkg/domain"
)

// Status is the lifecycle state of a scan session.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage names, in pipeline order.
const (
	StageUploading  = "uploading"
	StageAnalyzing  = "analyzing"
	StageValidating = "validating"
	StageReputation = "reputation"
	StageFinalizing = "finalizing"
	StageAnchoring  = "anchoring"
	StageCompleted  = progress.StageCompleted
	StageFailed     = progress.StageFailed
)

// AssetRef locates an uploaded document.
type AssetRef struct {
	URL     string `json:"url"`
	AssetID string `json:"asset_id"`
}

// StageEvent is one recorded progress step.
type StageEvent struct {
	Name        string    `json:"name"`
	ProgressPct int       `json:"progress"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// Verdicts an analysis may return.
const (
	VerdictAuthentic  = "authentic"
	VerdictSuspicious = "suspicious"
	VerdictFraudulent = "fraudulent"
	VerdictUnclear    = "unclear"
)

// Merchant is the payee an analysis read off the document.
type Merchant struct {
	Name          string `json:"name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	BankCode      string `json:"bank_code,omitempty"`
}

// HasAccount reports whether the analysis found a payee account to check.
func (m *Merchant) HasAccount() bool {
	return m != nil && m.AccountNumber != ""
}

// Reputation is the merchant account check attached to a scan.
type Reputation struct {
	SubjectHash domain.SubjectHash  `json:"account_hash"`
	TrustScore  int                 `json:"trust_score"`
	RiskLevel   repmodels.RiskLevel `json:"risk_level"`
	FraudTotal  int                 `json:"fraud_reports"`
	Flags       []string            `json:"flags"`
	Stale       bool                `json:"stale,omitempty"`
}

// Analysis is the normalized analysis oracle result.
type Analysis struct {
	TrustScore       int         `json:"trust_score"`
	Verdict          string      `json:"verdict"`
	Issues           []string    `json:"issues"`
	Merchant         *Merchant   `json:"merchant,omitempty"`
	Reputation       *Reputation `json:"reputation,omitempty"`
	ProcessingTimeMS int64       `json:"processing_time_ms"`
	Summary          string      `json:"summary,omitempty"`
}

// Session is the durable state of one scan. Stages only grow and their
// percentages strictly increase.
type Session struct {
	ID            domain.ScanID        `json:"receipt_id"`
	UserID        string               `json:"user_id,omitempty"`
	Asset         AssetRef             `json:"asset"`
	Status        Status               `json:"status"`
	Stages        []StageEvent         `json:"stages"`
	Analysis      *Analysis            `json:"analysis,omitempty"`
	Anchor        *anchormodels.Record `json:"anchor,omitempty"`
	FailureReason string               `json:"failure_reason,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func NewSession(id domain.ScanID, userID string, now time.Time) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		Status:    StatusProcessing,
		Stages:    []StageEvent{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// LastProgress returns the highest recorded percentage, or 0.
func (s *Session) LastProgress() int {
	if len(s.Stages) == 0 {
		return 0
	}
	return s.Stages[len(s.Stages)-1].ProgressPct
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Stages = append([]StageEvent{}, s.Stages...)
	if s.Analysis != nil {
		a := *s.Analysis
		a.Issues = append([]string(nil), s.Analysis.Issues...)
		if s.Analysis.Merchant != nil {
			m := *s.Analysis.Merchant
			a.Merchant = &m
		}
		if s.Analysis.Reputation != nil {
			r := *s.Analysis.Reputation
			r.Flags = append([]string(nil), s.Analysis.Reputation.Flags...)
			a.Reputation = &r
		}
		c.Analysis = &a
	}
	if s.Anchor != nil {
		r := *s.Anchor
		c.Anchor = &r
	}
	return &c
}

// Snapshot is the anchored form of a completed scan. The merchant account
// number is left out.
type Snapshot struct {
	ScanID     domain.ScanID `json:"receipt_id"`
	AssetID    string        `json:"asset_id"`
	TrustScore int           `json:"trust_score"`
	Verdict    string        `json:"verdict"`
	Issues     []string      `json:"issues"`
	Merchant   string        `json:"merchant,omitempty"`
}

func (s Snapshot) AnchorEntityID() string   { return s.ScanID.String() }
func (s Snapshot) AnchorEntityType() string { return "receipt_scan" }

// SnapshotOf builds the anchored form of a session's analysis.
func SnapshotOf(s *Session) Snapshot {
	snap := Snapshot{ScanID: s.ID, AssetID: s.Asset.AssetID, Issues: []string{}}
	if s.Analysis != nil {
		snap.TrustScore = s.Analysis.TrustScore
		snap.Verdict = s.Analysis.Verdict
		snap.Issues = append(snap.Issues, s.Analysis.Issues...)
		if s.Analysis.Merchant != nil {
			snap.Merchant = s.Analysis.Merchant.Name
		}
	}
	return snap
}

// Upload is a document submitted for scanning.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
	UserID      string
}

// Options select the optional pipeline stages.
type Options struct {
	Anchor          bool
	CheckReputation bool
	// ScanID, when set, is used for the new session instead of a generated
	// one, so a client can open the progress stream without waiting.
	ScanID domain.ScanID
}
