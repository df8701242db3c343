package models

import (
	"time"

	"confirmit/pkg/domain"
)

// Anchorable is an entity whose canonical JSON form can be bound to the
// consensus log. Implementations must marshal deterministically.
type Anchorable interface {
	AnchorEntityID() string
	AnchorEntityType() string
}

// Record is the local proof that a digest was accepted by the consensus log.
// Records are append-only.
type Record struct {
	ID                 domain.AnchorID `json:"id"`
	EntityID           string          `json:"entity_id"`
	EntityType         string          `json:"entity_type"`
	TransactionRef     string          `json:"transaction_id"`
	ConsensusTimestamp time.Time       `json:"consensus_timestamp"`
	DataHash           string          `json:"data_hash"`
	ExplorerURL        string          `json:"explorer_url"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Message is the payload submitted to the consensus log.
type Message struct {
	EntityID   string `json:"entity_id"`
	EntityType string `json:"entity_type"`
	DataHash   string `json:"data_hash"`
	Timestamp  string `json:"timestamp"`
}

// Verification is the outcome of re-checking an entity against its anchor.
type Verification struct {
	TransactionRef  string `json:"transaction_id"`
	RecordedHash    string `json:"recorded_hash"`
	ComputedHash    string `json:"computed_hash"`
	EntityMatches   bool   `json:"entity_matches"`
	DigestMatches   bool   `json:"digest_matches"`
	LedgerConfirmed bool   `json:"ledger_confirmed"`
}

// Valid reports whether every check passed.
func (v *Verification) Valid() bool {
	return v.EntityMatches && v.DigestMatches && v.LedgerConfirmed
}
