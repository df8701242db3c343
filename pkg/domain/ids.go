package domain

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	dErrors "confirmit/pkg/domain-errors"
)

// Typed identifiers keep subject hashes, business ids and scan ids from being
// passed where another kind of key is expected.
type (
	// SubjectHash is the hex SHA-256 of a raw account identifier. It is the
	// storage key for reputation records and is never reversed.
	SubjectHash string
	BusinessID  string
	ScanID      string
	ReportID    uuid.UUID
	AnchorID    uuid.UUID
)

const (
	subjectHashLen   = 64
	maxPrefixedIDLen = 48

	businessIDPrefix = "BIZ-"
	scanIDPrefix     = "RCP-"
)

// ParseSubjectHash validates a 64 character lowercase hex digest.
func ParseSubjectHash(s string) (SubjectHash, error) {
	if len(s) != subjectHashLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject hash must be 64 hex characters")
	}
	if strings.ToLower(s) != s {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject hash must be lowercase hex")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject hash must be hex encoded")
	}
	return SubjectHash(s), nil
}

func (h SubjectHash) String() string { return string(h) }

// Short returns the first 8 characters, safe for logs.
func (h SubjectHash) Short() string {
	if len(h) < 8 {
		return string(h)
	}
	return string(h[:8])
}

// NewBusinessID generates a BIZ- prefixed identifier.
func NewBusinessID() BusinessID {
	return BusinessID(businessIDPrefix + randomSuffix())
}

func ParseBusinessID(s string) (BusinessID, error) {
	if err := parsePrefixed(s, businessIDPrefix); err != nil {
		return "", err
	}
	return BusinessID(s), nil
}

func (id BusinessID) String() string { return string(id) }

// NewScanID generates an RCP- prefixed identifier for a receipt scan session.
func NewScanID() ScanID {
	return ScanID(scanIDPrefix + randomSuffix())
}

func ParseScanID(s string) (ScanID, error) {
	if err := parsePrefixed(s, scanIDPrefix); err != nil {
		return "", err
	}
	return ScanID(s), nil
}

func (id ScanID) String() string { return string(id) }

func NewReportID() ReportID { return ReportID(uuid.New()) }

func ParseReportID(s string) (ReportID, error) {
	u, err := parseUUID(s)
	return ReportID(u), err
}

func (id ReportID) String() string { return uuid.UUID(id).String() }
func (id ReportID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// MarshalText writes the canonical uuid form so JSON carries a string.
func (id ReportID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ReportID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func NewAnchorID() AnchorID { return AnchorID(uuid.New()) }

func (id AnchorID) String() string { return uuid.UUID(id).String() }

func (id AnchorID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *AnchorID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid uuid")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be nil")
	}
	return u, nil
}

func parsePrefixed(s, prefix string) error {
	if len(s) <= len(prefix) || len(s) > maxPrefixedIDLen || !strings.HasPrefix(s, prefix) {
		return dErrors.New(dErrors.CodeInvalidInput, "id must start with "+prefix)
	}
	for _, r := range s[len(prefix):] {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return dErrors.New(dErrors.CodeInvalidInput, "id contains invalid characters")
		}
	}
	return nil
}

func randomSuffix() string {
	u := uuid.New()
	return strings.ToUpper(hex.EncodeToString(u[:8]))
}
