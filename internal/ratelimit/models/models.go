package models

import (
	"strings"
	"time"
)

// EndpointClass groups public endpoints that share a per-IP budget.
type EndpointClass string

const (
	// ClassScan covers receipt uploads, the most expensive request.
	ClassScan EndpointClass = "scan"
	// ClassReport covers fraud report filing.
	ClassReport EndpointClass = "report"
	// ClassLookup covers account reputation checks.
	ClassLookup EndpointClass = "lookup"
	// ClassRegister covers business self-registration.
	ClassRegister EndpointClass = "register"
)

func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassScan, ClassReport, ClassLookup, ClassRegister:
		return true
	}
	return false
}

func (c EndpointClass) String() string { return string(c) }

// Limit is a sliding window budget.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result is the outcome of one check against a bucket.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds, set when denied
}

// NewIPKey builds the bucket key for a client IP within a class.
func NewIPKey(class EndpointClass, ip string) string {
	return "rl:ip:" + SanitizeKeySegment(ip) + ":" + class.String()
}

// SanitizeKeySegment replaces the key delimiter so a crafted identifier
// cannot land in another bucket.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// ExceededResponse is the 429 body.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}
