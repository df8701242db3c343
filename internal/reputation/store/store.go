// Package store persists reputation records. Both implementations keep
// check counts and fraud counters as atomic increments so concurrent refreshes
// and fraud reports never lose an update.
package store

import (
	"confirmit/internal/reputation/models"
	"confirmit/pkg/platform/sentinel"
	pstrings "confirmit/pkg/platform/strings"
)

// ErrNotFound is returned when no record exists for a subject hash.
var ErrNotFound = sentinel.ErrNotFound

// refreshedFlags returns the oracle flags, keeping the local fraud flag when
// the merged record still carries fraud reports the oracle may not know about.
func refreshedFlags(existing, incoming []string, fraudTotal int) []string {
	if fraudTotal > 0 && containsFlag(existing, models.ReportedFlag) {
		return pstrings.Union(incoming, []string{models.ReportedFlag})
	}
	return pstrings.Union(incoming, nil)
}

func containsFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}
