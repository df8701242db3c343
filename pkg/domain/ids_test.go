package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "confirmit/pkg/domain-errors"
)

const validHash = "5f2b1c0d9e8a7b6c5d4e3f2a1b0c9d8e7f6a5b4c3d2e1f0a9b8c7d6e5f4a3b2c"

func TestParseSubjectHash_Invariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty string", "", true},
		{"too short", "abc123", true},
		{"uppercase hex", strings.ToUpper(validHash), true},
		{"non-hex characters", strings.Repeat("z", 64), true},
		{"SQL injection attempt", "'; DROP TABLE reputation_records;--", true},
		{"oversized input", strings.Repeat("a", 1000), true},
		{"valid digest", validHash, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ParseSubjectHash(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, SubjectHash(tt.input), h)
		})
	}
}

func TestSubjectHash_Short(t *testing.T) {
	assert.Equal(t, "5f2b1c0d", SubjectHash(validHash).Short())
	assert.Equal(t, "abc", SubjectHash("abc").Short())
}

func TestPrefixedIDs_RoundTrip(t *testing.T) {
	t.Run("business ids parse back", func(t *testing.T) {
		id := NewBusinessID()
		assert.True(t, strings.HasPrefix(id.String(), "BIZ-"))
		parsed, err := ParseBusinessID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})

	t.Run("scan ids parse back", func(t *testing.T) {
		id := NewScanID()
		assert.True(t, strings.HasPrefix(id.String(), "RCP-"))
		parsed, err := ParseScanID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})

	t.Run("generated ids are unique", func(t *testing.T) {
		assert.NotEqual(t, NewScanID(), NewScanID())
	})
}

func TestPrefixedIDs_RejectMalformed(t *testing.T) {
	inputs := []string{"", "BIZ-", "biz-ABC123", "RCP-ABC123", "BIZ-abc", "BIZ-../../etc", "BIZ-" + strings.Repeat("A", 60)}
	for _, input := range inputs {
		t.Run("business: "+input, func(t *testing.T) {
			_, err := ParseBusinessID(input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}

	_, err := ParseScanID("BIZ-ABC123")
	require.Error(t, err)
}

func TestParseReportID(t *testing.T) {
	t.Run("rejects nil uuid", func(t *testing.T) {
		_, err := ParseReportID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid uuid", func(t *testing.T) {
		u := uuid.New()
		id, err := ParseReportID(u.String())
		require.NoError(t, err)
		assert.Equal(t, ReportID(u), id)
		assert.False(t, id.IsNil())
	})
}

func TestUUIDIDs_JSON(t *testing.T) {
	type payload struct {
		Report ReportID `json:"report_id"`
		Anchor AnchorID `json:"id"`
	}
	in := payload{Report: NewReportID(), Anchor: NewAnchorID()}

	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"report_id":"`+in.Report.String()+`","id":"`+in.Anchor.String()+`"}`, string(raw))

	var out payload
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)

	t.Run("map keys use the text form", func(t *testing.T) {
		raw, err := json.Marshal(map[ReportID]int{in.Report: 1})
		require.NoError(t, err)
		assert.JSONEq(t, `{"`+in.Report.String()+`":1}`, string(raw))
	})

	t.Run("rejects malformed text", func(t *testing.T) {
		var id ReportID
		assert.Error(t, json.Unmarshal([]byte(`"not-a-uuid"`), &id))
	})
}
