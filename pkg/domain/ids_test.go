package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "transferdesk/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseCaseID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseCaseID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseCaseID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseCaseID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, CaseID(validUUID), id)
	})
}

// TestTypeDistinction verifies the compiler keeps case and deed IDs apart.
func TestTypeDistinction(t *testing.T) {
	caseID := NewCaseID()
	deedID := NewDeedID()

	// var _ CaseID = deedID   // compile error
	// var _ DeedID = caseID   // compile error

	assert.NotEqual(t, uuid.UUID(caseID), uuid.UUID(deedID))
}

func TestParseID_BoundaryInputs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE cases;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCaseID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestAllIDTypes_ConsistentBehavior ensures all ID types parse identically.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()
	invalidInputs := []string{"", "invalid", uuid.Nil.String()}

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errCase := ParseCaseID(validUUID)
		_, errClearance := ParseClearanceID(validUUID)
		_, errAttachment := ParseAttachmentID(validUUID)
		_, errBreakdown := ParseBreakdownID(validUUID)
		_, errDeed := ParseDeedID(validUUID)
		_, errAudit := ParseAuditEntryID(validUUID)

		require.NoError(t, errCase)
		require.NoError(t, errClearance)
		require.NoError(t, errAttachment)
		require.NoError(t, errBreakdown)
		require.NoError(t, errDeed)
		require.NoError(t, errAudit)
	})

	for _, input := range invalidInputs {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errCase := ParseCaseID(input)
			_, errClearance := ParseClearanceID(input)
			_, errDeed := ParseDeedID(input)
			_, errAudit := ParseAuditEntryID(input)

			require.Error(t, errCase)
			require.Error(t, errClearance)
			require.Error(t, errDeed)
			require.Error(t, errAudit)
		})
	}
}

func TestCaseIDTextRoundTrip(t *testing.T) {
	id := NewCaseID()
	text, err := id.MarshalText()
	require.NoError(t, err)

	var parsed CaseID
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, id, parsed)
	assert.Error(t, parsed.UnmarshalText([]byte("nope")))
}

func TestTextRoundTripKeepsNilIDs(t *testing.T) {
	var zero ClearanceID
	text, err := zero.MarshalText()
	require.NoError(t, err)

	parsed := NewClearanceID()
	require.NoError(t, parsed.UnmarshalText(text))
	assert.True(t, parsed.IsNil())
}
