package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "transferdesk/pkg/domain"
	dErrors "transferdesk/pkg/domain-errors"
)

func TestParseSection(t *testing.T) {
	sec, err := ParseSection(" housing ")
	require.NoError(t, err)
	assert.Equal(t, SectionHousing, sec)

	_, err = ParseSection("POLICE")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestParseClearanceStatus(t *testing.T) {
	st, err := ParseClearanceStatus("objection")
	require.NoError(t, err)
	assert.Equal(t, ClearanceObjection, st)

	_, err = ParseClearanceStatus("maybe")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestNewCase(t *testing.T) {
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	t.Run("starts at the initial stage with version 1", func(t *testing.T) {
		c, err := NewCase(id.NewCaseID(), "SUBMITTED", " PLOT-12 ", "seller-1", "buyer-1", "clerk", now)
		require.NoError(t, err)
		assert.Equal(t, StageCode("SUBMITTED"), c.CurrentStage)
		assert.Equal(t, int64(1), c.Version)
		assert.Equal(t, "PLOT-12", c.PropertyRef)
		assert.Equal(t, now, c.CreatedAt)
	})

	t.Run("requires a property reference", func(t *testing.T) {
		_, err := NewCase(id.NewCaseID(), "SUBMITTED", "  ", "s", "b", "clerk", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestAccountsBreakdownClone(t *testing.T) {
	b := &AccountsBreakdown{FeeHeads: map[string]decimal.Decimal{"arrears": decimal.NewFromInt(10)}}
	c := b.Clone()
	c.FeeHeads["arrears"] = decimal.NewFromInt(99)
	assert.True(t, b.FeeHeads["arrears"].Equal(decimal.NewFromInt(10)))
	assert.False(t, b.IsCalculated())

	var nilBreakdown *AccountsBreakdown
	assert.Nil(t, nilBreakdown.Clone())
}

func TestSectionGroupContains(t *testing.T) {
	g := SectionGroup{Name: "BCA_HOUSING", Sections: []Section{SectionBCA, SectionHousing}}
	assert.True(t, g.Contains(SectionHousing))
	assert.False(t, g.Contains(SectionWater))
}
