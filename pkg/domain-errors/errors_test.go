package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct code", func(t *testing.T) {
		err := New(CodeGuardRejected, "Missing required documents: SALE_DEED")
		assert.True(t, HasCode(err, CodeGuardRejected))
		assert.False(t, HasCode(err, CodeValidation))
	})

	t.Run("matches code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("request: %w", New(CodeConcurrentModification, "case changed"))
		assert.True(t, HasCode(err, CodeConcurrentModification))
	})

	t.Run("matches inner code of nested domain errors", func(t *testing.T) {
		inner := New(CodeTerminalState, "deed already finalized")
		err := Wrap(inner, CodeInternal, "finalize deed")
		assert.True(t, HasCode(err, CodeInternal))
		assert.True(t, HasCode(err, CodeTerminalState))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestMessageKeepsReasonVerbatim(t *testing.T) {
	reason := "Payment short by 500.00 (paid 1000.00 of 1500.00)"
	err := New(CodeGuardRejected, reason)
	assert.Equal(t, reason, Message(err))
	assert.Equal(t, reason, err.Error())
	assert.Equal(t, CodeGuardRejected, CodeOf(err))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeInternal, "ignored"))

	base := errors.New("connection reset")
	err := Wrap(base, CodeInternal, "load case")
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "load case: connection reset", err.Error())
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}
