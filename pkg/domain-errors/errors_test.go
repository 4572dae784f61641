package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapAndHasCode(t *testing.T) {
	t.Run("wrap nil returns nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("code survives fmt wrapping", func(t *testing.T) {
		err := New(CodeNotFound, "no such entity")
		wrapped := fmt.Errorf("loading registration: %w", err)
		assert.True(t, HasCode(wrapped, CodeNotFound))
		assert.False(t, HasCode(wrapped, CodeInternal))
		assert.Equal(t, CodeNotFound, CodeOf(wrapped))
	})

	t.Run("outermost code wins", func(t *testing.T) {
		inner := New(CodeNotFound, "row missing")
		outer := Wrap(inner, CodeInternal, "store failure")
		assert.Equal(t, CodeInternal, CodeOf(outer))
		// both codes remain findable in the chain
		assert.True(t, HasCode(outer, CodeInternal))
		assert.True(t, HasCode(outer, CodeNotFound))
	})

	t.Run("unwrap reaches the cause", func(t *testing.T) {
		cause := errors.New("driver: bad connection")
		err := Wrap(cause, CodeInternal, "commit")
		require.ErrorIs(t, err, cause)
	})

	t.Run("plain errors default to internal", func(t *testing.T) {
		err := errors.New("boring")
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})
}
