package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "regsync/pkg/domain-errors"
)

func TestParseEvidenceGrade(t *testing.T) {
	t.Run("accepts every supported grade", func(t *testing.T) {
		for _, s := range []string{"A", "B", "C", "D", "MANUAL"} {
			g, err := ParseEvidenceGrade(s)
			require.NoError(t, err, s)
			assert.Equal(t, s, g.String())
			assert.True(t, g.IsValid())
		}
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := ParseEvidenceGrade("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects unsupported values", func(t *testing.T) {
		for _, s := range []string{"a", "E", "manual", "A+"} {
			_, err := ParseEvidenceGrade(s)
			require.Error(t, err, s)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), s)
		}
	})
}
