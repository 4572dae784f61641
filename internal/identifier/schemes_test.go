package identifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSchemeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schemes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSchemeTable(t *testing.T) {
	t.Run("full override", func(t *testing.T) {
		path := writeSchemeFile(t, `
version: 2
legacy_authorities:
  - 食药监
  - 药监
action_suffixes:
  - 更
  - 改
`)
		table, err := LoadSchemeTable(path)
		require.NoError(t, err)
		assert.Equal(t, 2, table.Version)
		assert.Equal(t, []string{"食药监", "药监"}, table.LegacyAuthorities)
		assert.Equal(t, []string{"更", "改"}, table.ActionSuffixes)
	})

	t.Run("partial override keeps defaults", func(t *testing.T) {
		path := writeSchemeFile(t, "version: 3\n")
		table, err := LoadSchemeTable(path)
		require.NoError(t, err)
		assert.Equal(t, 3, table.Version)
		assert.Equal(t, DefaultSchemeTable().LegacyAuthorities, table.LegacyAuthorities)
		assert.Equal(t, DefaultSchemeTable().ActionSuffixes, table.ActionSuffixes)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := LoadSchemeTable(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("malformed yaml errors", func(t *testing.T) {
		path := writeSchemeFile(t, "version: [not an int\n")
		_, err := LoadSchemeTable(path)
		require.Error(t, err)
	})
}
