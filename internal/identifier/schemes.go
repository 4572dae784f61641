package identifier

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SchemeTable is the versioned dictionary that drives legacy-scheme
// recognition. The authority-name variants and action suffixes changed
// across regulator reorganizations, so they are data, not code: admin
// tooling can ship an updated table without a recompile.
type SchemeTable struct {
	Version int `yaml:"version"`

	// LegacyAuthorities are the historical "food/drug supervision"
	// authority-name stems, longest era first so alternation matches
	// greedily.
	LegacyAuthorities []string `yaml:"legacy_authorities"`

	// ActionSuffixes are the trailing amendment/extension/supplement
	// markers, seen parenthesized or bare.
	ActionSuffixes []string `yaml:"action_suffixes"`
}

// DefaultSchemeTable returns the built-in dictionary covering the authority
// eras observed in the registry corpus.
func DefaultSchemeTable() SchemeTable {
	return SchemeTable{
		Version:           1,
		LegacyAuthorities: []string{"食药监", "药监", "药管"},
		ActionSuffixes:    []string{"更", "延", "补", "换"},
	}
}

// LoadSchemeTable reads a dictionary from a YAML file. Missing lists fall
// back to the built-in defaults so a partial override file stays valid.
func LoadSchemeTable(path string) (SchemeTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SchemeTable{}, fmt.Errorf("read scheme table: %w", err)
	}
	table := DefaultSchemeTable()
	if err := yaml.Unmarshal(data, &table); err != nil {
		return SchemeTable{}, fmt.Errorf("parse scheme table: %w", err)
	}
	if len(table.LegacyAuthorities) == 0 {
		table.LegacyAuthorities = DefaultSchemeTable().LegacyAuthorities
	}
	if len(table.ActionSuffixes) == 0 {
		table.ActionSuffixes = DefaultSchemeTable().ActionSuffixes
	}
	return table, nil
}
