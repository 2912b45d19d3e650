package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/doxy/internal/analyze"
)

func TestLoadAppliesDefaults(t *testing.T) {
	opts, err := Load(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults.Severity, opts.Severity)
	assert.Equal(t, Defaults.FailOn, opts.FailOn)
	assert.NotEmpty(t, opts.Include)
}

func TestLoadReadsDoxyrcYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".doxyrc.yaml"), []byte(`
severity: warning
failOn: warning
requireSuppressionReason: true
suppressions:
  - package: react
    kind: deprecated-api
    reason: migrating off class components
`), 0o644))

	opts, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "warning", opts.Severity)
	assert.True(t, opts.RequireSuppressionReason)
	require.Len(t, opts.Suppressions, 1)
	assert.Equal(t, "react", opts.Suppressions[0].Package)
}

func TestLoadRejectsInvalidSeverity(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".doxyrc.yaml"), []byte("severity: critical\n"), 0o644))

	_, err := Load(dir, nil)
	require.Error(t, err)
}

func TestOptionsRulesConvertsKind(t *testing.T) {
	opts := Options{Suppressions: []SuppressionRuleConfig{
		{Package: "react", Kind: "deprecated-api", Reason: "ok"},
		{Package: "vue", Kind: "*", Reason: "wildcard"},
	}}
	rules := opts.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, analyze.KindDeprecatedAPI, rules[0].Kind)
	assert.Equal(t, analyze.Kind(""), rules[1].Kind)
}
