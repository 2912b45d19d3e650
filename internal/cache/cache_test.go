package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/doxy/internal/analyze"
	"github.com/phobologic/doxy/internal/suppress"
)

func TestCacheLoadMissingFileIsEmpty(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "cache.json"), "0.1.0", "2026-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Empty(t, c.Entries)
}

func TestCacheSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".doxy", "cache.json")

	c, err := Load(path, "0.1.0", "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	c.Put("src/a.ts", FileCacheEntry{
		FilePath:         "src/a.ts",
		ContentHash:      "deadbeef",
		AuthorityVersion: "2026.1.0",
		ImportedPackages: []string{"react"},
		PackageVersions:  map[string]string{"react": "18.2.0"},
		Findings: []analyze.Finding{
			{ID: "dxy_aaaaaaaa", LongID: "dxy:react/useState:src/a.ts:1:1", Kind: analyze.KindDeprecatedAPI},
		},
		AnalyzedAt: "2026-01-01T00:00:00Z",
	})
	require.NoError(t, c.Save())

	reloaded, err := Load(path, "0.1.0", "2026-01-01T00:00:00Z")
	require.NoError(t, err)
	require.Contains(t, reloaded.Entries, "src/a.ts")
	assert.Equal(t, "deadbeef", reloaded.Entries["src/a.ts"].ContentHash)
	assert.True(t, reloaded.Entries["src/a.ts"].HasImportedPackages())
}

func TestCacheRoundTripsEmptyImportedPackagesAsPopulated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".doxy", "cache.json")

	c, err := Load(path, "0.1.0", "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	c.Put("src/a.ts", FileCacheEntry{
		FilePath:         "src/a.ts",
		ContentHash:      "deadbeef",
		AuthorityVersion: "2026.1.0",
		ImportedPackages: []string{},
		Findings:         []analyze.Finding{},
		AnalyzedAt:       "2026-01-01T00:00:00Z",
	})
	require.NoError(t, c.Save())

	reloaded, err := Load(path, "0.1.0", "2026-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.True(t, reloaded.Entries["src/a.ts"].HasImportedPackages())
}

func TestCacheRoundTripsInlineDirectives(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".doxy", "cache.json")

	c, err := Load(path, "0.1.0", "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	c.Put("src/a.ts", FileCacheEntry{
		FilePath:         "src/a.ts",
		ContentHash:      "deadbeef",
		AuthorityVersion: "2026.1.0",
		ImportedPackages: []string{"react"},
		Findings: []analyze.Finding{
			{ID: "dxy_aaaaaaaa", LongID: "dxy:react/useState:src/a.ts:1:1", Kind: analyze.KindDeprecatedAPI},
		},
		Inline: []suppress.Inline{
			{Kind: analyze.KindDeprecatedAPI, Reason: "tracked in JIRA-123", StartLine: 1, EndLine: 1},
		},
		AnalyzedAt: "2026-01-01T00:00:00Z",
	})
	require.NoError(t, c.Save())

	reloaded, err := Load(path, "0.1.0", "2026-01-01T00:00:00Z")
	require.NoError(t, err)
	require.Len(t, reloaded.Entries["src/a.ts"].Inline, 1)
	assert.Equal(t, "tracked in JIRA-123", reloaded.Entries["src/a.ts"].Inline[0].Reason)
}

func TestCacheRoundTripsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")

	raw := `{
		"entries": {
			"src/a.ts": {
				"filePath": "src/a.ts",
				"contentHash": "abc",
				"authorityVersion": "1.0.0",
				"findings": [],
				"analyzedAt": "2026-01-01T00:00:00Z",
				"fromTheFuture": "keep-me"
			}
		},
		"createdAt": "2026-01-01T00:00:00Z",
		"doxyVersion": "0.1.0"
	}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	c, err := Load(path, "0.2.0", "2026-02-01T00:00:00Z")
	require.NoError(t, err)
	require.NoError(t, c.Save())

	rewritten, err := os.ReadFile(path)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(rewritten, &generic))
	entries := generic["entries"].(map[string]any)
	entry := entries["src/a.ts"].(map[string]any)
	assert.Equal(t, "keep-me", entry["fromTheFuture"])
}

func TestCacheRename(t *testing.T) {
	c := &Cache{Entries: map[string]FileCacheEntry{
		"old.ts": {
			FilePath: "old.ts",
			Findings: []analyze.Finding{{File: "old.ts"}},
		},
	}}
	c.Rename("old.ts", "new.ts")

	_, stillThere := c.Entries["old.ts"]
	assert.False(t, stillThere)
	moved, ok := c.Entries["new.ts"]
	require.True(t, ok)
	assert.Equal(t, "new.ts", moved.FilePath)
	assert.Equal(t, "new.ts", moved.Findings[0].File)
}

func TestCacheGCRemovesMissingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "present.ts"), []byte("x"), 0o644))

	c := &Cache{Entries: map[string]FileCacheEntry{
		"present.ts": {FilePath: "present.ts"},
		"gone.ts":    {FilePath: "gone.ts"},
	}}
	removed := c.GC(dir)

	assert.Equal(t, []string{"gone.ts"}, removed)
	assert.Contains(t, c.Entries, "present.ts")
	assert.NotContains(t, c.Entries, "gone.ts")
}

func TestCacheRoundTripsConfigHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".doxy", "cache.json")

	c, err := Load(path, "0.1.0", "2026-01-01T00:00:00Z")
	require.NoError(t, err)
	c.ConfigHash = "abc123"
	require.NoError(t, c.Save())

	reloaded, err := Load(path, "0.1.0", "2026-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "abc123", reloaded.ConfigHash)
}

func TestBaselineRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".doxy", "baseline.json")
	require.NoError(t, SaveBaseline(path, []string{"dxy:react/useState:a.ts:1:1"}, "0.1.0", "2026-01-01T00:00:00Z"))

	b, err := LoadBaseline(path)
	require.NoError(t, err)
	assert.True(t, b.Contains("dxy:react/useState:a.ts:1:1"))
	assert.False(t, b.Contains("dxy:react/useReducer:a.ts:1:1"))
}

func TestBaselineLoadMissingIsEmpty(t *testing.T) {
	b, err := LoadBaseline(filepath.Join(t.TempDir(), "baseline.json"))
	require.NoError(t, err)
	assert.False(t, b.Contains("anything"))
}
