package incremental

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/doxy/internal/cache"
	"github.com/phobologic/doxy/internal/repocontext"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestPlanRunFullWhenNoCache(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.ts"), "export const a = 1")

	c, err := cache.Load(filepath.Join(dir, ".doxy", "cache.json"), "0.1.0", "now")
	require.NoError(t, err)

	plan, err := PlanRun(dir, nil, "2026.1.0", nil, c, nil, []string{"a.ts"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, ModeFull, plan.Mode)
	require.Len(t, plan.FilesToAnalyze, 1)
	assert.Equal(t, ReasonCacheMiss, plan.FilesToAnalyze[0].Reason)
}

func TestPlanRunCacheHitWhenUnchanged(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "a.ts")
	writeFile(t, filePath, "export const a = 1")
	writeFile(t, filepath.Join(dir, "package.json"), `{"dependencies": {"react": "^18.0.0"}}`)

	repoCtx, err := repocontext.Build(dir, nil, nil, nil)
	require.NoError(t, err)

	hash, err := hashFile(filePath)
	require.NoError(t, err)

	c, err := cache.Load(filepath.Join(dir, ".doxy", "cache.json"), "0.1.0", "now")
	require.NoError(t, err)
	c.Put("a.ts", cache.FileCacheEntry{
		FilePath:         "a.ts",
		ContentHash:      hash,
		AuthorityVersion: "2026.1.0",
		RepoContextHash:  repoCtx.ContextHash,
		ImportedPackages: []string{},
	})

	plan, err := PlanRun(dir, repoCtx, "2026.1.0", nil, c, nil, []string{"a.ts"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, ModeIncremental, plan.Mode)
	assert.Empty(t, plan.FilesToAnalyze)
	require.Len(t, plan.CachedFiles, 1)
}

func TestPlanRunInvalidatesOnContentChange(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "a.ts")
	writeFile(t, filePath, "export const a = 1")

	c, err := cache.Load(filepath.Join(dir, ".doxy", "cache.json"), "0.1.0", "now")
	require.NoError(t, err)
	c.Put("a.ts", cache.FileCacheEntry{
		FilePath:         "a.ts",
		ContentHash:      "stale-hash",
		AuthorityVersion: "2026.1.0",
		ImportedPackages: []string{},
	})

	plan, err := PlanRun(dir, nil, "2026.1.0", nil, c, nil, []string{"a.ts"}, Options{})
	require.NoError(t, err)
	require.Len(t, plan.FilesToAnalyze, 1)
	assert.Equal(t, ReasonFileChanged, plan.FilesToAnalyze[0].Reason)
}

func TestPlanRunInvalidatesOnAuthorityBump(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "a.ts")
	writeFile(t, filePath, "export const a = 1")
	hash, err := hashFile(filePath)
	require.NoError(t, err)

	c, err := cache.Load(filepath.Join(dir, ".doxy", "cache.json"), "0.1.0", "now")
	require.NoError(t, err)
	c.Put("a.ts", cache.FileCacheEntry{
		FilePath:         "a.ts",
		ContentHash:      hash,
		AuthorityVersion: "2025.1.0",
		ImportedPackages: []string{},
	})

	plan, err := PlanRun(dir, nil, "2026.1.0", nil, c, nil, []string{"a.ts"}, Options{})
	require.NoError(t, err)
	require.Len(t, plan.FilesToAnalyze, 1)
	assert.Equal(t, ReasonAuthorityUpdated, plan.FilesToAnalyze[0].Reason)
}

func TestPlanRunInvalidatesWithoutImportedPackages(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "a.ts")
	writeFile(t, filePath, "export const a = 1")
	hash, err := hashFile(filePath)
	require.NoError(t, err)

	c, err := cache.Load(filepath.Join(dir, ".doxy", "cache.json"), "0.1.0", "now")
	require.NoError(t, err)
	c.Put("a.ts", cache.FileCacheEntry{
		FilePath:         "a.ts",
		ContentHash:      hash,
		AuthorityVersion: "2026.1.0",
		// ImportedPackages intentionally omitted, simulating an older cache.
	})

	plan, err := PlanRun(dir, nil, "2026.1.0", nil, c, nil, []string{"a.ts"}, Options{})
	require.NoError(t, err)
	require.Len(t, plan.FilesToAnalyze, 1)
	assert.Equal(t, ReasonCacheMiss, plan.FilesToAnalyze[0].Reason)
}

func TestPlanRunInvalidatesWhenUnresolvedImportGainsCoverage(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "a.ts")
	writeFile(t, filePath, "export const a = 1")
	hash, err := hashFile(filePath)
	require.NoError(t, err)

	c, err := cache.Load(filepath.Join(dir, ".doxy", "cache.json"), "0.1.0", "now")
	require.NoError(t, err)
	c.Put("a.ts", cache.FileCacheEntry{
		FilePath:          "a.ts",
		ContentHash:       hash,
		AuthorityVersion:  "2026.1.0",
		ImportedPackages:  []string{},
		UnresolvedImports: []string{"left-pad"},
	})

	hasPackage := func(pkg string) bool { return pkg == "left-pad" }

	plan, err := PlanRun(dir, nil, "2026.1.0", hasPackage, c, nil, []string{"a.ts"}, Options{})
	require.NoError(t, err)
	require.Len(t, plan.FilesToAnalyze, 1)
	assert.Equal(t, ReasonAuthorityUpdated, plan.FilesToAnalyze[0].Reason)
}

func TestPlanRunCacheHitWithUnresolvedImportStillUncovered(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "a.ts")
	writeFile(t, filePath, "export const a = 1")
	hash, err := hashFile(filePath)
	require.NoError(t, err)

	c, err := cache.Load(filepath.Join(dir, ".doxy", "cache.json"), "0.1.0", "now")
	require.NoError(t, err)
	c.Put("a.ts", cache.FileCacheEntry{
		FilePath:          "a.ts",
		ContentHash:       hash,
		AuthorityVersion:  "2026.1.0",
		ImportedPackages:  []string{},
		UnresolvedImports: []string{"left-pad"},
	})

	hasPackage := func(pkg string) bool { return false }

	plan, err := PlanRun(dir, nil, "2026.1.0", hasPackage, c, nil, []string{"a.ts"}, Options{})
	require.NoError(t, err)
	assert.Empty(t, plan.FilesToAnalyze)
	require.Len(t, plan.CachedFiles, 1)
}

func TestPlanRunInvalidatesOnConfigChange(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "a.ts")
	writeFile(t, filePath, "export const a = 1")
	hash, err := hashFile(filePath)
	require.NoError(t, err)

	c, err := cache.Load(filepath.Join(dir, ".doxy", "cache.json"), "0.1.0", "now")
	require.NoError(t, err)
	c.ConfigHash = "old-config"
	c.Put("a.ts", cache.FileCacheEntry{
		FilePath:         "a.ts",
		ContentHash:      hash,
		AuthorityVersion: "2026.1.0",
		ImportedPackages: []string{},
	})

	plan, err := PlanRun(dir, nil, "2026.1.0", nil, c, nil, []string{"a.ts"}, Options{ConfigHash: "new-config"})
	require.NoError(t, err)
	assert.Equal(t, ModeFull, plan.Mode)
	require.Len(t, plan.FilesToAnalyze, 1)
	assert.Equal(t, ReasonConfigChanged, plan.FilesToAnalyze[0].Reason)
}

func TestPlanRunCacheHitWhenStoredConfigHashUnknown(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "a.ts")
	writeFile(t, filePath, "export const a = 1")
	hash, err := hashFile(filePath)
	require.NoError(t, err)

	c, err := cache.Load(filepath.Join(dir, ".doxy", "cache.json"), "0.1.0", "now")
	require.NoError(t, err)
	c.Put("a.ts", cache.FileCacheEntry{
		FilePath:         "a.ts",
		ContentHash:      hash,
		AuthorityVersion: "2026.1.0",
		ImportedPackages: []string{},
	})

	// An older cache that never stored a config fingerprint is treated as
	// unknown, not changed.
	plan, err := PlanRun(dir, nil, "2026.1.0", nil, c, nil, []string{"a.ts"}, Options{ConfigHash: "new-config"})
	require.NoError(t, err)
	assert.Empty(t, plan.FilesToAnalyze)
	require.Len(t, plan.CachedFiles, 1)
}

func TestFilterCandidatesIncludeExclude(t *testing.T) {
	out, err := filterCandidates(
		[]string{"src/a.ts", "src/a.test.ts", "dist/b.ts"},
		[]string{"src/**/*.ts"},
		[]string{"**/*.test.ts"},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.ts"}, out)
}

func TestHotLayerNilSafe(t *testing.T) {
	var h *HotLayer
	_, ok := h.get("x")
	assert.False(t, ok)
	h.put("x", cache.FileCacheEntry{})
	h.Invalidate("x")
}

func TestNewHotLayerDefaultsSize(t *testing.T) {
	h, err := NewHotLayer(0, 4)
	require.NoError(t, err)
	require.NotNil(t, h)
}
