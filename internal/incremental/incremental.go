// Package incremental implements change detection against git (or a
// content-hash fallback), per-file cache validity, rename migration, and
// run-plan assembly.
package incremental

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/phobologic/doxy/internal/analyze"
	"github.com/phobologic/doxy/internal/cache"
	"github.com/phobologic/doxy/internal/repocontext"
	"github.com/phobologic/doxy/internal/suppress"
)

// AnalysisReason explains why a file was placed in FilesToAnalyze rather
// than served from the cache.
type AnalysisReason string

const (
	ReasonFileChanged      AnalysisReason = "file-changed"
	ReasonFileNew          AnalysisReason = "file-new"
	ReasonFileRenamed      AnalysisReason = "file-renamed"
	ReasonManifestChanged  AnalysisReason = "manifest-changed"
	ReasonAuthorityUpdated AnalysisReason = "authority-updated"
	ReasonConfigChanged    AnalysisReason = "config-changed"
	ReasonCacheMiss        AnalysisReason = "cache-miss"
)

// Mode is "full" when no usable prior cache exists, "incremental" otherwise.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// FileToAnalyze is one plan entry requiring fresh analysis.
type FileToAnalyze struct {
	Path   string
	Reason AnalysisReason
}

// CachedFile is one plan entry served straight from the cache. Findings are
// the pre-suppression candidate set and Inline the file's parsed suppression
// directives, carried forward so the merge step can re-apply suppression
// with this run's current rules and baseline.
type CachedFile struct {
	Path     string
	Findings []analyze.Finding
	Inline   []suppress.Inline
}

// Rename is a detected from->to path move.
type Rename struct {
	From string
	To   string
}

// Stats counts the buckets a run plan partitions files into.
type Stats struct {
	ToAnalyze int
	Cached    int
	Renamed   int
}

// RunPlan is PlanRun's result.
type RunPlan struct {
	FilesToAnalyze []FileToAnalyze
	CachedFiles    []CachedFile
	Mode           Mode
	BaseRef        string
	GitAvailable   bool
	Renames        []Rename
	Stats          Stats
}

// Options configures one planRun call.
type Options struct {
	Include    []string
	Exclude    []string
	BaseRef    string // "" skips the baseRef..HEAD diff and rename detection; the unstaged diff, untracked files and content hashes are still consulted
	ConfigHash string // fingerprint of the active configuration; "" disables the check
	Log        *logrus.Logger
}

// HotLayer is the bounded in-memory LRU that sits in front of the on-disk
// cache for long-lived processes (watch mode); a one-shot CLI run never
// benefits from it since the on-disk cache is read exactly once either way.
type HotLayer struct {
	lru *lru.Cache[string, cache.FileCacheEntry]
}

// NewHotLayer builds a HotLayer sized to workers * multiplier entries.
func NewHotLayer(workers int, multiplier int) (*HotLayer, error) {
	size := workers * multiplier
	if size <= 0 {
		size = 64
	}
	l, err := lru.New[string, cache.FileCacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &HotLayer{lru: l}, nil
}

func (h *HotLayer) get(path string) (cache.FileCacheEntry, bool) {
	if h == nil {
		return cache.FileCacheEntry{}, false
	}
	return h.lru.Get(path)
}

func (h *HotLayer) put(path string, entry cache.FileCacheEntry) {
	if h == nil {
		return
	}
	h.lru.Add(path, entry)
}

// Invalidate drops path from the hot layer, used when a hot entry no longer
// validates (for instance its file's on-disk content changed under a
// watch-mode process) and when rename migration moves an entry.
func (h *HotLayer) Invalidate(path string) {
	if h == nil {
		return
	}
	h.lru.Remove(path)
}

// changeSet is what the VCS probe (or its fallback) contributes to planRun.
type changeSet struct {
	changed   map[string]struct{}
	untracked map[string]struct{}
	renames   []Rename
	available bool
}

// PlanRun assembles a RunPlan for root. c may be nil, in which case every
// file is treated as a fresh cache miss; a nil hot disables the in-memory
// layer. hasPackage
// answers "does the authority store now cover this package", used to
// invalidate an entry whose unresolvedImports have since gained coverage.
func PlanRun(root string, repoCtx *repocontext.RepoContext, authorityVersion string, hasPackage func(string) bool, c *cache.Cache, hot *HotLayer, allFiles []string, opts Options) (RunPlan, error) {
	changes, err := probeGit(root, opts.BaseRef)
	if err != nil {
		return RunPlan{}, err
	}

	candidates, err := filterCandidates(allFiles, opts.Include, opts.Exclude)
	if err != nil {
		return RunPlan{}, err
	}
	candidateSet := make(map[string]struct{}, len(candidates))
	for _, p := range candidates {
		candidateSet[p] = struct{}{}
	}

	plan := RunPlan{GitAvailable: changes.available, BaseRef: opts.BaseRef}

	if c == nil {
		plan.Mode = ModeFull
		for _, p := range candidates {
			plan.FilesToAnalyze = append(plan.FilesToAnalyze, FileToAnalyze{Path: p, Reason: ReasonCacheMiss})
		}
		plan.Stats.ToAnalyze = len(plan.FilesToAnalyze)
		return plan, nil
	}

	if len(c.Entries) == 0 {
		plan.Mode = ModeFull
	} else {
		plan.Mode = ModeIncremental
	}

	// A config-fingerprint mismatch invalidates globally: every cached
	// entry was produced under rules that no longer apply, so the run
	// degrades to full. An empty stored fingerprint (older cache format)
	// is treated as unknown, not changed.
	configChanged := opts.ConfigHash != "" && c.ConfigHash != "" && c.ConfigHash != opts.ConfigHash
	if configChanged {
		plan.Mode = ModeFull
	}

	// A rename whose content still matches migrates in place; one whose
	// content changed is analyzed fresh under its new path.
	renamedChanged := make(map[string]struct{})
	for _, r := range changes.renames {
		if !candidateInSet(candidateSet, r.To) {
			continue
		}
		if migrateRename(root, c, hot, r) {
			plan.Renames = append(plan.Renames, r)
			plan.Stats.Renamed++
		} else {
			renamedChanged[r.To] = struct{}{}
		}
	}

	for _, p := range candidates {
		entry, fromHot := hot.get(p)
		if !fromHot {
			entry, _ = c.Get(p)
		}

		reason, analyze := classify(root, p, entry, repoCtx, authorityVersion, hasPackage, configChanged, changes)
		if !analyze {
			plan.CachedFiles = append(plan.CachedFiles, CachedFile{Path: p, Findings: entry.Findings, Inline: entry.Inline})
			hot.put(p, entry)
			plan.Stats.Cached++
			continue
		}
		if fromHot {
			hot.Invalidate(p)
		}
		if _, renamed := renamedChanged[p]; renamed {
			reason = ReasonFileRenamed
		}
		plan.FilesToAnalyze = append(plan.FilesToAnalyze, FileToAnalyze{Path: p, Reason: reason})
		plan.Stats.ToAnalyze++
	}

	if opts.Log != nil {
		opts.Log.WithFields(logrus.Fields{
			"mode": plan.Mode, "toAnalyze": plan.Stats.ToAnalyze,
			"cached": plan.Stats.Cached, "renamed": plan.Stats.Renamed,
			"gitChanged": len(changes.changed), "gitUntracked": len(changes.untracked),
		}).Info("incremental: plan built")
	}
	return plan, nil
}

func candidateInSet(set map[string]struct{}, path string) bool {
	_, ok := set[path]
	return ok
}

// classify runs the cache-validity checks in order, short-circuiting at
// the first failing check so the reason returned is the most specific one.
func classify(root, path string, entry cache.FileCacheEntry, repoCtx *repocontext.RepoContext, authorityVersion string, hasPackage func(string) bool, configChanged bool, changes changeSet) (AnalysisReason, bool) {
	if entry.FilePath == "" {
		if _, known := changes.untracked[path]; known {
			return ReasonFileNew, true
		}
		return ReasonCacheMiss, true
	}

	if configChanged {
		return ReasonConfigChanged, true
	}

	hash, err := hashFile(filepath.Join(root, path))
	if err != nil {
		return ReasonCacheMiss, true
	}
	if hash != entry.ContentHash {
		return ReasonFileChanged, true
	}

	if entry.AuthorityVersion != authorityVersion {
		return ReasonAuthorityUpdated, true
	}

	if !entry.HasImportedPackages() {
		return ReasonCacheMiss, true // backward-compat: older cache format, invalidate unconditionally
	}

	if hasPackage != nil {
		for _, pkg := range entry.UnresolvedImports {
			if hasPackage(pkg) {
				return ReasonAuthorityUpdated, true
			}
		}
	}

	if repoCtx != nil && repoCtx.ContextHash == entry.RepoContextHash {
		return "", false
	}
	if repoCtx != nil {
		for _, pkg := range entry.ImportedPackages {
			current, ok := repoCtx.ResolveVersion(pkg)
			if !ok || current != entry.PackageVersions[pkg] {
				return ReasonManifestChanged, true
			}
		}
	}

	return "", false
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func migrateRename(root string, c *cache.Cache, hot *HotLayer, r Rename) bool {
	entry, ok := c.Get(r.From)
	if !ok {
		return false
	}
	hash, err := hashFile(filepath.Join(root, r.To))
	if err != nil || hash != entry.ContentHash {
		c.Delete(r.From)
		return false
	}
	c.Rename(r.From, r.To)
	hot.Invalidate(r.From)
	return true
}

func filterCandidates(all, include, exclude []string) ([]string, error) {
	var out []string
	for _, p := range all {
		if len(include) > 0 {
			matched := false
			for _, pattern := range include {
				if ok, err := doublestar.Match(pattern, p); err == nil && ok {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		excluded := false
		for _, pattern := range exclude {
			if ok, err := doublestar.Match(pattern, p); err == nil && ok {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// probeGit shells out to git ls-files/diff with a short-timeout
// exec.CommandContext, setting changeSet.available false on any failure so
// the caller degrades to content-hash-only change detection.
func probeGit(root, baseRef string) (changeSet, error) {
	if _, err := os.Stat(filepath.Join(root, ".git")); err != nil {
		return changeSet{available: false}, nil
	}

	cs := changeSet{changed: map[string]struct{}{}, untracked: map[string]struct{}{}, available: true}

	if baseRef != "" {
		if names, err := gitDiffNames(root, baseRef+"..HEAD"); err == nil {
			for _, n := range names {
				cs.changed[n] = struct{}{}
			}
		} else {
			cs.available = false
		}
		if renames, err := gitRenames(root, baseRef+"..HEAD"); err == nil {
			cs.renames = append(cs.renames, renames...)
		} else {
			cs.available = false
		}
	}
	if names, err := gitDiffNames(root, ""); err == nil {
		for _, n := range names {
			cs.changed[n] = struct{}{}
		}
	} else {
		cs.available = false
	}
	if names, err := gitUntracked(root); err == nil {
		for _, n := range names {
			cs.untracked[n] = struct{}{}
		}
	} else {
		cs.available = false
	}

	return cs, nil
}

func gitCommand(root string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = root
	return cmd.Output()
}

func gitDiffNames(root, rangeSpec string) ([]string, error) {
	args := []string{"diff", "--name-only", "--diff-filter=ACMR"}
	if rangeSpec != "" {
		args = append(args, rangeSpec)
	}
	out, err := gitCommand(root, args...)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func gitRenames(root, rangeSpec string) ([]Rename, error) {
	args := []string{"diff", "--name-status", "--diff-filter=R", "-M", rangeSpec}
	out, err := gitCommand(root, args...)
	if err != nil {
		return nil, err
	}
	var renames []Rename
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 || !strings.HasPrefix(fields[0], "R") {
			continue
		}
		renames = append(renames, Rename{From: fields[1], To: fields[2]})
	}
	return renames, nil
}

func gitUntracked(root string) ([]string, error) {
	out, err := gitCommand(root, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func splitLines(out []byte) []string {
	trimmed := strings.TrimRight(string(out), "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}
