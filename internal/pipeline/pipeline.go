// Package pipeline sequences the repo context, authority store,
// incremental plan, and per-file resolve+analyze+suppress stages, then
// merges fresh and cached findings into one deterministic result.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/doxy/internal/analyze"
	"github.com/phobologic/doxy/internal/authority"
	"github.com/phobologic/doxy/internal/cache"
	"github.com/phobologic/doxy/internal/config"
	"github.com/phobologic/doxy/internal/errs"
	"github.com/phobologic/doxy/internal/incremental"
	"github.com/phobologic/doxy/internal/jsparse"
	"github.com/phobologic/doxy/internal/repocontext"
	"github.com/phobologic/doxy/internal/resolve"
	"github.com/phobologic/doxy/internal/suppress"
)

// FileTimeout bounds a single file's parse+analyze call; a
// pathological parse past this deadline produces an internal-info finding
// for that file rather than hanging the run.
const FileTimeout = 10 * time.Second

// Result is one run's final, merged output.
type Result struct {
	Findings []analyze.Finding
	Plan     incremental.RunPlan
	Cache    *cache.Cache
}

// Options bundles everything a Run call needs beyond the filesystem root.
type Options struct {
	Config     config.Options
	BaseRef    string
	NumWorkers int
	Baseline   suppress.Baseline
	Log        *logrus.Logger
	HotLayer   *incremental.HotLayer
}

// Run executes one full pipeline pass: loadRepoContext, buildAuthority,
// planRun, analyzeFiles, mergeWithCache — exposed here as one call, but
// each stage below is also independently callable (the "pipeline
// boundary" note) so a front end can substitute any of them.
func Run(ctx context.Context, root string, authorityRoots []string, opts Options) (Result, error) {
	repoCtx, err := LoadRepoContext(root, opts.Config, opts.Log)
	if err != nil {
		return Result{}, err
	}

	store, err := BuildAuthority(authorityRoots, opts.Log)
	if err != nil {
		return Result{}, err
	}

	allFiles, err := repocontext.DiscoverSourceFiles(root, func(ext string) bool {
		_, ok := jsparse.Extensions[ext]
		return ok
	})
	if err != nil {
		return Result{}, err
	}

	c, err := cache.Load(filepath.Join(root, ".doxy", "cache.json"), doxyVersion, nowRFC3339())
	if err != nil {
		return Result{}, err
	}

	configHash := opts.Config.Hash()
	plan, err := incremental.PlanRun(root, repoCtx, store.DataVersion(), store.HasPackage, c, opts.HotLayer, allFiles, incremental.Options{
		Include:    opts.Config.Include,
		Exclude:    opts.Config.Exclude,
		BaseRef:    opts.BaseRef,
		ConfigHash: configHash,
		Log:        opts.Log,
	})
	if err != nil {
		return Result{}, err
	}

	// analyzeErr is diagnostic only when it wraps contained per-file
	// failures; a *ConfigError (requireSuppressionReason violation)
	// is fatal and aborts before the cache is rewritten.
	internalErrs, updatedEntries, analyzeErr := AnalyzeFiles(ctx, root, plan.FilesToAnalyze, repoCtx, store, opts)
	var configErr *errs.ConfigError
	if errors.As(analyzeErr, &configErr) {
		return Result{}, analyzeErr
	}
	if analyzeErr != nil && opts.Log != nil {
		opts.Log.WithError(analyzeErr).Debug("pipeline: some files failed analysis and were skipped")
	}
	for path, entry := range updatedEntries {
		c.Put(path, entry)
	}

	merged := MergeWithCache(internalErrs, updatedEntries, plan.CachedFiles, opts.Config.Rules(), opts.Baseline)

	removed := c.GC(root)
	if opts.Log != nil && len(removed) > 0 {
		opts.Log.WithFields(logrus.Fields{"removed": len(removed)}).Info("pipeline: cache gc")
	}
	c.ConfigHash = configHash
	if err := c.Save(); err != nil {
		return Result{}, err
	}

	return Result{Findings: merged, Plan: plan, Cache: c}, nil
}

// LoadRepoContext is the repo-context pipeline boundary step.
func LoadRepoContext(root string, cfg config.Options, log *logrus.Logger) (*repocontext.RepoContext, error) {
	return repocontext.Build(root, cfg.Frameworks, cfg.PathAliases, log)
}

// BuildAuthority is the authority pipeline boundary step. roots are consulted in
// order, first-hit-wins on a (package, export) key collision; a later root
// contributes every key the earlier ones lack, including further exports of
// a package an earlier root already covers.
func BuildAuthority(roots []string, log *logrus.Logger) (*authority.Store, error) {
	var merged *authority.Store
	for _, root := range roots {
		store, err := authority.Load(root, log)
		if err != nil {
			return nil, err
		}
		if merged == nil {
			merged = store
			continue
		}
		merged = authority.Merge(merged, store)
	}
	if merged == nil {
		return nil, errs.Authority("building authority store", errNoAuthorityRoots)
	}
	return merged, nil
}

var errNoAuthorityRoots = errorString("no authorityDataSources configured")

type errorString string

func (e errorString) Error() string { return string(e) }

// AnalyzeFiles is the per-file pipeline boundary step: it fans out over
// plan across a bounded errgroup worker pool, using context
// cancellation and per-file timeouts instead of a raw channel/waitgroup
// pair, since x/sync/errgroup already gives us SetLimit and first-error
// propagation for free.
//
// It returns internal-error findings separately from the per-file cache
// entries: entries carry the pre-suppression candidate findings for
// successfully analyzed files, since suppression is applied uniformly at
// merge time rather than baked in here. internal-error findings are
// diagnostic notices rather than suppression subjects, so MergeWithCache
// merges them in unsuppressed.
func AnalyzeFiles(ctx context.Context, root string, targets []incremental.FileToAnalyze, repoCtx *repocontext.RepoContext, store *authority.Store, opts Options) ([]analyze.Finding, map[string]cache.FileCacheEntry, error) {
	numWorkers := opts.NumWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if numWorkers > len(targets) && len(targets) > 0 {
		numWorkers = len(targets)
	}

	type workerResult struct {
		internalErr *analyze.Finding
		entry       cache.FileCacheEntry
		skip        bool
		missing     []suppress.Inline
	}

	results := make([]workerResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numWorkers)

	var mu sync.Mutex
	var fileErrs error // accumulated with multierr across the pool, purely for logging; per-file failures never abort the run

	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil // cancellation: finish in-flight files, dispatch no new ones
			default:
			}

			fctx, cancel := context.WithTimeout(gctx, FileTimeout)
			defer cancel()

			entry, missing, skip, err := analyzeOneFile(fctx, root, target, repoCtx, store, opts)
			if err != nil {
				mu.Lock()
				fileErrs = multierr.Append(fileErrs, err)
				mu.Unlock()
				if opts.Log != nil {
					opts.Log.WithFields(logrus.Fields{"file": target.Path, "reason": err.Error()}).Warn("pipeline: file analysis failed, contained")
				}
				// Contained per file: no cache entry is written, so the
				// file is retried next run; an internal-info finding stands
				// in for the fresh findings this file would have produced.
				f := internalErrorFinding(target.Path, err)
				results[i] = workerResult{internalErr: &f, skip: true}
				return nil
			}
			results[i] = workerResult{entry: entry, skip: skip, missing: missing}
			return nil
		})
	}
	_ = g.Wait()

	var internalErrs []analyze.Finding
	var allMissing []suppress.Inline
	entries := make(map[string]cache.FileCacheEntry, len(targets))
	for _, r := range results {
		if r.internalErr != nil {
			internalErrs = append(internalErrs, *r.internalErr)
		}
		allMissing = append(allMissing, r.missing...)
		if !r.skip {
			entries[r.entry.FilePath] = r.entry
		}
	}

	if opts.Config.RequireSuppressionReason && len(allMissing) > 0 {
		return internalErrs, entries, errs.Config("validating suppression reasons",
			errorString(fmt.Sprintf("%d suppression directive(s) are missing a required reason", len(allMissing))))
	}

	return internalErrs, entries, fileErrs
}

// internalErrorFinding stands in for the findings a file would have
// produced when its analysis was contained by an error: it carries no
// location, since the failure may have occurred before any AST existed.
func internalErrorFinding(path string, err error) analyze.Finding {
	longID := analyze.MakeLongID("", "", path, 0, 0)
	return analyze.Finding{
		ID:       analyze.ShortID(longID),
		LongID:   longID,
		Kind:     analyze.KindInternalError,
		Severity: analyze.SeverityForKind(analyze.KindInternalError),
		File:     path,
		Message:  err.Error(),
	}
}

func analyzeOneFile(ctx context.Context, root string, target incremental.FileToAnalyze, repoCtx *repocontext.RepoContext, store *authority.Store, opts Options) (cache.FileCacheEntry, []suppress.Inline, bool, error) {
	absPath := filepath.Join(root, target.Path)
	source, err := os.ReadFile(absPath)
	if err != nil {
		return cache.FileCacheEntry{}, nil, true, wrapErr("reading file", target.Path, err)
	}
	contentHash := hashBytes(source)

	dialect, ok := jsparse.Extensions[filepath.Ext(target.Path)]
	if !ok {
		return cache.FileCacheEntry{}, nil, true, nil
	}
	parser, err := jsparse.NewParser(dialect)
	if err != nil {
		return cache.FileCacheEntry{}, nil, true, wrapErr("building parser", target.Path, err)
	}

	file, err := parser.Parse(ctx, source, target.Path)
	if err != nil {
		return cache.FileCacheEntry{}, nil, true, wrapErr("parsing", target.Path, err)
	}

	var trackedPackages map[string]struct{}
	if covered := store.CoveredPackages(); len(covered) > 0 {
		trackedPackages = make(map[string]struct{}, len(covered))
		for _, p := range covered {
			trackedPackages[p] = struct{}{}
		}
	}

	result := resolve.ResolveImports(file, trackedPackages, repoCtx.PathAliases)

	findings := analyze.Analyze(target.Path, result.Usages, repoCtx.ResolveVersion, store, analyze.Options{Log: opts.Log})

	inline := suppress.ParseInline(file.Comments, countLines(source))
	missing := suppress.MissingReasons(inline)

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Location.Line != findings[j].Location.Line {
			return findings[i].Location.Line < findings[j].Location.Line
		}
		return findings[i].Location.Column < findings[j].Location.Column
	})

	packageVersions := make(map[string]string, len(result.ImportedPackages))
	for _, pkg := range result.ImportedPackages {
		if v, ok := repoCtx.ResolveVersion(pkg); ok {
			packageVersions[pkg] = v
		}
	}

	// importedPackages is normalized to a non-nil, possibly-empty slice so
	// HasImportedPackages can distinguish "this run legitimately imported no
	// tracked packages" from a cache entry written before this field
	// existed.
	importedPackages := result.ImportedPackages
	if importedPackages == nil {
		importedPackages = []string{}
	}

	// Findings here are the pre-suppression candidate set; suppression is
	// applied at merge time using whatever rules/baseline are active that
	// run, so a later change to either is honored without
	// re-analyzing this file.
	entry := cache.FileCacheEntry{
		FilePath:          target.Path,
		ContentHash:       contentHash,
		AuthorityVersion:  store.DataVersion(),
		RepoContextHash:   repoCtx.ContextHash,
		ImportedPackages:  importedPackages,
		PackageVersions:   packageVersions,
		UnresolvedImports: result.UnresolvedImports,
		Findings:          findings,
		Inline:            inline,
		AnalyzedAt:        nowRFC3339(),
	}
	return entry, missing, false, nil
}

func countLines(source []byte) int {
	if len(source) == 0 {
		return 1
	}
	lines := 1
	for _, b := range source {
		if b == '\n' {
			lines++
		}
	}
	return lines
}

func wrapErr(op, path string, err error) error {
	return errs.Internal("file-analysis", op+" "+path, err)
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

const doxyVersion = "0.1.0"

// MergeWithCache is the final pipeline boundary step: applies suppression
// uniformly to every freshly-analyzed file's candidate findings and every
// still-valid cached file's candidate findings, using this run's current
// rules and baseline — so a cache hit never serves suppression decisions
// baked in at a prior run — appends internalErrs unsuppressed, since
// they are diagnostic notices rather than suppression subjects, and sorts
// the whole set deterministically by file, then (line, column), then longId.
func MergeWithCache(internalErrs []analyze.Finding, fresh map[string]cache.FileCacheEntry, cached []incremental.CachedFile, rules []suppress.Rule, baseline suppress.Baseline) []analyze.Finding {
	merged := append([]analyze.Finding(nil), internalErrs...)
	for _, entry := range fresh {
		merged = append(merged, suppress.ApplyAll(entry.Findings, entry.Inline, rules, baseline)...)
	}
	for _, c := range cached {
		merged = append(merged, suppress.ApplyAll(c.Findings, c.Inline, rules, baseline)...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Location.Line != b.Location.Line {
			return a.Location.Line < b.Location.Line
		}
		if a.Location.Column != b.Location.Column {
			return a.Location.Column < b.Location.Column
		}
		return a.LongID < b.LongID
	})
	return merged
}
