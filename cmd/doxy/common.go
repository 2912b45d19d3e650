package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/phobologic/doxy/internal/analyze"
	"github.com/phobologic/doxy/internal/cache"
	"github.com/phobologic/doxy/internal/config"
	"github.com/phobologic/doxy/internal/incremental"
	"github.com/phobologic/doxy/internal/logging"
	"github.com/phobologic/doxy/internal/suppress"
)

// runFlags are the flags `check`, `watch` and `baseline` all accept, each
// registering them onto its own flag set.
type runFlags struct {
	authorityRoots    []string
	baseRef           string
	workers           int
	verbosity         int
	includeSuppressed bool
	requireReason     bool
}

func registerRunFlags(fs *pflag.FlagSet, rf *runFlags) {
	fs.StringArrayVar(&rf.authorityRoots, "authority", nil, "authority data root (repeatable; first-hit wins on a package collision)")
	fs.StringVar(&rf.baseRef, "base-ref", "", "git ref the incremental diff is computed against")
	fs.IntVar(&rf.workers, "workers", 0, "concurrent file workers (default: GOMAXPROCS)")
	fs.CountVarP(&rf.verbosity, "verbose", "v", "increase log verbosity (-v, -vv)")
	fs.BoolVar(&rf.includeSuppressed, "include-suppressed", false, "print suppressed findings too")
	fs.BoolVar(&rf.requireReason, "require-suppression-reason", false, "treat a suppression directive without a reason as a configuration error")
	// Flag names below match config.Options' mapstructure tags exactly:
	// config.Load binds this flag set wholesale via viper.BindPFlags, which
	// keys a flag's override by its literal name, not a kebab-to-camel
	// translation.
	fs.StringArray("include", nil, "glob of files to analyze (repeatable, overrides config)")
	fs.StringArray("exclude", nil, "glob of files to exclude (repeatable, overrides config)")
	fs.String("severity", "", "minimum severity surfaced (info|warning|error)")
	fs.String("failOn", "", "minimum severity that causes a nonzero exit (info|warning|error)")
}

// loadPipelineInputs resolves root to an absolute path, loads configuration
// (file + env + the already-parsed flags) and the baseline, and builds the
// hot layer shared across PlanRun calls in this process — one per `check`
// invocation, one long-lived instance for `watch`.
func loadPipelineInputs(fs *pflag.FlagSet, rf runFlags, argRoot string) (root string, cfg config.Options, baseline suppress.Baseline, hot *incremental.HotLayer, err error) {
	root, err = filepath.Abs(argRoot)
	if err != nil {
		return "", config.Options{}, suppress.Baseline{}, nil, fmt.Errorf("resolving root: %w", err)
	}

	cfg, err = config.Load(root, fs)
	if err != nil {
		return "", config.Options{}, suppress.Baseline{}, nil, err
	}
	if rf.requireReason {
		cfg.RequireSuppressionReason = true
	}
	if len(rf.authorityRoots) > 0 {
		cfg.AuthorityDataSources = rf.authorityRoots
	}

	baseline, err = cache.LoadBaseline(filepath.Join(root, ".doxy", "baseline.json"))
	if err != nil {
		return "", config.Options{}, suppress.Baseline{}, nil, err
	}

	workers := rf.workers
	if workers <= 0 {
		workers = 4
	}
	hot, err = incremental.NewHotLayer(workers, 4)
	if err != nil {
		return "", config.Options{}, suppress.Baseline{}, nil, err
	}

	return root, cfg, baseline, hot, nil
}

func minSeverity(cfg config.Options) analyze.Severity {
	if cfg.Severity == "" {
		return analyze.SeverityInfo
	}
	return analyze.Severity(cfg.Severity)
}

func failOnSeverity(cfg config.Options) analyze.Severity {
	if cfg.FailOn == "" {
		return analyze.SeverityError
	}
	return analyze.Severity(cfg.FailOn)
}

func newLogger(rf runFlags, stderr io.Writer) *logrus.Logger {
	return logging.New(logging.VerbosityFromFlagCount(rf.verbosity), stderr)
}
