package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/phobologic/doxy/internal/cache"
	"github.com/phobologic/doxy/internal/errs"
	"github.com/phobologic/doxy/internal/pipeline"
	"github.com/phobologic/doxy/internal/render"
)

// runBaseline implements `doxy baseline`: a full run whose non-suppressed
// findings become the new .doxy/baseline.json, so that pre-existing
// incompatibilities stop failing builds while new ones still do.
func runBaseline(args []string, stdout, stderr io.Writer) (int, error) {
	fs := pflag.NewFlagSet("doxy baseline", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var rf runFlags
	registerRunFlags(fs, &rf)

	fs.Usage = func() {
		fmt.Fprint(stderr, `Usage: doxy baseline [flags] [path]

Run a full analysis of path (default ".") and snapshot every non-suppressed
finding's long id into .doxy/baseline.json. Subsequent "doxy check" runs
treat those findings as suppressed with source="baseline".

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0, nil
		}
		return 0, errs.Config("parsing flags", err)
	}

	argRoot := "."
	if fs.NArg() > 0 {
		argRoot = fs.Arg(0)
	}

	root, cfg, baseline, hot, err := loadPipelineInputs(fs, rf, argRoot)
	if err != nil {
		return 0, err
	}
	log := newLogger(rf, stderr)

	result, err := pipeline.Run(context.Background(), root, cfg.AuthorityDataSources, pipeline.Options{
		Config:     cfg,
		BaseRef:    rf.baseRef,
		NumWorkers: rf.workers,
		Baseline:   baseline,
		Log:        log,
		HotLayer:   hot,
	})
	if err != nil {
		return 0, err
	}

	ids := render.VisibleLongIDs(result.Findings)
	baselinePath := filepath.Join(root, ".doxy", "baseline.json")
	if err := cache.SaveBaseline(baselinePath, ids, version, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return 0, fmt.Errorf("writing baseline: %w", err)
	}

	fmt.Fprintf(stderr, "doxy: wrote %d finding(s) to %s\n", len(ids), baselinePath)
	return 0, nil
}
