package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/phobologic/doxy/internal/errs"
	"github.com/phobologic/doxy/internal/pipeline"
	"github.com/phobologic/doxy/internal/render"
)

// runCheck implements the `doxy check` subcommand: one run, findings to
// stdout, exit code per the error-kind mapping. Findings-present is a
// classification the CLI computes itself, not an error runCheck returns.
func runCheck(args []string, stdout, stderr io.Writer) (int, error) {
	fs := pflag.NewFlagSet("doxy check", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var rf runFlags
	registerRunFlags(fs, &rf)

	fs.Usage = func() {
		fmt.Fprint(stderr, `Usage: doxy check [flags] [path]

Analyze path (default ".") once and print findings to stdout, one per
line as "file:line:col kind message". All logging goes to stderr.

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

	authorityRoots := cfg.AuthorityDataSources

	result, err := pipeline.Run(context.Background(), root, authorityRoots, pipeline.Options{
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

	if _, err := render.Text(stdout, result.Findings, minSeverity(cfg), rf.includeSuppressed); err != nil {
		return 0, fmt.Errorf("writing findings: %w", err)
	}

	if render.FailsBuild(result.Findings, failOnSeverity(cfg)) {
		return errs.ExitFindingsPresent, nil
	}
	return 0, nil
}
