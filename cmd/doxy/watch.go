package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"

	"github.com/phobologic/doxy/internal/errs"
	"github.com/phobologic/doxy/internal/pipeline"
	"github.com/phobologic/doxy/internal/render"
)

// debounce collapses a burst of save events (editors often emit several
// per keystroke-save: write, chmod, rename-into-place) into one re-run.
const debounce = 150 * time.Millisecond

var watchSkipDirs = map[string]bool{
	"node_modules": true, ".git": true, "build": true, "dist": true,
	".next": true, "coverage": true, ".doxy": true,
}

// runWatch implements `doxy watch`: a long-lived process that re-plans and
// re-analyzes on every source file save. One in-memory LRU hot layer is
// shared by every tick, so PlanRun looks up entries validated on an earlier
// tick before the on-disk ones; each tick still reloads the on-disk cache
// and re-runs the validity checks for every candidate file.
func runWatch(args []string, stdout, stderr io.Writer) (int, error) {
	fs_ := pflag.NewFlagSet("doxy watch", pflag.ContinueOnError)
	fs_.SetOutput(stderr)

	var rf runFlags
	registerRunFlags(fs_, &rf)

	fs_.Usage = func() {
		fmt.Fprint(stderr, `Usage: doxy watch [flags] [path]

Watch path (default ".") and re-run the analysis on every source file
save, printing the refreshed finding set to stdout each time.

Flags:
`)
		fs_.PrintDefaults()
	}

	if err := fs_.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0, nil
		}
		return 0, errs.Config("parsing flags", err)
	}

	argRoot := "."
	if fs_.NArg() > 0 {
		argRoot = fs_.Arg(0)
	}

	root, cfg, baseline, hot, err := loadPipelineInputs(fs_, rf, argRoot)
	if err != nil {
		return 0, err
	}
	log := newLogger(rf, stderr)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return 0, errs.Internal("watch-setup", "creating fsnotify watcher", err)
	}
	defer watcher.Close()

	if err := addDirsRecursive(watcher, root); err != nil {
		return 0, errs.Project("watching source tree", err)
	}

	opts := pipeline.Options{
		Config:     cfg,
		BaseRef:    rf.baseRef,
		NumWorkers: rf.workers,
		Baseline:   baseline,
		Log:        log,
		HotLayer:   hot,
	}

	runOnce := func() {
		result, err := pipeline.Run(context.Background(), root, cfg.AuthorityDataSources, opts)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return
		}
		fmt.Fprintf(stdout, "--- %s ---\n", time.Now().UTC().Format(time.RFC3339))
		if _, err := render.Text(stdout, result.Findings, minSeverity(cfg), rf.includeSuppressed); err != nil {
			fmt.Fprintf(stderr, "error: writing findings: %v\n", err)
		}
	}

	runOnce()

	var timer *time.Timer
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return 0, nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
				if event.Op&fsnotify.Create != 0 {
					_ = addDirsRecursive(watcher, event.Name)
				}
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, runOnce)
		case werr, ok := <-watcher.Errors:
			if !ok {
				return 0, nil
			}
			log.WithError(werr).Warn("watch: fsnotify error")
		}
	}
}

// addDirsRecursive registers root and every source subdirectory with
// watcher, mirroring repocontext.DiscoverSourceFiles' skip list since
// fsnotify has no native recursive mode.
func addDirsRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != root {
			return filepath.SkipDir
		}
		if watchSkipDirs[name] {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
