// doxy checks a JavaScript/TypeScript project's source against an
// authority store of known API surfaces and reports incompatibilities.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/phobologic/doxy/internal/errs"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return errs.ExitConfigError
	}

	cmd, rest := args[0], args[1:]

	switch cmd {
	case "check":
		code, err := runCheck(rest, stdout, stderr)
		return finish(code, err, stderr)
	case "baseline":
		code, err := runBaseline(rest, stdout, stderr)
		return finish(code, err, stderr)
	case "watch":
		code, err := runWatch(rest, stdout, stderr)
		return finish(code, err, stderr)
	case "-V", "--version", "version":
		fmt.Fprintf(stdout, "doxy %s\n", version)
		return 0
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "doxy: unknown command %q\n", cmd)
		printUsage(stderr)
		return errs.ExitConfigError
	}
}

// finish folds a subcommand's (exitCode, error) pair into the single exit
// code os.Exit sees: an error always wins and is routed through
// errs.ExitCode so each error kind reaches its fixed exit code, while a
// nil error defers to the subcommand's own classification (e.g.
// FindingsPresent).
func finish(code int, err error, stderr io.Writer) int {
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return errs.ExitCode(err)
	}
	return code
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: doxy <command> [flags] [path]

Commands:
  check [path]     analyze path (default ".") and report findings, once
  baseline [path]  snapshot current non-suppressed findings to .doxy/baseline.json
  watch [path]     re-run check on every source file save

Flags are documented per-command; run "doxy <command> --help".
`)
}
