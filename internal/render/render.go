// Package render formats findings for the reference CLI's text output.
// A JSON renderer would be a one-line json.Marshal away, since
// analyze.Finding is already fully tagged, but only the text form is
// shipped here.
package render

import (
	"fmt"
	"io"

	"github.com/phobologic/doxy/internal/analyze"
)

// Text writes one "file:line:col kind message" line per visible finding.
// Suppressed findings are omitted unless includeSuppressed is set; findings
// below minSeverity are always omitted regardless.
func Text(w io.Writer, findings []analyze.Finding, minSeverity analyze.Severity, includeSuppressed bool) (visible int, err error) {
	for _, f := range findings {
		if f.Suppressed != nil && !includeSuppressed {
			continue
		}
		if !f.Severity.AtLeast(minSeverity) {
			continue
		}
		line := fmt.Sprintf("%s:%d:%d %s %s", f.File, f.Location.Line, f.Location.Column, f.Kind, f.Message)
		if f.Suppressed != nil {
			line += fmt.Sprintf(" (suppressed: %s)", f.Suppressed.Source)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return visible, err
		}
		visible++
	}
	return visible, nil
}

// FailsBuild reports whether findings contains a non-suppressed finding at
// or above failOn, the findings-present classification.
func FailsBuild(findings []analyze.Finding, failOn analyze.Severity) bool {
	for _, f := range findings {
		if f.Suppressed != nil {
			continue
		}
		if f.Severity.AtLeast(failOn) {
			return true
		}
	}
	return false
}

// VisibleLongIDs returns the longId of every non-suppressed finding, the
// set `doxy baseline` snapshots.
func VisibleLongIDs(findings []analyze.Finding) []string {
	ids := make([]string, 0, len(findings))
	for _, f := range findings {
		if f.Suppressed == nil {
			ids = append(ids, f.LongID)
		}
	}
	return ids
}
