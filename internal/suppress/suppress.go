// Package suppress parses inline directive comments out of a file's
// Normalized AST and matches findings against inline ranges, config rules,
// and a baseline set.
package suppress

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/phobologic/doxy/internal/analyze"
	"github.com/phobologic/doxy/internal/astmodel"
)

// Inline is one parsed `doxy-ignore*` directive, already resolved to a
// closed line range.
type Inline struct {
	Kind      analyze.Kind `json:"kind,omitempty"` // "" means "*"
	Reason    string       `json:"reason,omitempty"`
	StartLine int          `json:"startLine"`
	EndLine   int          `json:"endLine"`
}

var directiveRe = regexp.MustCompile(`doxy-ignore(-line|-start|-end)?\s*([a-z*-]*)\s*(?:(?:—|--|:)\s*(.*))?`)

// validKinds gates directive parsing: an unknown kind token means the
// directive is ignored outright, with no emission and no error.
var validKinds = map[string]struct{}{
	"*": {},
	string(analyze.KindUnknownExport): {},
	string(analyze.KindFutureAPI):     {},
	string(analyze.KindRemovedAPI):    {},
	string(analyze.KindDeprecatedAPI): {},
	string(analyze.KindWrongArity):    {},
	string(analyze.KindWrongParam):    {},
}

// ParseInline extracts every inline suppression directive from a file's
// comments. Unbalanced doxy-ignore-start blocks extend to EOF; unbalanced
// doxy-ignore-end markers with no open block are ignored, as are
// directives naming a kind that doesn't exist.
func ParseInline(comments []astmodel.CommentRange, lastLine int) []Inline {
	var out []Inline
	var openKind analyze.Kind
	var openReason string
	var openLine int
	open := false

	for _, c := range comments {
		for _, line := range strings.Split(c.Text, "\n") {
			m := directiveRe.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				continue
			}
			form, kindTok, reason := m[1], m[2], strings.TrimSpace(m[3])
			if kindTok != "" {
				if _, known := validKinds[kindTok]; !known {
					continue
				}
			} else if form != "-end" {
				continue
			}
			kind := kindFromToken(kindTok)

			switch form {
			case "-start":
				if open {
					// an unclosed block is implicitly closed by a new one
					out = append(out, Inline{Kind: openKind, Reason: openReason, StartLine: openLine, EndLine: c.StartLine - 1})
				}
				open, openKind, openReason, openLine = true, kind, reason, c.StartLine
			case "-end":
				if open {
					out = append(out, Inline{Kind: openKind, Reason: openReason, StartLine: openLine, EndLine: c.EndLine})
					open = false
				}
			case "-line":
				out = append(out, Inline{Kind: kind, Reason: reason, StartLine: c.StartLine, EndLine: c.EndLine})
			default: // next-line form
				out = append(out, Inline{Kind: kind, Reason: reason, StartLine: c.EndLine + 1, EndLine: c.EndLine + 1})
			}
		}
	}

	if open {
		out = append(out, Inline{Kind: openKind, Reason: openReason, StartLine: openLine, EndLine: lastLine})
	}
	return out
}

func kindFromToken(tok string) analyze.Kind {
	if tok == "" || tok == "*" {
		return ""
	}
	return analyze.Kind(tok)
}

// MissingReasons returns the subset of directives that carry no reason,
// for requireSuppressionReason enforcement at run start.
func MissingReasons(directives []Inline) []Inline {
	var missing []Inline
	for _, d := range directives {
		if d.Reason == "" {
			missing = append(missing, d)
		}
	}
	return missing
}

func (d Inline) matches(kind analyze.Kind, line int) bool {
	if line < d.StartLine || line > d.EndLine {
		return false
	}
	return d.Kind == "" || d.Kind == kind
}

// Rule is one config-declared suppression: every non-empty field
// must match for the rule to apply; Package and Export are glob-or-equal
// against doublestar, Paths are globs against the finding's file (any one
// matching is enough).
type Rule struct {
	Package string
	Export  string
	Kind    analyze.Kind // "" means any
	Paths   []string
	Reason  string
}

func (r Rule) matches(f analyze.Finding) bool {
	if r.Package != "" && !globOrEqual(r.Package, f.Symbol.Package) {
		return false
	}
	if r.Export != "" && !globOrEqual(r.Export, f.Symbol.Export) {
		return false
	}
	if r.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if len(r.Paths) > 0 {
		matched := false
		for _, p := range r.Paths {
			if ok, _ := doublestar.Match(p, f.File); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func globOrEqual(pattern, value string) bool {
	if pattern == value {
		return true
	}
	ok, err := doublestar.Match(pattern, value)
	return err == nil && ok
}

// Baseline is an immutable set of previously-accepted long ids, keyed for
// O(1) lookup.
type Baseline struct {
	ids map[string]struct{}
}

// NewBaseline builds a Baseline from a stored list of long ids.
func NewBaseline(longIDs []string) Baseline {
	b := Baseline{ids: make(map[string]struct{}, len(longIDs))}
	for _, id := range longIDs {
		b.ids[id] = struct{}{}
	}
	return b
}

// Contains reports whether longID is recorded in the baseline.
func (b Baseline) Contains(longID string) bool {
	_, ok := b.ids[longID]
	return ok
}

// Apply evaluates a finding against inline directives, config rules, and
// the baseline, in that order, returning the same finding with
// Suppressed populated when any layer matches. Findings are never mutated
// in place; the caller receives (possibly) a new value.
func Apply(f analyze.Finding, inline []Inline, rules []Rule, baseline Baseline) analyze.Finding {
	for _, d := range inline {
		if d.matches(f.Kind, f.Location.Line) {
			f.Suppressed = &analyze.Suppressed{Source: "inline", Reason: d.Reason}
			return f
		}
	}
	for _, r := range rules {
		if r.matches(f) {
			f.Suppressed = &analyze.Suppressed{Source: "config", Reason: r.Reason}
			return f
		}
	}
	if baseline.Contains(f.LongID) {
		f.Suppressed = &analyze.Suppressed{Source: "baseline"}
		return f
	}
	return f
}

// ApplyAll runs Apply across every finding in findings, in place order.
func ApplyAll(findings []analyze.Finding, inline []Inline, rules []Rule, baseline Baseline) []analyze.Finding {
	out := make([]analyze.Finding, len(findings))
	for i, f := range findings {
		out[i] = Apply(f, inline, rules, baseline)
	}
	return out
}

// ValidateReasonRequirement returns a descriptive error when require is set
// and any directive in directives lacks a reason.
func ValidateReasonRequirement(directives []Inline, require bool) error {
	if !require {
		return nil
	}
	missing := MissingReasons(directives)
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%d suppression directive(s) are missing a required reason (first at line %d)", len(missing), missing[0].StartLine)
}
