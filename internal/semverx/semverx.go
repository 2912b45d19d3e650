// Package semverx coerces the sloppy version and range strings this
// ecosystem's manifests and lockfiles actually contain ("18", "^18.0.0",
// ">=16.13.0 <19.0.0") into a form golang.org/x/mod/semver can compare, and
// layers npm-style caret/tilde/comparator-set range semantics on top of it.
// x/mod/semver only understands exact, "v"-prefixed, fully-qualified
// versions and bare Compare/IsValid/Canonical primitives — everything sloppy
// about version handling lives in this package, not in the authority store.
package semverx

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// CoerceVersion normalizes a sloppy version string ("18", "18.2", "v18.2.0",
// "^18.0.0") into the canonical "vX.Y.Z" form semver.Compare expects; a
// leading "=", "^" or "~" is dropped, leaving the range's base version. It
// returns an error if the string has no parseable numeric version inside it.
func CoerceVersion(s string) (string, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "=^~")
	if s == "" {
		return "", fmt.Errorf("empty version string")
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	parts := strings.SplitN(s[1:], ".", 3)
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	for i, p := range parts {
		// A pre-release/build suffix on the patch component is kept as
		// is and skips the numeric check, so "18.2.0-rc.1" still coerces;
		// x/mod/semver validates the suffix itself.
		if i == 2 {
			if dash := strings.IndexAny(p, "-+"); dash >= 0 {
				parts[i] = p
				continue
			}
		}
		if _, err := strconv.Atoi(p); err != nil {
			return "", fmt.Errorf("not a numeric version component %q in %q", p, s)
		}
	}
	canon := "v" + strings.Join(parts, ".")
	if !semver.IsValid(canon) {
		return "", fmt.Errorf("invalid semver %q", canon)
	}
	return canon, nil
}

// Compare coerces both sides and compares them the way semver.Compare does:
// -1, 0, or 1.
func Compare(a, b string) (int, error) {
	ca, err := CoerceVersion(a)
	if err != nil {
		return 0, err
	}
	cb, err := CoerceVersion(b)
	if err != nil {
		return 0, err
	}
	return semver.Compare(ca, cb), nil
}

// comparator is one AND-ed clause of a Range, e.g. {">=", "v16.13.0"}.
type comparator struct {
	op      string // ">=", ">", "<=", "<", "="
	version string // canonical
}

// Range is an ordered-inclusive-unless-noted set of AND-ed comparators,
// covering npm-style exact/caret/tilde/comparator-set/bare ranges.
type Range struct {
	raw         string
	comparators []comparator
}

// ParseRange parses a range string. Tokens are whitespace-separated and
// ANDed together. Supported token forms: "18", "18.2.0", "v18.2.0" (bare,
// coerced to an exact-version comparator), "^18.0.0" and "~18.0.0" (expanded
// into a >= lower bound and a < upper bound), and explicit comparators
// ">=", ">", "<=", "<", "=".
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, fmt.Errorf("empty range")
	}
	var out []comparator
	for _, tok := range strings.Fields(s) {
		cs, err := parseToken(tok)
		if err != nil {
			return Range{}, fmt.Errorf("range %q: %w", s, err)
		}
		out = append(out, cs...)
	}
	return Range{raw: s, comparators: out}, nil
}

func parseToken(tok string) ([]comparator, error) {
	switch {
	case strings.HasPrefix(tok, ">="):
		v, err := CoerceVersion(tok[2:])
		return []comparator{{">=", v}}, err
	case strings.HasPrefix(tok, "<="):
		v, err := CoerceVersion(tok[2:])
		return []comparator{{"<=", v}}, err
	case strings.HasPrefix(tok, ">"):
		v, err := CoerceVersion(tok[1:])
		return []comparator{{">", v}}, err
	case strings.HasPrefix(tok, "<"):
		v, err := CoerceVersion(tok[1:])
		return []comparator{{"<", v}}, err
	case strings.HasPrefix(tok, "="):
		v, err := CoerceVersion(tok[1:])
		return []comparator{{"=", v}}, err
	case strings.HasPrefix(tok, "^"):
		return expandCaret(tok[1:])
	case strings.HasPrefix(tok, "~"):
		return expandTilde(tok[1:])
	default:
		v, err := CoerceVersion(tok)
		if err != nil {
			return nil, err
		}
		return []comparator{{"=", v}}, nil
	}
}

// expandCaret implements npm's caret semantics: ^18.0.0 allows any version
// that does not change the leftmost nonzero component, i.e. [18.0.0, 19.0.0).
// ^0.2.3 allows [0.2.3, 0.3.0); ^0.0.3 allows [0.0.3, 0.0.4).
func expandCaret(v string) ([]comparator, error) {
	lo, err := CoerceVersion(v)
	if err != nil {
		return nil, err
	}
	major, minor, patch := components(lo)
	var hi string
	switch {
	case major > 0:
		hi = fmt.Sprintf("v%d.0.0", major+1)
	case minor > 0:
		hi = fmt.Sprintf("v0.%d.0", minor+1)
	default:
		hi = fmt.Sprintf("v0.0.%d", patch+1)
	}
	return []comparator{{">=", lo}, {"<", hi}}, nil
}

// expandTilde implements npm's tilde semantics: allows patch-level changes
// if a minor is specified, minor-level changes if not: ~18.2.0 → [18.2.0,
// 18.3.0); ~18 → [18.0.0, 19.0.0).
func expandTilde(v string) ([]comparator, error) {
	lo, err := CoerceVersion(v)
	if err != nil {
		return nil, err
	}
	major, minor, _ := components(lo)
	hadMinor := strings.Contains(strings.TrimSpace(v), ".")
	var hi string
	if hadMinor {
		hi = fmt.Sprintf("v%d.%d.0", major, minor+1)
	} else {
		hi = fmt.Sprintf("v%d.0.0", major+1)
	}
	return []comparator{{">=", lo}, {"<", hi}}, nil
}

func components(canon string) (major, minor, patch int) {
	parts := strings.SplitN(strings.TrimPrefix(canon, "v"), ".", 3)
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	major, _ = strconv.Atoi(parts[0])
	minor, _ = strconv.Atoi(parts[1])
	patchStr := parts[2]
	if dash := strings.IndexAny(patchStr, "-+"); dash >= 0 {
		patchStr = patchStr[:dash]
	}
	patch, _ = strconv.Atoi(patchStr)
	return
}

// Contains reports whether v (any sloppy form) satisfies every comparator in
// the range.
func (r Range) Contains(v string) bool {
	cv, err := CoerceVersion(v)
	if err != nil {
		return false
	}
	for _, c := range r.comparators {
		cmp := semver.Compare(cv, c.version)
		ok := false
		switch c.op {
		case ">=":
			ok = cmp >= 0
		case ">":
			ok = cmp > 0
		case "<=":
			ok = cmp <= 0
		case "<":
			ok = cmp < 0
		case "=":
			ok = cmp == 0
		}
		if !ok {
			return false
		}
	}
	return true
}

// MinVersion returns the greatest lower bound among the range's ">="/">"/"="
// comparators, i.e. the smallest version a value must reach to have a chance
// of satisfying the range. ok is false if the range has no lower bound.
func (r Range) MinVersion() (version string, ok bool) {
	for _, c := range r.comparators {
		if c.op != ">=" && c.op != ">" && c.op != "=" {
			continue
		}
		if !ok || semver.Compare(c.version, version) > 0 {
			version, ok = c.version, true
		}
	}
	return version, ok
}

// String returns the original range text.
func (r Range) String() string { return r.raw }
