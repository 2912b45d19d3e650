package analyze

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/phobologic/doxy/internal/astmodel"
)

// Kind is one of the six finding classifications. Severity is fixed per
// kind, never configurable.
type Kind string

const (
	KindUnknownExport Kind = "unknown-export"
	KindFutureAPI     Kind = "future-api"
	KindRemovedAPI    Kind = "removed-api"
	KindDeprecatedAPI Kind = "deprecated-api"
	KindWrongArity    Kind = "wrong-arity"
	KindWrongParam    Kind = "wrong-param"

	// KindInternalError marks a contained per-file failure (parse crash,
	// timeout) that did not abort the run: the file is skipped and
	// retried next run rather than cached.
	KindInternalError Kind = "internal-error"
)

// Severity orders error > warning > info for --failOn comparisons.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

var severityRank = map[Severity]int{SeverityInfo: 0, SeverityWarning: 1, SeverityError: 2}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool { return severityRank[s] >= severityRank[other] }

// SeverityForKind is the fixed kind->severity mapping.
func SeverityForKind(k Kind) Severity {
	switch k {
	case KindDeprecatedAPI:
		return SeverityWarning
	case KindUnknownExport, KindInternalError:
		return SeverityInfo
	default:
		return SeverityError
	}
}

// Fix is one ordered suggestion attached to a Finding.
type Fix struct {
	Description  string `json:"description"`
	ReferenceURL string `json:"referenceUrl,omitempty"`
}

// SymbolRef names the symbol a finding is about.
type SymbolRef struct {
	Package          string `json:"package"`
	Export           string `json:"export"`
	InstalledVersion string `json:"installedVersion"`
}

// AuthorityRef pins a finding to the authority data that produced it.
type AuthorityRef struct {
	DataVersion string `json:"dataVersion"`
	SpecKey     string `json:"specKey"`
}

// Suppressed records why a finding was excluded from visible output.
type Suppressed struct {
	Source string `json:"source"` // "inline" | "config" | "baseline"
	Reason string `json:"reason,omitempty"`
}

// Finding is a single reported incompatibility. Once emitted to the merged
// set it is immutable.
type Finding struct {
	ID        string            `json:"id"`
	LongID    string            `json:"longId"`
	Kind      Kind              `json:"kind"`
	Severity  Severity          `json:"severity"`
	File      string            `json:"file"`
	Location  astmodel.Location `json:"location"`
	Message   string            `json:"message"`
	Symbol    SymbolRef         `json:"symbol"`
	Fixes     []Fix             `json:"fixes,omitempty"`
	Authority AuthorityRef      `json:"authority"`

	Suppressed *Suppressed `json:"suppressed,omitempty"`
}

// MakeLongID builds the portable, hash-collision-stable finding identifier.
func MakeLongID(pkg, export, file string, line, col int) string {
	return fmt.Sprintf("dxy:%s/%s:%s:%d:%d", pkg, export, file, line, col)
}

// ParseLongID inverts MakeLongID.
func ParseLongID(longID string) (pkg, export, file string, line, col int, err error) {
	rest, ok := strings.CutPrefix(longID, "dxy:")
	if !ok {
		return "", "", "", 0, 0, fmt.Errorf("not a doxy long id: %q", longID)
	}
	symbolPart, rest, ok := strings.Cut(rest, ":")
	if !ok {
		return "", "", "", 0, 0, fmt.Errorf("malformed long id: %q", longID)
	}
	// The export follows the last slash, so scoped packages ("@scope/pkg")
	// keep their own slash.
	slash := strings.LastIndex(symbolPart, "/")
	if slash < 0 {
		return "", "", "", 0, 0, fmt.Errorf("malformed symbol in long id: %q", longID)
	}
	pkg, export = symbolPart[:slash], symbolPart[slash+1:]

	fileAndLoc := rest
	lastColon := strings.LastIndex(fileAndLoc, ":")
	if lastColon < 0 {
		return "", "", "", 0, 0, fmt.Errorf("malformed long id: %q", longID)
	}
	colStr := fileAndLoc[lastColon+1:]
	withoutCol := fileAndLoc[:lastColon]
	secondLastColon := strings.LastIndex(withoutCol, ":")
	if secondLastColon < 0 {
		return "", "", "", 0, 0, fmt.Errorf("malformed long id: %q", longID)
	}
	lineStr := withoutCol[secondLastColon+1:]
	file = withoutCol[:secondLastColon]

	line, err = strconv.Atoi(lineStr)
	if err != nil {
		return "", "", "", 0, 0, fmt.Errorf("malformed line in long id: %q", longID)
	}
	col, err = strconv.Atoi(colStr)
	if err != nil {
		return "", "", "", 0, 0, fmt.Errorf("malformed column in long id: %q", longID)
	}
	return pkg, export, file, line, col, nil
}

// ShortID derives the display-shortcut id from a long id: "dxy_" plus the
// first 8 hex characters of its SHA-256.
func ShortID(longID string) string {
	sum := sha256.Sum256([]byte(longID))
	return "dxy_" + hex.EncodeToString(sum[:])[:8]
}
