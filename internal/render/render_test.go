package render

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/doxy/internal/analyze"
	"github.com/phobologic/doxy/internal/astmodel"
)

func TestTextOmitsSuppressedByDefault(t *testing.T) {
	findings := []analyze.Finding{
		{File: "a.ts", Location: astmodel.Location{Line: 1, Column: 2}, Kind: analyze.KindDeprecatedAPI, Severity: analyze.SeverityWarning, Message: "use useId"},
		{File: "b.ts", Location: astmodel.Location{Line: 3, Column: 4}, Kind: analyze.KindRemovedAPI, Severity: analyze.SeverityError, Message: "gone", Suppressed: &analyze.Suppressed{Source: "inline"}},
	}

	var buf bytes.Buffer
	n, err := Text(&buf, findings, analyze.SeverityInfo, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "a.ts:1:2 deprecated-api use useId\n", buf.String())
}

func TestTextIncludesSuppressedWhenRequested(t *testing.T) {
	findings := []analyze.Finding{
		{File: "b.ts", Location: astmodel.Location{Line: 3, Column: 4}, Kind: analyze.KindRemovedAPI, Severity: analyze.SeverityError, Message: "gone", Suppressed: &analyze.Suppressed{Source: "inline"}},
	}

	var buf bytes.Buffer
	n, err := Text(&buf, findings, analyze.SeverityInfo, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), "(suppressed: inline)")
}

func TestTextFiltersBelowMinSeverity(t *testing.T) {
	findings := []analyze.Finding{
		{File: "a.ts", Kind: analyze.KindUnknownExport, Severity: analyze.SeverityInfo, Message: "unknown"},
		{File: "a.ts", Kind: analyze.KindRemovedAPI, Severity: analyze.SeverityError, Message: "gone"},
	}

	var buf bytes.Buffer
	n, err := Text(&buf, findings, analyze.SeverityWarning, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), "removed-api")
}

func TestFailsBuildIgnoresSuppressedFindings(t *testing.T) {
	findings := []analyze.Finding{
		{Severity: analyze.SeverityError, Suppressed: &analyze.Suppressed{Source: "baseline"}},
	}
	assert.False(t, FailsBuild(findings, analyze.SeverityError))
}

func TestFailsBuildTrueAtOrAboveFailOn(t *testing.T) {
	findings := []analyze.Finding{
		{Severity: analyze.SeverityWarning},
	}
	assert.True(t, FailsBuild(findings, analyze.SeverityWarning))
	assert.False(t, FailsBuild(findings, analyze.SeverityError))
}

func TestVisibleLongIDsExcludesSuppressed(t *testing.T) {
	findings := []analyze.Finding{
		{LongID: "a", Suppressed: nil},
		{LongID: "b", Suppressed: &analyze.Suppressed{Source: "config"}},
	}
	assert.Equal(t, []string{"a"}, VisibleLongIDs(findings))
}
