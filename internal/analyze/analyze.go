// Package analyze joins SymbolUsage records against the authority store
// and classifies the result into Findings.
package analyze

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/phobologic/doxy/internal/astmodel"
	"github.com/phobologic/doxy/internal/authority"
	"github.com/phobologic/doxy/internal/resolve"
)

// VersionLookup answers "what version of pkg is installed", after the
// resolved-version/declared-range fallback has already been applied
// by the caller. ok is false only when the package isn't a project
// dependency at all.
type VersionLookup func(pkg string) (version string, ok bool)

// Options controls per-run analyzer behavior that isn't authority-derived.
type Options struct {
	Log *logrus.Logger
}

// Analyze classifies every usage in a file against store. It does not
// apply suppressions — that is the caller's job via the suppress package,
// so cache writes can retain the full pre-suppression candidate set.
func Analyze(filePath string, usages []*resolve.SymbolUsage, versions VersionLookup, store *authority.Store, opts Options) []Finding {
	var findings []Finding

	for _, usage := range usages {
		if len(usage.UsageSites) == 0 {
			continue
		}
		version, ok := versions(usage.Package)
		if !ok {
			if opts.Log != nil {
				opts.Log.WithFields(logrus.Fields{"package": usage.Package}).Debug("analyze: no installed version, skipping usage")
			}
			continue
		}

		resolved, known := store.GetApiSpec(usage.Package, usage.Export, version)
		firstSite := usage.UsageSites[0]

		primary, matched := classifyPrimary(usage, resolved, known, version)
		if matched {
			findings = append(findings, buildFinding(filePath, usage, firstSite.Location, primary, resolved, version, store.DataVersion()))
			continue
		}

		if resolved.ActiveSignature == nil {
			continue
		}
		for _, site := range usage.UsageSites {
			if site.ArgCount == nil {
				continue
			}
			if f, ok := classifyArity(filePath, usage, site, resolved, version, store.DataVersion()); ok {
				findings = append(findings, f)
			}
		}
	}

	return findings
}

type primaryClass struct {
	kind    Kind
	message string
}

func classifyPrimary(usage *resolve.SymbolUsage, resolved authority.ResolvedApiSpec, known bool, version string) (primaryClass, bool) {
	if !known {
		return primaryClass{
			kind:    KindUnknownExport,
			message: fmt.Sprintf("%s is not a recognized export of %q in the authority data", usage.Export, usage.Package),
		}, true
	}

	if !resolved.Available && resolved.IsFuture {
		introduced := "a later version"
		if v, ok := authority.MinAvailableVersion(resolved.Spec); ok {
			introduced = v
		}
		return primaryClass{
			kind:    KindFutureAPI,
			message: fmt.Sprintf("%s.%s is not available until %s (installed: %s)", usage.Package, usage.Export, introduced, version),
		}, true
	}

	if !resolved.Available {
		removedAt := "an earlier version"
		hint := ""
		if resolved.ActiveDeprecation != nil {
			if resolved.ActiveDeprecation.RemovedIn != "" {
				removedAt = resolved.ActiveDeprecation.RemovedIn
			}
			hint = replacementHint(resolved.ActiveDeprecation)
		}
		msg := fmt.Sprintf("%s.%s was removed in %s (installed: %s)", usage.Package, usage.Export, removedAt, version)
		if hint != "" {
			msg += "; " + hint
		}
		return primaryClass{kind: KindRemovedAPI, message: msg}, true
	}

	if resolved.ActiveDeprecation != nil {
		msg := fmt.Sprintf("%s.%s has been deprecated since %s: %s", usage.Package, usage.Export, resolved.ActiveDeprecation.Since, resolved.ActiveDeprecation.Message)
		if hint := replacementHint(resolved.ActiveDeprecation); hint != "" {
			msg += "; " + hint
		}
		return primaryClass{kind: KindDeprecatedAPI, message: msg}, true
	}

	return primaryClass{}, false
}

func replacementHint(d *authority.DeprecationEntry) string {
	if d.Replacement == nil {
		return ""
	}
	hint := fmt.Sprintf("use %s.%s instead", d.Replacement.Package, d.Replacement.Export)
	if d.Replacement.MigrationHint != "" {
		hint += " (" + d.Replacement.MigrationHint + ")"
	}
	return hint
}

func classifyArity(filePath string, usage *resolve.SymbolUsage, site resolve.UsageSite, resolved authority.ResolvedApiSpec, version, dataVersion string) (Finding, bool) {
	sig := resolved.ActiveSignature
	argCount := *site.ArgCount

	if argCount < sig.MinArity || (sig.MaxArity >= 0 && argCount > sig.MaxArity) {
		upper := "unbounded"
		if sig.MaxArity >= 0 {
			upper = fmt.Sprintf("%d", sig.MaxArity)
		}
		msg := fmt.Sprintf("%s.%s expected %d–%s, got %d arguments", usage.Package, usage.Export, sig.MinArity, upper, argCount)
		return buildFinding(filePath, usage, site.Location, primaryClass{kind: KindWrongArity, message: msg}, resolved, version, dataVersion), true
	}

	if len(site.ArgNames) > 0 {
		allowed := make(map[string]struct{}, len(sig.Params))
		for _, p := range sig.Params {
			allowed[p.Name] = struct{}{}
		}
		for _, name := range site.ArgNames {
			if _, ok := allowed[name]; !ok {
				msg := fmt.Sprintf("%s.%s does not accept a %q argument", usage.Package, usage.Export, name)
				return buildFinding(filePath, usage, site.Location, primaryClass{kind: KindWrongParam, message: msg}, resolved, version, dataVersion), true
			}
		}
	}

	return Finding{}, false
}

func buildFinding(filePath string, usage *resolve.SymbolUsage, loc astmodel.Location, class primaryClass, resolved authority.ResolvedApiSpec, version, dataVersion string) Finding {
	longID := MakeLongID(usage.Package, usage.Export, filePath, loc.Line, loc.Column)

	var fixes []Fix
	if resolved.ActiveDeprecation != nil && resolved.ActiveDeprecation.Replacement != nil {
		r := resolved.ActiveDeprecation.Replacement
		fixes = append(fixes, Fix{
			Description:  fmt.Sprintf("migrate to %s.%s", r.Package, r.Export),
			ReferenceURL: r.MigrationHint,
		})
	}

	specKey := usage.Package + "/" + usage.Export
	if resolved.Spec != nil {
		specKey = resolved.Spec.Package + "/" + resolved.Spec.Export
	}

	return Finding{
		ID:       ShortID(longID),
		LongID:   longID,
		Kind:     class.kind,
		Severity: SeverityForKind(class.kind),
		File:     filePath,
		Location: loc,
		Message:  class.message,
		Symbol: SymbolRef{
			Package:          usage.Package,
			Export:           usage.Export,
			InstalledVersion: version,
		},
		Fixes:     fixes,
		Authority: AuthorityRef{DataVersion: dataVersion, SpecKey: specKey},
	}
}
