package authority

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/phobologic/doxy/internal/errs"
	"github.com/phobologic/doxy/internal/semverx"
)

// manifestFile is the decoded shape of manifest.json.
type manifestFile struct {
	SchemaVersion int          `json:"schemaVersion"`
	DataVersion   string       `json:"dataVersion"`
	Packages      []packageRef `json:"packages"`
}

type packageRef struct {
	Name                string `json:"name"`
	LatestMappedVersion string `json:"latestMappedVersion,omitempty"`
	SpecFile            string `json:"specFile"`
}

// specFile is the decoded shape of one <pkg>/<major>.x.json document.
type specFile struct {
	SchemaVersion int       `json:"schemaVersion"`
	Package       string    `json:"package"`
	Specs         []ApiSpec `json:"specs"`
}

// Store is a read-only, version-indexed catalog of ApiSpecs. It is built
// once per run (via Load) and safely shared by reference across the
// per-file worker pool — nothing here mutates after Load returns.
type Store struct {
	dataVersion string
	contentHash string
	specs       map[Key]*ApiSpec
	packages    map[string]struct{}
}

// Load ingests manifest.json plus every referenced <pkg>/<major>.x.json file
// under root. Any schema-validation failure or structural invariant
// violation aborts with an *errs.AuthorityError; there is no partial store.
func Load(root string, log *logrus.Logger) (*Store, error) {
	manifestPath := filepath.Join(root, "manifest.json")
	manifestRaw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, errs.Authority("reading manifest", err)
	}
	manifest, err := validateManifest(manifestRaw)
	if err != nil {
		return nil, errs.Authority("validating manifest", err)
	}

	hasher := sha256.New()
	hasher.Write(manifestRaw)

	specs := make(map[Key]*ApiSpec)
	packages := make(map[string]struct{}, len(manifest.Packages))

	for _, pkgRef := range manifest.Packages {
		specPath := filepath.Join(root, pkgRef.SpecFile)
		raw, err := os.ReadFile(specPath)
		if err != nil {
			return nil, errs.Authority(fmt.Sprintf("reading spec file for %s", pkgRef.Name), err)
		}
		hasher.Write(raw)

		sf, err := validateSpecFile(raw)
		if err != nil {
			return nil, errs.Authority(fmt.Sprintf("validating spec file for %s", pkgRef.Name), err)
		}
		if sf.Package != pkgRef.Name {
			return nil, errs.Authority("validating spec file",
				fmt.Errorf("manifest names package %q but spec file declares %q", pkgRef.Name, sf.Package))
		}

		packages[pkgRef.Name] = struct{}{}

		for i := range sf.Specs {
			spec := sf.Specs[i]
			if err := validateInvariants(&spec); err != nil {
				return nil, errs.Authority(fmt.Sprintf("validating %s/%s", spec.Package, spec.Export), err)
			}
			rng, err := semverx.ParseRange(spec.AvailableIn)
			if err != nil {
				return nil, errs.Authority(fmt.Sprintf("validating %s/%s", spec.Package, spec.Export), err)
			}
			spec.availableRange = rng
			key := Key{Package: spec.Package, Export: spec.Export}
			specCopy := spec
			specs[key] = &specCopy
		}

		if log != nil {
			log.WithFields(logrus.Fields{"package": pkgRef.Name, "specs": len(sf.Specs)}).Debug("authority: loaded package spec file")
		}
	}

	store := &Store{
		dataVersion: manifest.DataVersion,
		contentHash: hex.EncodeToString(hasher.Sum(nil)),
		specs:       specs,
		packages:    packages,
	}
	if log != nil {
		log.WithFields(logrus.Fields{"dataVersion": store.dataVersion, "packages": len(packages)}).Info("authority: store loaded")
	}
	return store, nil
}

// validateInvariants checks the structural invariants on a raw
// ApiSpec: signature ranges must partition the domain, deprecations must be
// non-decreasing by Since, and a removedIn must exclude availableIn.
func validateInvariants(spec *ApiSpec) error {
	sorted := append([]SignatureSpec(nil), spec.Signatures...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, _ := semverx.Compare(sorted[i].Since, sorted[j].Since)
		return ci < 0
	})
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.Until == "" {
			return fmt.Errorf("signature since %s has no until but is followed by a later signature since %s", prev.Since, cur.Since)
		}
		cmp, err := semverx.Compare(prev.Until, cur.Since)
		if err != nil {
			return err
		}
		if cmp > 0 {
			return fmt.Errorf("overlapping signatures: %s..%s and %s", prev.Since, prev.Until, cur.Since)
		}
	}

	var prevSince string
	for i, d := range spec.Deprecations {
		if i > 0 {
			cmp, err := semverx.Compare(prevSince, d.Since)
			if err != nil {
				return err
			}
			if cmp > 0 {
				return fmt.Errorf("deprecations out of order: %s before %s", prevSince, d.Since)
			}
		}
		prevSince = d.Since

		if d.RemovedIn != "" {
			rng, err := semverx.ParseRange(spec.AvailableIn)
			if err != nil {
				return err
			}
			if rng.Contains(d.RemovedIn) {
				return fmt.Errorf("deprecation removedIn %s still inside availableIn %q", d.RemovedIn, spec.AvailableIn)
			}
		}
	}
	return nil
}

// MinAvailableVersion returns the lower bound of spec.AvailableIn, when one
// exists, for building future-api messages ("introduced in version X").
func MinAvailableVersion(spec *ApiSpec) (string, bool) {
	return spec.availableRange.MinVersion()
}

// Merge combines base and overlay into a new Store, with base winning any
// (package, export) key collision — the "first root wins" rule for
// authorityDataSources option. The combined dataVersion and contentHash are
// base's, since those identify the primary source; overlay contributes
// every key base lacks, including further exports of a package base
// already covers.
func Merge(base, overlay *Store) *Store {
	specs := make(map[Key]*ApiSpec, len(base.specs)+len(overlay.specs))
	packages := make(map[string]struct{}, len(base.packages)+len(overlay.packages))

	for k, v := range overlay.specs {
		specs[k] = v
	}
	for p := range overlay.packages {
		packages[p] = struct{}{}
	}
	for k, v := range base.specs {
		specs[k] = v
	}
	for p := range base.packages {
		packages[p] = struct{}{}
	}

	return &Store{
		dataVersion: base.dataVersion,
		contentHash: base.contentHash,
		specs:       specs,
		packages:    packages,
	}
}

// DataVersion returns the semver data version the manifest declares.
func (s *Store) DataVersion() string { return s.dataVersion }

// ContentHash returns the hex SHA-256 over the manifest bytes followed by
// each referenced data file's bytes, in manifest order.
func (s *Store) ContentHash() string { return s.contentHash }

// HasPackage reports whether the store covers any export of pkg.
func (s *Store) HasPackage(pkg string) bool {
	_, ok := s.packages[pkg]
	return ok
}

// CoveredPackages returns every tracked package name, sorted.
func (s *Store) CoveredPackages() []string {
	out := make([]string, 0, len(s.packages))
	for p := range s.packages {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// GetApiSpec answers "what does (package, export) mean at installedVersion".
// A zero ResolvedApiSpec with false means the symbol is unknown to the store — a
// first-class outcome, never an error. Queries never fail.
func (s *Store) GetApiSpec(pkg, export, installedVersion string) (ResolvedApiSpec, bool) {
	spec, ok := s.specs[Key{Package: pkg, Export: export}]
	if !ok {
		return ResolvedApiSpec{}, false
	}

	v, err := semverx.CoerceVersion(installedVersion)
	if err != nil {
		return ResolvedApiSpec{Spec: spec, Available: false, IsFuture: false}, true
	}

	available := spec.availableRange.Contains(v)
	isFuture := false
	if !available {
		if min, ok := spec.availableRange.MinVersion(); ok {
			cmp, cerr := semverx.Compare(v, min)
			isFuture = cerr == nil && cmp < 0
		}
	}

	result := ResolvedApiSpec{
		Spec:      spec,
		Available: available,
		IsFuture:  isFuture,
	}
	result.ActiveSignature = activeSignature(spec.Signatures, v)
	result.ActiveDeprecation = activeDeprecation(spec.Deprecations, v)
	return result, true
}

// activeSignature finds the signature with greatest Since <= v and (no
// Until, or v < Until). Ties on Since are broken by declaration order, last
// wins.
func activeSignature(sigs []SignatureSpec, v string) *SignatureSpec {
	var best *SignatureSpec
	for i := range sigs {
		sig := &sigs[i]
		cmp, err := semverx.Compare(sig.Since, v)
		if err != nil || cmp > 0 {
			continue
		}
		if sig.Until != "" {
			ucmp, err := semverx.Compare(v, sig.Until)
			if err != nil || ucmp >= 0 {
				continue
			}
		}
		if best == nil {
			best = sig
			continue
		}
		bcmp, _ := semverx.Compare(sig.Since, best.Since)
		if bcmp >= 0 {
			best = sig
		}
	}
	return best
}

// activeDeprecation finds the deprecation with greatest Since <= v, last in
// declaration order wins ties.
func activeDeprecation(deps []DeprecationEntry, v string) *DeprecationEntry {
	var best *DeprecationEntry
	for i := range deps {
		d := &deps[i]
		cmp, err := semverx.Compare(d.Since, v)
		if err != nil || cmp > 0 {
			continue
		}
		if best == nil {
			best = d
			continue
		}
		bcmp, _ := semverx.Compare(d.Since, best.Since)
		if bcmp >= 0 {
			best = d
		}
	}
	return best
}
