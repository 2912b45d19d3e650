// Package resolve maps a file's Normalized AST and framework rules to
// SymbolUsage records.
package resolve

import (
	"sort"
	"strings"

	"github.com/phobologic/doxy/internal/astmodel"
	"github.com/phobologic/doxy/internal/frameworks"
)

// ImportKind is how a symbol was bound at the import site.
type ImportKind string

const (
	KindNamed     ImportKind = "named"
	KindDefault   ImportKind = "default"
	KindNamespace ImportKind = "namespace"
	KindDynamic   ImportKind = "dynamic"
)

// UsageSite is one concrete occurrence of a resolved symbol.
type UsageSite struct {
	Location astmodel.Location
	ArgCount *int
	ArgNames []string
}

// SymbolUsage aggregates every site where (Package, Export) was used in one
// file, unique by that pair.
type SymbolUsage struct {
	Package    string
	Export     string
	ImportKind ImportKind
	UsageSites []UsageSite
}

// Result is resolveImports' return value.
type Result struct {
	Usages            []*SymbolUsage
	ImportedPackages  []string
	UnresolvedImports []string
}

// PackageName extracts the package name from an import source string: "" for
// relative imports, the first two slash-delimited segments for scoped
// packages ("@scope/pkg"), otherwise the first segment. Subpaths are
// discarded at this stage.
func PackageName(source string) string {
	if source == "" {
		return ""
	}
	if strings.HasPrefix(source, ".") || strings.HasPrefix(source, "/") {
		return ""
	}
	parts := strings.Split(source, "/")
	if strings.HasPrefix(source, "@") {
		if len(parts) >= 2 {
			return parts[0] + "/" + parts[1]
		}
		return parts[0]
	}
	return parts[0]
}

type binding struct {
	pkg      string
	imported string
	kind     ImportKind
}

// ResolveImports maps a file's imports and call sites to symbol usages.
// trackedPackages, when non-nil, restricts binding construction to those
// packages; pathAliases rewrites relative-looking import sources before
// package-name extraction, a pre-pass for user-supplied aliases not encoded
// in a type-compiler's path map.
func ResolveImports(file *astmodel.File, trackedPackages map[string]struct{}, pathAliases map[string]string) Result {
	byLocal := make(map[string]binding)      // local identifier -> binding (named only)
	namespaceLike := make(map[string]string) // local identifier -> pkg (default or namespace)
	importLoc := make(map[string]astmodel.Location)

	usageIndex := make(map[[2]string]*SymbolUsage)
	var usages []*SymbolUsage
	importedPkgs := make(map[string]struct{})
	unresolvedSet := make(map[string]struct{})

	order := func(key [2]string, kind ImportKind) *SymbolUsage {
		if su, ok := usageIndex[key]; ok {
			return su
		}
		su := &SymbolUsage{Package: key[0], Export: key[1], ImportKind: kind}
		usageIndex[key] = su
		usages = append(usages, su)
		return su
	}

	for _, imp := range file.Imports {
		if imp.IsTypeOnly {
			continue
		}
		source := rewriteAlias(imp.Source, pathAliases)
		pkg := PackageName(frameworks.CanonicalizeAll(source))
		if pkg == "" {
			continue
		}

		if trackedPackages != nil {
			if _, ok := trackedPackages[pkg]; !ok {
				unresolvedSet[pkg] = struct{}{}
				continue
			}
		}
		importedPkgs[pkg] = struct{}{}

		for _, spec := range imp.Specifiers {
			if spec.IsTypeOnly {
				continue
			}
			byLocal[spec.Local] = binding{pkg: pkg, imported: spec.Imported, kind: KindNamed}
			importLoc[spec.Local] = imp.Location
		}
		if imp.DefaultLocal != "" {
			byLocal[imp.DefaultLocal] = binding{pkg: pkg, imported: "default", kind: KindDefault}
			namespaceLike[imp.DefaultLocal] = pkg
			importLoc[imp.DefaultLocal] = imp.Location
		}
		if imp.NamespaceLocal != "" {
			byLocal[imp.NamespaceLocal] = binding{pkg: pkg, imported: "*", kind: KindNamespace}
			namespaceLike[imp.NamespaceLocal] = pkg
		}
	}

	calledLocal := make(map[string]bool)

	for _, call := range file.Calls {
		callee := call.Callee
		if callee == "" {
			continue
		}

		var pkg, export string
		var kind ImportKind

		if !strings.Contains(callee, ".") {
			b, ok := byLocal[callee]
			if !ok || b.kind == KindDefault || b.kind == KindNamespace {
				continue
			}
			pkg, export, kind = b.pkg, b.imported, b.kind
			calledLocal[callee] = true
		} else {
			head, tail, _ := strings.Cut(callee, ".")
			p, ok := namespaceLike[head]
			if !ok {
				continue
			}
			b := byLocal[head]
			pkg, export, kind = p, tail, b.kind
			calledLocal[head] = true
		}

		site := UsageSite{Location: call.Location}
		argCount := call.ArgCount
		site.ArgCount = &argCount
		site.ArgNames = call.ArgNames

		su := order([2]string{pkg, export}, kind)
		su.UsageSites = append(su.UsageSites, site)
	}

	// JSX element uses resolve the same way calls do, minus an argument
	// count, so a deprecated component anchors its finding at the element
	// rather than the import line.
	for _, el := range file.JSX {
		tag := el.TagName
		if tag == "" {
			continue
		}

		var pkg, export string
		var kind ImportKind

		if !strings.Contains(tag, ".") {
			b, ok := byLocal[tag]
			if !ok || b.kind != KindNamed {
				continue
			}
			pkg, export, kind = b.pkg, b.imported, b.kind
			calledLocal[tag] = true
		} else {
			head, tail, _ := strings.Cut(tag, ".")
			p, ok := namespaceLike[head]
			if !ok {
				continue
			}
			b := byLocal[head]
			pkg, export, kind = p, tail, b.kind
			calledLocal[head] = true
		}

		su := order([2]string{pkg, export}, kind)
		su.UsageSites = append(su.UsageSites, UsageSite{Location: el.Location})
	}

	// Import-only usages: a binding with no call or element site still
	// surfaces a usage anchored at the import location, so deprecation and
	// removal findings fire for imports-without-calls. Named and default
	// bindings both qualify; a namespace import names no specific export,
	// so there is nothing to look up for it.
	for local, b := range byLocal {
		if b.kind == KindNamespace || calledLocal[local] {
			continue
		}
		key := [2]string{b.pkg, b.imported}
		if _, exists := usageIndex[key]; exists {
			continue
		}
		su := order(key, b.kind)
		su.UsageSites = append(su.UsageSites, UsageSite{Location: importLoc[local]})
	}

	// Both lists are sorted so downstream cache entries hash identically
	// across runs regardless of map iteration order.
	out := Result{Usages: usages}
	for p := range importedPkgs {
		out.ImportedPackages = append(out.ImportedPackages, p)
	}
	sort.Strings(out.ImportedPackages)
	for p := range unresolvedSet {
		out.UnresolvedImports = append(out.UnresolvedImports, p)
	}
	sort.Strings(out.UnresolvedImports)
	return out
}

// rewriteAlias rewrites a relative-looking import source through a
// prefix->path alias map, e.g. "@/components/Button" -> "./src/components/Button",
// which PackageName then (correctly) treats as relative.
func rewriteAlias(source string, aliases map[string]string) string {
	for prefix, target := range aliases {
		if strings.HasPrefix(source, prefix) {
			return target + strings.TrimPrefix(source, prefix)
		}
	}
	return source
}
