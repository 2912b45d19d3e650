package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/doxy/internal/astmodel"
)

func TestPackageNameScopedAndPlain(t *testing.T) {
	assert.Equal(t, "react", PackageName("react"))
	assert.Equal(t, "react-dom", PackageName("react-dom/client"))
	assert.Equal(t, "@scope/pkg", PackageName("@scope/pkg/sub/path"))
	assert.Equal(t, "", PackageName("./local"))
	assert.Equal(t, "", PackageName("/abs/path"))
	assert.Equal(t, "", PackageName(""))
}

// TestResolveImportsCanonicalizesReactDomSubpath is a regression test: the
// react adapter only recognizes subpaths like "react-dom/client", so
// canonicalization must run against the full import source before
// PackageName strips the subpath off.
func TestResolveImportsCanonicalizesReactDomSubpath(t *testing.T) {
	file := &astmodel.File{
		Imports: []astmodel.NormalizedImport{
			{
				Source:       "react-dom/client",
				DefaultLocal: "ReactDOM",
			},
		},
		Calls: []astmodel.NormalizedCallExpression{
			{Callee: "ReactDOM.createRoot", ArgCount: 1},
		},
	}
	result := ResolveImports(file, nil, nil)
	require.Len(t, result.Usages, 1)
	assert.Equal(t, "react-dom", result.Usages[0].Package)
	assert.Equal(t, "createRoot", result.Usages[0].Export)
}

func TestResolveImportsUnresolvedTrackedPackage(t *testing.T) {
	file := &astmodel.File{
		Imports: []astmodel.NormalizedImport{
			{Source: "left-pad", DefaultLocal: "leftPad"},
		},
	}
	tracked := map[string]struct{}{"react": {}}
	result := ResolveImports(file, tracked, nil)
	assert.Equal(t, []string{"left-pad"}, result.UnresolvedImports)
	assert.Empty(t, result.ImportedPackages)
}

func TestResolveImportsAliasRewrite(t *testing.T) {
	file := &astmodel.File{
		Imports: []astmodel.NormalizedImport{
			{Source: "@/components/Button", DefaultLocal: "Button"},
		},
	}
	result := ResolveImports(file, nil, map[string]string{"@/": "./src/"})
	assert.Empty(t, result.ImportedPackages)
	assert.Empty(t, result.UnresolvedImports)
}

func TestResolveImportsImportOnlyUsageSurfacesWithoutCall(t *testing.T) {
	file := &astmodel.File{
		Imports: []astmodel.NormalizedImport{
			{
				Source:     "widgets",
				Specifiers: []astmodel.ImportSpecifier{{Imported: "OldButton", Local: "OldButton"}},
				Location:   astmodel.Location{Line: 1, Column: 1},
			},
		},
	}
	result := ResolveImports(file, nil, nil)
	require.Len(t, result.Usages, 1)
	assert.Equal(t, "OldButton", result.Usages[0].Export)
	require.Len(t, result.Usages[0].UsageSites, 1)
	assert.Nil(t, result.Usages[0].UsageSites[0].ArgCount)
}

func TestResolveImportsJSXElementUse(t *testing.T) {
	file := &astmodel.File{
		Imports: []astmodel.NormalizedImport{
			{
				Source:     "widgets",
				Specifiers: []astmodel.ImportSpecifier{{Imported: "LegacyButton", Local: "LegacyButton"}},
				Location:   astmodel.Location{Line: 1, Column: 1},
			},
		},
		JSX: []astmodel.NormalizedJSXElement{
			{TagName: "LegacyButton", Location: astmodel.Location{Line: 8, Column: 10}},
		},
	}
	result := ResolveImports(file, nil, nil)
	require.Len(t, result.Usages, 1)
	assert.Equal(t, "LegacyButton", result.Usages[0].Export)
	require.Len(t, result.Usages[0].UsageSites, 1)
	assert.Equal(t, 8, result.Usages[0].UsageSites[0].Location.Line)
	assert.Nil(t, result.Usages[0].UsageSites[0].ArgCount)
}

func TestResolveImportsJSXNamespaceTag(t *testing.T) {
	file := &astmodel.File{
		Imports: []astmodel.NormalizedImport{
			{Source: "widgets", NamespaceLocal: "W", Location: astmodel.Location{Line: 1, Column: 1}},
		},
		JSX: []astmodel.NormalizedJSXElement{
			{TagName: "W.Panel", Location: astmodel.Location{Line: 3, Column: 5}},
		},
	}
	result := ResolveImports(file, nil, nil)
	require.Len(t, result.Usages, 1)
	assert.Equal(t, "Panel", result.Usages[0].Export)
	assert.Equal(t, KindNamespace, result.Usages[0].ImportKind)
}

func TestResolveImportsImportOnlyDefaultBinding(t *testing.T) {
	file := &astmodel.File{
		Imports: []astmodel.NormalizedImport{
			{
				Source:       "widgets",
				DefaultLocal: "Widget",
				Location:     astmodel.Location{Line: 2, Column: 1},
			},
		},
	}
	result := ResolveImports(file, nil, nil)
	require.Len(t, result.Usages, 1)
	assert.Equal(t, "default", result.Usages[0].Export)
	assert.Equal(t, KindDefault, result.Usages[0].ImportKind)
	require.Len(t, result.Usages[0].UsageSites, 1)
	assert.Equal(t, 2, result.Usages[0].UsageSites[0].Location.Line)
}

func TestResolveImportsNamespaceImportOnlyIsSilent(t *testing.T) {
	file := &astmodel.File{
		Imports: []astmodel.NormalizedImport{
			{Source: "widgets", NamespaceLocal: "W", Location: astmodel.Location{Line: 1, Column: 1}},
		},
	}
	result := ResolveImports(file, nil, nil)
	assert.Empty(t, result.Usages)
}
