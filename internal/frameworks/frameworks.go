// Package frameworks is the closed registry of framework-specific import
// normalization plug-ins. Each adapter registers itself in init();
// variants are closed at process start, open-world dispatch is not
// required.
package frameworks

// Adapter canonicalizes a framework's subpath imports to the package name
// the authority store actually tracks, e.g. "react-dom/client" → "react-dom".
type Adapter interface {
	ID() string
	Packages() []string
	Canonicalize(importSource string) string
}

// Registry maps adapter ID to Adapter. Populated by init() functions in
// per-framework files.
var Registry = map[string]Adapter{}

func register(a Adapter) { Registry[a.ID()] = a }

// CanonicalizeAll runs importSource through every registered adapter,
// returning the first rewrite a matching adapter produces, or importSource
// unchanged if none apply.
func CanonicalizeAll(importSource string) string {
	for _, a := range Registry {
		if rewritten := a.Canonicalize(importSource); rewritten != importSource {
			return rewritten
		}
	}
	return importSource
}
