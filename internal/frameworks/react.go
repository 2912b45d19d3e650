package frameworks

import "strings"

// reactAdapter canonicalizes react-dom and react/jsx-runtime subpaths to the
// package the authority store tracks: "react-dom" and "react" respectively.
type reactAdapter struct{}

func init() { register(reactAdapter{}) }

func (reactAdapter) ID() string { return "react" }

func (reactAdapter) Packages() []string { return []string{"react", "react-dom"} }

func (reactAdapter) Canonicalize(importSource string) string {
	switch {
	case importSource == "react-dom/client", importSource == "react-dom/server",
		strings.HasPrefix(importSource, "react-dom/"):
		return "react-dom"
	case importSource == "react/jsx-runtime", importSource == "react/jsx-dev-runtime":
		return "react"
	default:
		return importSource
	}
}
