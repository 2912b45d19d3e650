// Package astmodel defines the Normalized AST: a language-agnostic snapshot
// of a source file's imports, call expressions, JSX-like element uses, and
// suppression-comment ranges. Any parser that can produce this shape, a
// tree-sitter grammar or a hand-rolled scanner alike, is a valid
// producer; the rest of the pipeline never looks past this package.
package astmodel

// Location is a 1-based line/column source position.
type Location struct {
	Line   int
	Column int
}

// ImportSpecifier is one named binding inside an import statement, e.g. the
// `useState` in `import { useState as useMyState } from "react"`.
type ImportSpecifier struct {
	Imported   string // exported name as written in the source package
	Local      string // local binding name (after "as", if any)
	IsTypeOnly bool
}

// NormalizedImport is a single import declaration.
type NormalizedImport struct {
	Source         string // the raw import specifier string, e.g. "react-dom/client"
	Specifiers     []ImportSpecifier
	DefaultLocal   string // "" if no default import
	NamespaceLocal string // "" if no namespace import
	IsTypeOnly     bool   // `import type ... from ...`
	Location       Location
}

// NormalizedCallExpression is a single call site, e.g. `useState(0)` or
// `React.createElement("div")`.
type NormalizedCallExpression struct {
	Callee   string // dotted path as written, e.g. "useState" or "React.createElement"
	ArgCount int
	ArgNames []string // named arguments the call supplies, when staticly known
	Location Location
}

// NormalizedJSXElement is a single JSX-like element use, e.g. `<Suspense>`.
type NormalizedJSXElement struct {
	TagName    string
	Attributes []string
	Location   Location
}

// CommentRange is a raw comment's text and the line span it covers, kept
// around so the suppression engine can parse directives out of it without
// re-walking the parse tree.
type CommentRange struct {
	Text      string
	StartLine int
	EndLine   int
}

// File is the complete Normalized AST for one source file.
type File struct {
	Path     string
	Imports  []NormalizedImport
	Calls    []NormalizedCallExpression
	JSX      []NormalizedJSXElement
	Comments []CommentRange
}
