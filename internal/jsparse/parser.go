// Package jsparse parses JavaScript, JSX, and TypeScript/TSX source with
// tree-sitter and reduces the syntax tree to a Normalized AST. It is one
// valid producer among many: any parser that can fill in astmodel.File
// suffices, and nothing downstream looks past that package.
package jsparse

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/phobologic/doxy/internal/astmodel"
)

//go:embed queries/tags.scm queries/tags_ts.scm
var queryFS embed.FS

// Dialect selects which tree-sitter grammar a Parser parses with.
type Dialect string

const (
	DialectJS  Dialect = "javascript"
	DialectTS  Dialect = "typescript"
	DialectTSX Dialect = "tsx"
)

// Extensions maps file extensions to the dialect that parses them.
var Extensions = map[string]Dialect{
	".js":  DialectJS,
	".jsx": DialectJS,
	".mjs": DialectJS,
	".cjs": DialectJS,
	".ts":  DialectTS,
	".tsx": DialectTSX,
}

func dialectLanguage(d Dialect) *sitter.Language {
	switch d {
	case DialectTS:
		return typescript.GetLanguage()
	case DialectTSX:
		return tsx.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

var (
	queryOnce  sync.Once
	queryCache = map[Dialect]*sitter.Query{}
	queryErr   error
)

// queryFile picks the query source per dialect: the pure-typescript
// grammar has no JSX node types (angle brackets are type assertions
// there), so it compiles a JSX-free variant of the same patterns.
func queryFile(d Dialect) string {
	if d == DialectTS {
		return "queries/tags_ts.scm"
	}
	return "queries/tags.scm"
}

func getQuery(d Dialect) (*sitter.Query, error) {
	queryOnce.Do(func() {
		for _, dd := range []Dialect{DialectJS, DialectTS, DialectTSX} {
			data, err := queryFS.ReadFile(queryFile(dd))
			if err != nil {
				queryErr = fmt.Errorf("reading %s: %w", queryFile(dd), err)
				return
			}
			q, err := sitter.NewQuery(data, dialectLanguage(dd))
			if err != nil {
				queryErr = fmt.Errorf("compiling query for %s: %w", dd, err)
				return
			}
			queryCache[dd] = q
		}
	})
	if queryErr != nil {
		return nil, queryErr
	}
	return queryCache[d], nil
}

// Parser parses one dialect. Not safe for concurrent use — callers must
// create one Parser per goroutine.
type Parser struct {
	dialect Dialect
	parser  *sitter.Parser
	query   *sitter.Query
}

// NewParser creates a fresh tree-sitter parser for dialect.
func NewParser(dialect Dialect) (*Parser, error) {
	q, err := getQuery(dialect)
	if err != nil {
		return nil, err
	}
	p := sitter.NewParser()
	p.SetLanguage(dialectLanguage(dialect))
	return &Parser{dialect: dialect, parser: p, query: q}, nil
}

// Parse reduces source to a Normalized AST. path is used only for File.Path.
func (p *Parser) Parse(ctx context.Context, source []byte, path string) (*astmodel.File, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(p.query, tree.RootNode())

	out := &astmodel.File{Path: path}

	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)
		for _, c := range match.Captures {
			name := p.query.CaptureNameForId(c.Index)
			switch name {
			case "import":
				if imp, ok := extractImport(c.Node, source); ok {
					out.Imports = append(out.Imports, imp)
				}
			case "call":
				out.Calls = append(out.Calls, extractCall(c.Node, source))
			case "jsx", "jsx_self":
				out.JSX = append(out.JSX, extractJSX(c.Node, source))
			case "comment":
				out.Comments = append(out.Comments, extractComment(c.Node, source))
			}
		}
	}

	return out, nil
}

func loc(n *sitter.Node) astmodel.Location {
	p := n.StartPoint()
	return astmodel.Location{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

func nodeText(n *sitter.Node, source []byte) string {
	return string(source[n.StartByte():n.EndByte()])
}

// extractImport walks an import_statement node, pulling out the source
// string, named/default/namespace specifiers, and the type-only flag.
// `import type { X } from "pkg"` and `import { type X } from "pkg"` both
// mark the import (or specifier) type-only; the import resolver skips
// type-only imports entirely.
func extractImport(node *sitter.Node, source []byte) (astmodel.NormalizedImport, bool) {
	imp := astmodel.NormalizedImport{Location: loc(node)}

	raw := nodeText(node, source)
	if strings.HasPrefix(strings.TrimSpace(raw), "import type") {
		imp.IsTypeOnly = true
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "string", "string_fragment":
			imp.Source = strings.Trim(nodeText(child, source), `"'`)
		case "import_clause":
			walkImportClause(child, source, &imp)
		}
	}

	if imp.Source == "" {
		return astmodel.NormalizedImport{}, false
	}
	return imp, true
}

func walkImportClause(clause *sitter.Node, source []byte, imp *astmodel.NormalizedImport) {
	for i := 0; i < int(clause.ChildCount()); i++ {
		child := clause.Child(i)
		switch child.Type() {
		case "identifier":
			imp.DefaultLocal = nodeText(child, source)
		case "namespace_import":
			for j := 0; j < int(child.ChildCount()); j++ {
				if grand := child.Child(j); grand.Type() == "identifier" {
					imp.NamespaceLocal = nodeText(grand, source)
				}
			}
		case "named_imports":
			for j := 0; j < int(child.ChildCount()); j++ {
				spec := child.Child(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				imp.Specifiers = append(imp.Specifiers, extractSpecifier(spec, source))
			}
		}
	}
}

func extractSpecifier(spec *sitter.Node, source []byte) astmodel.ImportSpecifier {
	var names []string
	typeOnly := false
	for i := 0; i < int(spec.ChildCount()); i++ {
		child := spec.Child(i)
		switch child.Type() {
		case "identifier":
			names = append(names, nodeText(child, source))
		case "type":
			typeOnly = true
		}
	}
	out := astmodel.ImportSpecifier{IsTypeOnly: typeOnly}
	switch len(names) {
	case 1:
		out.Imported, out.Local = names[0], names[0]
	case 2:
		out.Imported, out.Local = names[0], names[1]
	}
	return out
}

// extractCall walks a call_expression, producing the dotted callee path
// ("useState" or "React.createElement"), the argument count, and any
// statically-named arguments (object property shorthand names, used by the
// Analyzer's wrong-param check).
func extractCall(node *sitter.Node, source []byte) astmodel.NormalizedCallExpression {
	call := astmodel.NormalizedCallExpression{Location: loc(node)}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier", "member_expression":
			call.Callee = nodeText(child, source)
		case "arguments":
			call.ArgCount, call.ArgNames = extractArguments(child, source)
		}
	}
	return call
}

func extractArguments(args *sitter.Node, source []byte) (int, []string) {
	count := 0
	var names []string
	for i := 0; i < int(args.ChildCount()); i++ {
		child := args.Child(i)
		switch child.Type() {
		case ",", "(", ")":
			continue
		case "object":
			count++
			for j := 0; j < int(child.ChildCount()); j++ {
				prop := child.Child(j)
				if prop.Type() != "shorthand_property_identifier" && prop.Type() != "property_identifier" {
					continue
				}
				names = append(names, nodeText(prop, source))
			}
		default:
			count++
		}
	}
	return count, names
}

func extractJSX(node *sitter.Node, source []byte) astmodel.NormalizedJSXElement {
	el := astmodel.NormalizedJSXElement{Location: loc(node)}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier", "nested_identifier", "member_expression":
			if el.TagName == "" {
				el.TagName = nodeText(child, source)
			}
		case "jsx_attribute":
			el.Attributes = append(el.Attributes, nodeText(child, source))
		}
	}
	return el
}

func extractComment(node *sitter.Node, source []byte) astmodel.CommentRange {
	start := node.StartPoint()
	end := node.EndPoint()
	return astmodel.CommentRange{
		Text:      nodeText(node, source),
		StartLine: int(start.Row) + 1,
		EndLine:   int(end.Row) + 1,
	}
}
