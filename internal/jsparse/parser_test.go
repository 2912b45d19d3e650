package jsparse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/doxy/internal/astmodel"
)

func parse(t *testing.T, dialect Dialect, source string) *astmodel.File {
	t.Helper()
	p, err := NewParser(dialect)
	require.NoError(t, err)
	file, err := p.Parse(context.Background(), []byte(source), "test-input")
	require.NoError(t, err)
	return file
}

func TestParseNamedImportAndCall(t *testing.T) {
	file := parse(t, DialectJS, `import { useState, useEffect as effect } from "react";

const [n, setN] = useState(0);
`)

	require.Len(t, file.Imports, 1)
	imp := file.Imports[0]
	assert.Equal(t, "react", imp.Source)
	require.Len(t, imp.Specifiers, 2)
	assert.Equal(t, "useState", imp.Specifiers[0].Imported)
	assert.Equal(t, "useState", imp.Specifiers[0].Local)
	assert.Equal(t, "useEffect", imp.Specifiers[1].Imported)
	assert.Equal(t, "effect", imp.Specifiers[1].Local)

	require.NotEmpty(t, file.Calls)
	call := file.Calls[0]
	assert.Equal(t, "useState", call.Callee)
	assert.Equal(t, 1, call.ArgCount)
	assert.Equal(t, 3, call.Location.Line)
}

func TestParseDefaultAndNamespaceImports(t *testing.T) {
	file := parse(t, DialectJS, `import React from "react";
import * as ReactDOM from "react-dom/client";

React.createElement("div");
`)

	require.Len(t, file.Imports, 2)
	assert.Equal(t, "React", file.Imports[0].DefaultLocal)
	assert.Equal(t, "ReactDOM", file.Imports[1].NamespaceLocal)
	assert.Equal(t, "react-dom/client", file.Imports[1].Source)

	require.NotEmpty(t, file.Calls)
	assert.Equal(t, "React.createElement", file.Calls[0].Callee)
}

func TestParseTypeOnlyImportFlagged(t *testing.T) {
	file := parse(t, DialectTS, `import type { FC } from "react";
import { useState } from "react";
`)

	require.Len(t, file.Imports, 2)
	assert.True(t, file.Imports[0].IsTypeOnly)
	assert.False(t, file.Imports[1].IsTypeOnly)
}

func TestParseJSXElement(t *testing.T) {
	file := parse(t, DialectTSX, `import { Suspense } from "react";

export function App() {
  return <Suspense fallback={null}>hi</Suspense>;
}
`)

	require.NotEmpty(t, file.JSX)
	assert.Equal(t, "Suspense", file.JSX[0].TagName)
}

func TestParseComments(t *testing.T) {
	file := parse(t, DialectJS, `// doxy-ignore deprecated-api -- migrating
legacy();
`)

	require.NotEmpty(t, file.Comments)
	assert.Contains(t, file.Comments[0].Text, "doxy-ignore")
	assert.Equal(t, 1, file.Comments[0].StartLine)
}

func TestParseTypeScriptWithoutJSXNodes(t *testing.T) {
	file := parse(t, DialectTS, `import { useId } from "react";

const id = useId();
`)

	require.NotEmpty(t, file.Calls)
	assert.Equal(t, "useId", file.Calls[0].Callee)
	assert.Empty(t, file.JSX)
}
