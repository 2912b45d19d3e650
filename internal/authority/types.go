// Package authority implements the version-indexed catalog of per-symbol
// specifications: loading curated data, validating it against a JSON
// Schema, and answering version-parameterized queries.
package authority

import "github.com/phobologic/doxy/internal/semverx"

// Kind is the syntactic kind of an exported symbol.
type Kind string

const (
	KindFunction  Kind = "function"
	KindComponent Kind = "component"
	KindType      Kind = "type"
	KindConstant  Kind = "constant"
	KindClass     Kind = "class"
	KindHook      Kind = "hook"
)

// Param describes one formal parameter of a SignatureSpec.
type Param struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// SignatureSpec is the arity/parameter shape of an export across a version
// window. Ranges across a spec's Signatures must partition the domain: no
// two signatures overlap at any concrete version.
type SignatureSpec struct {
	Since    string  `json:"since"`
	Until    string  `json:"until,omitempty"`
	MinArity int     `json:"minArity"`
	MaxArity int     `json:"maxArity"` // <0 means unbounded
	Params   []Param `json:"params,omitempty"`
}

// ReplacementRef points at the symbol a deprecation recommends migrating to.
type ReplacementRef struct {
	Package       string `json:"package"`
	Export        string `json:"export"`
	MigrationHint string `json:"migrationHint,omitempty"`
}

// DeprecationEntry records one deprecation/removal event in an export's
// lifecycle.
type DeprecationEntry struct {
	Since       string          `json:"since"`
	RemovedIn   string          `json:"removedIn,omitempty"`
	Message     string          `json:"message"`
	Replacement *ReplacementRef `json:"replacement,omitempty"`
}

// ApiSpec is the canonical description of one exported symbol.
type ApiSpec struct {
	Package      string             `json:"package"`
	Export       string             `json:"export"`
	Kind         Kind               `json:"kind"`
	AvailableIn  string             `json:"availableIn"`
	Signatures   []SignatureSpec    `json:"signatures,omitempty"`
	Deprecations []DeprecationEntry `json:"deprecations,omitempty"`

	availableRange semverx.Range
}

// Key identifies a spec by (package, export).
type Key struct {
	Package string
	Export  string
}

// ResolvedApiSpec is the result of querying an ApiSpec at a concrete version.
type ResolvedApiSpec struct {
	Spec              *ApiSpec
	Available         bool
	IsFuture          bool
	ActiveSignature   *SignatureSpec
	ActiveDeprecation *DeprecationEntry
}
