package authority

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// manifestSchemaJSON and specFileSchemaJSON describe the two on-disk
// document shapes the store reads. Both files are validated against these
// before a single field is trusted, so a curator's malformed edit fails
// loudly at load time (AuthorityError) instead of silently producing wrong
// findings.
const manifestSchemaJSON = `{
  "type": "object",
  "required": ["schemaVersion", "dataVersion", "packages"],
  "properties": {
    "schemaVersion": {"type": "integer", "minimum": 1},
    "dataVersion": {"type": "string"},
    "packages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "specFile"],
        "properties": {
          "name": {"type": "string"},
          "latestMappedVersion": {"type": "string"},
          "specFile": {"type": "string"}
        }
      }
    }
  }
}`

const specFileSchemaJSON = `{
  "type": "object",
  "required": ["schemaVersion", "package", "specs"],
  "properties": {
    "schemaVersion": {"type": "integer", "minimum": 1},
    "package": {"type": "string"},
    "specs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["package", "export", "kind", "availableIn"],
        "properties": {
          "package": {"type": "string"},
          "export": {"type": "string"},
          "kind": {"type": "string", "enum": ["function", "component", "type", "constant", "class", "hook"]},
          "availableIn": {"type": "string"},
          "signatures": {"type": "array"},
          "deprecations": {"type": "array"}
        }
      }
    }
  }
}`

var (
	manifestSchema *jsonschema.Resolved
	specFileSchema *jsonschema.Resolved
)

func init() {
	manifestSchema = mustResolve(manifestSchemaJSON)
	specFileSchema = mustResolve(specFileSchemaJSON)
}

func mustResolve(raw string) *jsonschema.Resolved {
	var sch jsonschema.Schema
	if err := json.Unmarshal([]byte(raw), &sch); err != nil {
		panic(fmt.Errorf("authority: invalid built-in schema: %w", err))
	}
	resolved, err := sch.Resolve(nil)
	if err != nil {
		panic(fmt.Errorf("authority: resolving built-in schema: %w", err))
	}
	return resolved
}

// validateManifest validates raw manifest.json bytes against the manifest
// schema, returning a decoded instance on success.
func validateManifest(raw []byte) (manifestFile, error) {
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return manifestFile{}, fmt.Errorf("decoding manifest.json: %w", err)
	}
	if err := manifestSchema.Validate(instance); err != nil {
		return manifestFile{}, fmt.Errorf("manifest.json failed schema validation: %w", err)
	}
	var m manifestFile
	if err := json.Unmarshal(raw, &m); err != nil {
		return manifestFile{}, fmt.Errorf("decoding manifest.json: %w", err)
	}
	return m, nil
}

// validateSpecFile validates one <pkg>/<major>.x.json document.
func validateSpecFile(raw []byte) (specFile, error) {
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return specFile{}, fmt.Errorf("decoding spec file: %w", err)
	}
	if err := specFileSchema.Validate(instance); err != nil {
		return specFile{}, fmt.Errorf("spec file failed schema validation: %w", err)
	}
	var s specFile
	if err := json.Unmarshal(raw, &s); err != nil {
		return specFile{}, fmt.Errorf("decoding spec file: %w", err)
	}
	return s, nil
}
