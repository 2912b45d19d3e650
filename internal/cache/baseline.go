package cache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/phobologic/doxy/internal/suppress"
)

// baselineDocument is the on-disk shape of .doxy/baseline.json.
type baselineDocument struct {
	FindingIDs  []string `json:"findingIds"`
	CreatedAt   string   `json:"createdAt"`
	DoxyVersion string   `json:"doxyVersion"`
}

// LoadBaseline reads path, returning an empty baseline (not an error) when
// no baseline has been snapshotted yet.
func LoadBaseline(path string) (suppress.Baseline, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return suppress.NewBaseline(nil), nil
	}
	if err != nil {
		return suppress.Baseline{}, err
	}
	var doc baselineDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return suppress.Baseline{}, err
	}
	return suppress.NewBaseline(doc.FindingIDs), nil
}

// SaveBaseline atomically writes findingIDs to path as a new baseline
// snapshot, using the same write-temp-rename sequence as Cache.Save.
func SaveBaseline(path string, findingIDs []string, doxyVersion, createdAt string) error {
	doc := baselineDocument{FindingIDs: findingIDs, CreatedAt: createdAt, DoxyVersion: doxyVersion}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".baseline-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
