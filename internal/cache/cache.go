// Package cache implements the persistent side of incremental analysis:
// the .doxy/cache.json format, atomic rewrite, and forward-compatible
// round-tripping of fields this version doesn't know about.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/phobologic/doxy/internal/analyze"
	"github.com/phobologic/doxy/internal/suppress"
)

// FileCacheEntry is the per-file record persisted across runs. Findings are
// stored as the pre-suppression candidate set, and Inline carries the
// file's parsed suppression directives alongside them, so that a later
// change to config suppression rules or the baseline is honored on the
// next run's merge without re-parsing or re-analyzing the file.
type FileCacheEntry struct {
	FilePath          string            `json:"filePath"`
	ContentHash       string            `json:"contentHash"`
	AuthorityVersion  string            `json:"authorityVersion"`
	RepoContextHash   string            `json:"repoContextHash"`
	ImportedPackages  []string          `json:"importedPackages"`
	PackageVersions   map[string]string `json:"packageVersions,omitempty"`
	UnresolvedImports []string          `json:"unresolvedImports,omitempty"`
	Findings          []analyze.Finding `json:"findings"`
	Inline            []suppress.Inline `json:"inline,omitempty"`
	AnalyzedAt        string            `json:"analyzedAt"`

	// extra carries any JSON object keys this version doesn't recognize,
	// so a rewrite by this binary never drops data a newer or older
	// version stored. Re-merged on Marshal.
	extra map[string]json.RawMessage
}

// MarshalJSON re-merges the known fields with whatever unrecognized keys
// were present when the entry was decoded.
func (e FileCacheEntry) MarshalJSON() ([]byte, error) {
	type known struct {
		FilePath          string            `json:"filePath"`
		ContentHash       string            `json:"contentHash"`
		AuthorityVersion  string            `json:"authorityVersion"`
		RepoContextHash   string            `json:"repoContextHash"`
		ImportedPackages  []string          `json:"importedPackages"`
		PackageVersions   map[string]string `json:"packageVersions,omitempty"`
		UnresolvedImports []string          `json:"unresolvedImports,omitempty"`
		Findings          []analyze.Finding `json:"findings"`
		Inline            []suppress.Inline `json:"inline,omitempty"`
		AnalyzedAt        string            `json:"analyzedAt"`
	}
	base, err := json.Marshal(known{
		FilePath:          e.FilePath,
		ContentHash:       e.ContentHash,
		AuthorityVersion:  e.AuthorityVersion,
		RepoContextHash:   e.RepoContextHash,
		ImportedPackages:  e.ImportedPackages,
		PackageVersions:   e.PackageVersions,
		UnresolvedImports: e.UnresolvedImports,
		Findings:          e.Findings,
		Inline:            e.Inline,
		AnalyzedAt:        e.AnalyzedAt,
	})
	if err != nil {
		return nil, err
	}
	if len(e.extra) == 0 {
		return base, nil
	}

	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range e.extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes known fields and stashes everything else in extra.
func (e *FileCacheEntry) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type known struct {
		FilePath          string            `json:"filePath"`
		ContentHash       string            `json:"contentHash"`
		AuthorityVersion  string            `json:"authorityVersion"`
		RepoContextHash   string            `json:"repoContextHash"`
		ImportedPackages  []string          `json:"importedPackages"`
		PackageVersions   map[string]string `json:"packageVersions,omitempty"`
		UnresolvedImports []string          `json:"unresolvedImports,omitempty"`
		Findings          []analyze.Finding `json:"findings"`
		Inline            []suppress.Inline `json:"inline,omitempty"`
		AnalyzedAt        string            `json:"analyzedAt"`
	}
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}

	*e = FileCacheEntry{
		FilePath:          k.FilePath,
		ContentHash:       k.ContentHash,
		AuthorityVersion:  k.AuthorityVersion,
		RepoContextHash:   k.RepoContextHash,
		ImportedPackages:  k.ImportedPackages,
		PackageVersions:   k.PackageVersions,
		UnresolvedImports: k.UnresolvedImports,
		Findings:          k.Findings,
		Inline:            k.Inline,
		AnalyzedAt:        k.AnalyzedAt,
	}

	for _, knownKey := range []string{
		"filePath", "contentHash", "authorityVersion", "repoContextHash",
		"importedPackages", "packageVersions", "unresolvedImports", "findings", "inline", "analyzedAt",
	} {
		delete(raw, knownKey)
	}
	if len(raw) > 0 {
		e.extra = raw
	}
	return nil
}

// HasImportedPackages reports whether this entry was written by a version
// that populated importedPackages — absence means the incremental engine
// must fall back to invalidating the entry unconditionally.
func (e FileCacheEntry) HasImportedPackages() bool { return e.ImportedPackages != nil }

// document is the on-disk shape of .doxy/cache.json.
type document struct {
	Entries     map[string]FileCacheEntry `json:"entries"`
	CreatedAt   string                    `json:"createdAt"`
	DoxyVersion string                    `json:"doxyVersion"`
	ConfigHash  string                    `json:"configHash,omitempty"`
}

// Cache is the decoded on-disk cache plus bookkeeping for the atomic
// rewrite on Save. ConfigHash is the fingerprint of the configuration the
// entries were written under; "" means an older format that never stored
// one, which the incremental engine treats as unknown rather than changed.
type Cache struct {
	path       string
	createdAt  string
	version    string
	ConfigHash string
	Entries    map[string]FileCacheEntry
}

// Load reads path, returning an empty Cache (not an error) if the file
// does not exist yet — a missing cache means "first run", not a failure.
func Load(path, doxyVersion, createdAt string) (*Cache, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Cache{path: path, version: doxyVersion, createdAt: createdAt, Entries: map[string]FileCacheEntry{}}, nil
	}
	if err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Entries == nil {
		doc.Entries = map[string]FileCacheEntry{}
	}
	return &Cache{path: path, version: doc.DoxyVersion, createdAt: doc.CreatedAt, ConfigHash: doc.ConfigHash, Entries: doc.Entries}, nil
}

// Get returns the entry for filePath, if any.
func (c *Cache) Get(filePath string) (FileCacheEntry, bool) {
	e, ok := c.Entries[filePath]
	return e, ok
}

// Put records (or replaces) the entry for filePath. Replacement is atomic
// from the caller's point of view: the old value is simply overwritten in
// the in-memory map, and never observed mid-update because Save happens
// once at end-of-run.
func (c *Cache) Put(filePath string, entry FileCacheEntry) {
	c.Entries[filePath] = entry
}

// Delete removes the entry for filePath, used by GC and rename migration.
func (c *Cache) Delete(filePath string) {
	delete(c.Entries, filePath)
}

// Rename migrates the entry at from to to, rewriting FilePath and every
// finding's File field, and the file component of its LongID (and so its
// short ID). It is the caller's responsibility to have already
// verified the content hash still matches; Rename performs the move
// unconditionally once called.
func (c *Cache) Rename(from, to string) {
	entry, ok := c.Entries[from]
	if !ok {
		return
	}
	entry.FilePath = to
	for i := range entry.Findings {
		f := &entry.Findings[i]
		f.File = to
		if pkg, export, _, line, col, err := analyze.ParseLongID(f.LongID); err == nil {
			f.LongID = analyze.MakeLongID(pkg, export, to, line, col)
			f.ID = analyze.ShortID(f.LongID)
		}
	}
	delete(c.Entries, from)
	c.Entries[to] = entry
}

// GC deletes every entry whose file no longer exists under root, per the
// unconditional end-of-run sweep: branch switches, external deletes, and
// moves outside the tree all land here. Entry keys are root-relative.
func (c *Cache) GC(root string) (removed []string) {
	for path := range c.Entries {
		if _, err := os.Stat(filepath.Join(root, path)); os.IsNotExist(err) {
			removed = append(removed, path)
		}
	}
	sort.Strings(removed)
	for _, path := range removed {
		delete(c.Entries, path)
	}
	return removed
}

// Save atomically rewrites the cache file: write to a temp file in the same
// directory, then rename over the destination, so a crash mid-write never
// leaves a truncated cache.json behind.
func (c *Cache) Save() error {
	doc := document{Entries: c.Entries, CreatedAt: c.createdAt, DoxyVersion: c.version, ConfigHash: c.ConfigHash}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".cache-*.json.tmp")
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
	return os.Rename(tmpPath, c.path)
}
