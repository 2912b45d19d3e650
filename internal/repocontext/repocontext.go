// Package repocontext discovers a project's dependency versions, detected
// frameworks, and type-compiler path aliases, and reduces them to a single
// canonicalized hash that the incremental engine uses for cache
// invalidation.
package repocontext

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/sirupsen/logrus"

	"github.com/phobologic/doxy/internal/errs"
)

// Confidence is how a DependencyInfo's resolvedVersion was established.
type Confidence string

const (
	ConfidenceLockfile Confidence = "lockfile"
	ConfidenceManifest Confidence = "manifest"
	ConfidenceInferred Confidence = "inferred"
)

// DependencyInfo is one project dependency's version facts.
type DependencyInfo struct {
	ResolvedVersion string // "" if no lockfile pinned it
	DeclaredRange   string
}

// DetectedFramework is a framework the repo context builder recognized from
// the dependency set.
type DetectedFramework struct {
	ID         string
	Name       string
	Version    string
	Confidence Confidence
}

// RepoContext is the full per-run snapshot fed to the Import Resolver and
// Analyzer.
type RepoContext struct {
	Root           string
	PackageManager string
	Dependencies   map[string]DependencyInfo
	Frameworks     []DetectedFramework
	PathAliases    map[string]string
	JSXMode        string
	ContextHash    string
}

type packageManifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

type npmLockfile struct {
	Packages map[string]struct {
		Version string `json:"version"`
	} `json:"packages"`
}

// tsconfig is the subset of tsconfig.json/jsconfig.json this component
// cares about.
type tsconfig struct {
	CompilerOptions struct {
		BaseURL string              `json:"baseUrl"`
		Paths   map[string][]string `json:"paths"`
		JSX     string              `json:"jsx"`
	} `json:"compilerOptions"`
}

// Build assembles a RepoContext for the project rooted at root. A missing
// lockfile is a soft condition: dependency resolution degrades to
// declaredRange only, never an error. An unreadable package.json is a hard
// *errs.ProjectError, since without it there is no dependency set to
// analyze at all.
func Build(root string, frameworkOverrides map[string]string, pathAliasOverrides map[string]string, log *logrus.Logger) (*RepoContext, error) {
	manifestPath := filepath.Join(root, "package.json")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, errs.Project("reading package.json", err)
	}
	var manifest packageManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, errs.Project("parsing package.json", err)
	}

	declared := map[string]string{}
	for name, rng := range manifest.Dependencies {
		declared[name] = rng
	}
	for name, rng := range manifest.DevDependencies {
		if _, ok := declared[name]; !ok {
			declared[name] = rng
		}
	}

	pm, resolved, lockConfidence := resolveVersions(root, declared, log)

	deps := make(map[string]DependencyInfo, len(declared))
	for name, rng := range declared {
		deps[name] = DependencyInfo{ResolvedVersion: resolved[name], DeclaredRange: rng}
	}

	frameworks := detectFrameworks(deps, lockConfidence, frameworkOverrides)

	// A manual framework override pins the version the analyzer sees, not
	// just the detection label — otherwise the option would be cosmetic.
	for _, f := range frameworks {
		if f.Confidence != ConfidenceInferred {
			continue
		}
		if dep, ok := deps[frameworkPackage(f.ID)]; ok {
			dep.ResolvedVersion = f.Version
			deps[frameworkPackage(f.ID)] = dep
		}
	}

	aliases := loadPathAliases(root)
	for prefix, target := range pathAliasOverrides {
		aliases[prefix] = target
	}

	jsxMode := loadJSXMode(root)

	ctx := &RepoContext{
		Root:           root,
		PackageManager: pm,
		Dependencies:   deps,
		Frameworks:     frameworks,
		PathAliases:    aliases,
		JSXMode:        jsxMode,
	}
	ctx.ContextHash = hashContext(ctx)

	if log != nil {
		log.WithFields(logrus.Fields{
			"packageManager": pm,
			"dependencies":   len(deps),
			"frameworks":     len(frameworks),
		}).Info("repocontext: built")
	}
	return ctx, nil
}

// resolveVersions tries, in order, an npm-style package-lock.json, then a
// pnpm-lock.yaml, then a yarn.lock. The first one found wins; none found
// means every dependency falls back to declaredRange-only resolution.
func resolveVersions(root string, declared map[string]string, log *logrus.Logger) (packageManager string, resolved map[string]string, confidence Confidence) {
	resolved = map[string]string{}

	if raw, err := os.ReadFile(filepath.Join(root, "package-lock.json")); err == nil {
		var lock npmLockfile
		if json.Unmarshal(raw, &lock) == nil {
			for pkgPath, entry := range lock.Packages {
				name := strings.TrimPrefix(pkgPath, "node_modules/")
				if name == "" {
					continue
				}
				if _, wanted := declared[name]; wanted {
					resolved[name] = entry.Version
				}
			}
			return "npm", resolved, ConfidenceLockfile
		}
	}

	if _, err := os.Stat(filepath.Join(root, "pnpm-lock.yaml")); err == nil {
		if log != nil {
			log.Debug("repocontext: pnpm-lock.yaml present but version extraction is not implemented; falling back to declaredRange")
		}
		return "pnpm", resolved, ConfidenceManifest
	}

	if _, err := os.Stat(filepath.Join(root, "yarn.lock")); err == nil {
		if log != nil {
			log.Debug("repocontext: yarn.lock present but version extraction is not implemented; falling back to declaredRange")
		}
		return "yarn", resolved, ConfidenceManifest
	}

	return "unknown", resolved, ConfidenceManifest
}

var frameworkCandidates = []struct{ id, pkg, name string }{
	{"react", "react", "React"},
	{"nextjs", "next", "Next.js"},
	{"vue", "vue", "Vue"},
}

func frameworkPackage(id string) string {
	for _, c := range frameworkCandidates {
		if c.id == id {
			return c.pkg
		}
	}
	return id
}

func detectFrameworks(deps map[string]DependencyInfo, lockConfidence Confidence, overrides map[string]string) []DetectedFramework {
	candidates := frameworkCandidates

	var out []DetectedFramework
	for _, c := range candidates {
		dep, ok := deps[c.pkg]
		if !ok {
			continue
		}
		version := dep.ResolvedVersion
		confidence := lockConfidence
		if version == "" {
			version = dep.DeclaredRange
			confidence = ConfidenceManifest
		}
		if override, ok := overrides[c.id]; ok {
			version = override
			confidence = ConfidenceInferred
		}
		out = append(out, DetectedFramework{ID: c.id, Name: c.name, Version: version, Confidence: confidence})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func loadPathAliases(root string) map[string]string {
	aliases := map[string]string{}
	for _, name := range []string{"tsconfig.json", "jsconfig.json"} {
		raw, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		var cfg tsconfig
		if json.Unmarshal(raw, &cfg) != nil {
			continue
		}
		base := cfg.CompilerOptions.BaseURL
		if base == "" {
			base = "."
		}
		for prefix, targets := range cfg.CompilerOptions.Paths {
			if len(targets) == 0 {
				continue
			}
			prefix = strings.TrimSuffix(prefix, "/*")
			target := strings.TrimSuffix(targets[0], "/*")
			aliases[prefix] = filepath.Join(base, target)
		}
		break
	}
	return aliases
}

func loadJSXMode(root string) string {
	for _, name := range []string{"tsconfig.json", "jsconfig.json"} {
		raw, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		var cfg tsconfig
		if json.Unmarshal(raw, &cfg) != nil {
			continue
		}
		if cfg.CompilerOptions.JSX != "" {
			return cfg.CompilerOptions.JSX
		}
	}
	return ""
}

// hashContext computes SHA-256 over a canonicalized (sorted-key) rendering
// of ctx, so that dependency-map ordering or Go map iteration never
// perturbs the hash.
func hashContext(ctx *RepoContext) string {
	var b strings.Builder
	b.WriteString("root=" + ctx.Root + "\n")
	b.WriteString("packageManager=" + ctx.PackageManager + "\n")
	b.WriteString("jsxMode=" + ctx.JSXMode + "\n")

	depNames := make([]string, 0, len(ctx.Dependencies))
	for name := range ctx.Dependencies {
		depNames = append(depNames, name)
	}
	sort.Strings(depNames)
	for _, name := range depNames {
		d := ctx.Dependencies[name]
		fmt.Fprintf(&b, "dep=%s resolved=%s declared=%s\n", name, d.ResolvedVersion, d.DeclaredRange)
	}

	frameworks := append([]DetectedFramework(nil), ctx.Frameworks...)
	sort.Slice(frameworks, func(i, j int) bool { return frameworks[i].ID < frameworks[j].ID })
	for _, f := range frameworks {
		fmt.Fprintf(&b, "framework=%s version=%s confidence=%s\n", f.ID, f.Version, f.Confidence)
	}

	aliasKeys := make([]string, 0, len(ctx.PathAliases))
	for k := range ctx.PathAliases {
		aliasKeys = append(aliasKeys, k)
	}
	sort.Strings(aliasKeys)
	for _, k := range aliasKeys {
		fmt.Fprintf(&b, "alias=%s target=%s\n", k, ctx.PathAliases[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ResolveVersion answers "what version of pkg is installed" per the
// fallback rule: resolvedVersion when a lockfile pinned one, else the
// declared range itself (semverx.CoerceVersion handles sloppy ranges).
func (c *RepoContext) ResolveVersion(pkg string) (string, bool) {
	dep, ok := c.Dependencies[pkg]
	if !ok {
		return "", false
	}
	if dep.ResolvedVersion != "" {
		return dep.ResolvedVersion, true
	}
	return dep.DeclaredRange, true
}

var skipDirs = map[string]struct{}{
	"node_modules": {}, ".git": {}, "build": {}, "dist": {}, ".next": {}, "coverage": {},
}

// DiscoverSourceFiles walks root for candidate source files matching
// isSourceExt. When a git repository is present, git's own tracked+untracked
// listing (which respects every ignore source) gates the walk; manual
// .gitignore matching is the fallback for trees with no repository to ask.
func DiscoverSourceFiles(root string, isSourceExt func(ext string) bool) ([]string, error) {
	gitFiles := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if gitFiles != nil {
			if _, ok := gitFiles[rel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		if !isSourceExt(filepath.Ext(name)) {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, errs.Project("discovering source files", err)
	}
	sort.Strings(out)
	return out, nil
}

// gitLsFiles returns the set of paths git considers part of the working
// tree (tracked plus untracked-unignored), or nil when root is not a git
// repository or git itself fails — the caller then degrades to manual
// .gitignore matching.
func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	raw, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(raw), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
