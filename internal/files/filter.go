package files

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultExcludes are always applied: VCS metadata, dependency and build
// directories, generated artifacts, binaries and secrets.
var DefaultExcludes = []string{
	".git/", ".hg/", ".svn/",
	"node_modules/", "vendor/", "__pycache__/",
	"venv/", ".venv/", "env/",
	"dist/", "build/", "coverage/",
	".idea/", ".vscode/",
	"migrations/", "static/", "media/", "uploads/",
	"*.pyc", "*.pyo", "*.class", "*.o", "*.a", "*.so", "*.dll", "*.dylib", "*.exe",
	"*.min.js", "*.min.css", "*.map",
	"*.log", "*.sqlite*", "*.db",
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.ico", "*.pdf",
	"*.zip", "*.tar", "*.gz", "*.tgz", "*.jar",
	".env*", ".DS_Store", ".coverage",
	"package-lock.json", "yarn.lock", "go.sum",
}

// TestExcludes drop test trees and test files unless tests are requested.
var TestExcludes = []string{
	"test/", "tests/", "__tests__/",
	"*_test.go", "*_test.py", "test_*.py",
	"*.test.js", "*.test.ts", "*.spec.js", "*.spec.ts",
}

type compiledPattern struct {
	raw      string
	globs    []glob.Glob
	dirGlobs []glob.Glob // match the directory itself for "dir/**" patterns
	dirOnly  bool
	base     bool // matched against the base name at any depth
}

// Filter decides whether a slash-separated path relative to the walk root is
// excluded. Patterns follow .gitignore conventions: a pattern without a slash
// matches the base name at any depth, a leading slash anchors it at the root,
// and a trailing slash restricts it to directories.
type Filter struct {
	patterns []compiledPattern
}

// NewFilter compiles patterns. Blank lines, comments and negations are skipped.
func NewFilter(patterns []string) (*Filter, error) {
	f := &Filter{}
	for _, raw := range patterns {
		p := strings.TrimSpace(raw)
		if p == "" || strings.HasPrefix(p, "#") || strings.HasPrefix(p, "!") {
			continue
		}
		cp := compiledPattern{raw: raw}
		if strings.HasSuffix(p, "/") {
			cp.dirOnly = true
			p = strings.TrimRight(p, "/")
		}
		anchored := strings.HasPrefix(p, "/")
		p = strings.TrimPrefix(p, "/")
		if p == "" {
			continue
		}
		cp.base = !anchored && !strings.Contains(p, "/")

		// "**/x" also matches x at the root, where gobwas needs a separator.
		forms := []string{p}
		if rest, ok := strings.CutPrefix(p, "**/"); ok && rest != "" {
			forms = append(forms, rest)
		}
		for _, form := range forms {
			g, err := glob.Compile(form, '/')
			if err != nil {
				return nil, fmt.Errorf("compile pattern %q: %w", raw, err)
			}
			cp.globs = append(cp.globs, g)
			if prefix, ok := strings.CutSuffix(form, "/**"); ok && prefix != "" && prefix != "**" {
				dg, err := glob.Compile(prefix, '/')
				if err != nil {
					return nil, fmt.Errorf("compile pattern %q: %w", raw, err)
				}
				cp.dirGlobs = append(cp.dirGlobs, dg)
			}
		}
		f.patterns = append(f.patterns, cp)
	}
	return f, nil
}

// Match reports whether rel should be skipped. rel is relative to the root
// and uses forward slashes.
func (f *Filter) Match(rel string, isDir bool) bool {
	if f == nil || rel == "" || rel == "." {
		return false
	}
	base := path.Base(rel)
	for _, cp := range f.patterns {
		if cp.dirOnly && !isDir {
			continue
		}
		subject := rel
		if cp.base {
			subject = base
		}
		if matchAny(cp.globs, subject) || (isDir && matchAny(cp.dirGlobs, rel)) {
			return true
		}
	}
	return false
}

func matchAny(gs []glob.Glob, s string) bool {
	for _, g := range gs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// ReadIgnoreFile returns the pattern lines of a .gitignore-style file. A
// missing file yields no patterns and no error.
func ReadIgnoreFile(p string) ([]string, error) {
	fh, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer fh.Close()

	var out []string
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}
