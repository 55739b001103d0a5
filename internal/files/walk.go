// Package files discovers candidate source files beneath a root directory.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
)

// ErrRootUnreadable is returned when the walk root is missing, is not a
// directory, or cannot be listed.
var ErrRootUnreadable = errors.New("root is not a readable directory")

// Entry is one discovered file. Path is relative to the root and uses
// forward slashes.
type Entry struct {
	Path     string
	AbsPath  string
	Category Category
	Language string
	Size     int64
}

// Options control which paths are skipped.
type Options struct {
	Exclude          []string
	IncludeTests     bool
	RespectGitignore bool
}

// Walker yields files under a root in lexical depth-first order.
type Walker struct {
	root   string
	filter *Filter
}

// NewWalker validates the root and compiles the exclusion set: defaults,
// test patterns unless IncludeTests, caller patterns and the root .gitignore.
func NewWalker(root string, opts Options) (*Walker, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootUnreadable, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootUnreadable, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootUnreadable, root)
	}
	if _, err := os.ReadDir(abs); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootUnreadable, root, err)
	}

	patterns := append([]string{}, DefaultExcludes...)
	if !opts.IncludeTests {
		patterns = append(patterns, TestExcludes...)
	}
	patterns = append(patterns, opts.Exclude...)
	if opts.RespectGitignore {
		lines, err := ReadIgnoreFile(filepath.Join(abs, ".gitignore"))
		if err != nil {
			return nil, fmt.Errorf("read .gitignore: %w", err)
		}
		patterns = append(patterns, lines...)
	}
	f, err := NewFilter(patterns)
	if err != nil {
		return nil, err
	}
	return &Walker{root: abs, filter: f}, nil
}

// Root returns the absolute walk root.
func (w *Walker) Root() string { return w.root }

// Walk returns a lazy sequence of entries. Each call starts a fresh
// traversal. A directory that cannot be read is reported as an entry with
// a non-nil error and the walk moves on. Directory symlinks are followed;
// each real directory and file is visited at most once.
func (w *Walker) Walk() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		st := &walkState{
			dirs:  make(map[string]struct{}),
			files: make(map[string]struct{}),
			yield: yield,
		}
		w.walkDir(st, w.root, "")
	}
}

type walkState struct {
	dirs  map[string]struct{}
	files map[string]struct{}
	yield func(Entry, error) bool
}

func (w *Walker) walkDir(st *walkState, abs, rel string) bool {
	shown := rel
	if shown == "" {
		shown = "."
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return st.yield(Entry{Path: shown, AbsPath: abs}, fmt.Errorf("resolve %s: %w", shown, err))
	}
	if _, seen := st.dirs[real]; seen {
		return true
	}
	st.dirs[real] = struct{}{}

	des, err := os.ReadDir(abs)
	if err != nil {
		if !st.yield(Entry{Path: shown, AbsPath: abs}, fmt.Errorf("read dir %s: %w", shown, err)) {
			return false
		}
		// os.ReadDir returns what it managed to read before failing.
	}

	for _, de := range des {
		childRel := path.Join(rel, de.Name())
		childAbs := filepath.Join(abs, de.Name())

		var info fs.FileInfo
		if de.Type()&fs.ModeSymlink != 0 {
			info, err = os.Stat(childAbs)
		} else {
			info, err = de.Info()
		}
		if err != nil {
			if !st.yield(Entry{Path: childRel, AbsPath: childAbs}, fmt.Errorf("stat %s: %w", childRel, err)) {
				return false
			}
			continue
		}

		if w.filter.Match(childRel, info.IsDir()) {
			continue
		}
		if info.IsDir() {
			if !w.walkDir(st, childAbs, childRel) {
				return false
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		realFile := filepath.Join(real, de.Name())
		if de.Type()&fs.ModeSymlink != 0 {
			if r, err := filepath.EvalSymlinks(childAbs); err == nil {
				realFile = r
			}
		}
		if _, seen := st.files[realFile]; seen {
			continue
		}
		st.files[realFile] = struct{}{}

		cat, lang := Classify(childRel)
		if !st.yield(Entry{
			Path:     childRel,
			AbsPath:  childAbs,
			Category: cat,
			Language: lang,
			Size:     info.Size(),
		}, nil) {
			return false
		}
	}
	return true
}
