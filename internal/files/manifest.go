package files

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"
)

// Ecosystems reported by Dependencies.
const (
	EcosystemGo         = "go"
	EcosystemJavaScript = "javascript"
	EcosystemPython     = "python"
)

// ManifestError is a dependency manifest that exists but could not be read.
type ManifestError struct {
	Path string
	Err  error
}

func (e *ManifestError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e *ManifestError) Unwrap() error { return e.Err }

// Dependencies reads the dependency manifests at the top of root and
// returns declared dependency names per ecosystem. Python uses
// requirements.txt, or pyproject.toml when there is none. JavaScript
// merges dependencies and devDependencies from package.json. Go lists
// the direct requirements of go.mod. Missing manifests are skipped.
func Dependencies(root string) (map[string][]string, []error) {
	deps := map[string][]string{}
	var errs []error
	read := func(name string, parse func([]byte) ([]string, error)) bool {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, &ManifestError{Path: name, Err: err})
			}
			return false
		}
		list, err := parse(data)
		if err != nil {
			errs = append(errs, &ManifestError{Path: name, Err: err})
			return true
		}
		return add(deps, ecosystemOf(name), list)
	}

	if !read("requirements.txt", parseRequirements) {
		read("pyproject.toml", parsePyproject)
	}
	read("package.json", parsePackageJSON)
	read("go.mod", parseGoMod)
	return deps, errs
}

func ecosystemOf(manifest string) string {
	switch manifest {
	case "package.json":
		return EcosystemJavaScript
	case "go.mod":
		return EcosystemGo
	}
	return EcosystemPython
}

func add(deps map[string][]string, eco string, list []string) bool {
	if len(list) == 0 {
		return false
	}
	deps[eco] = list
	return true
}

func parseRequirements(data []byte) ([]string, error) {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line, _, _ = strings.Cut(line, " #")
		line = strings.TrimSpace(line)
		// options such as -r and -e are not packages
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

func parsePyproject(data []byte) ([]string, error) {
	var doc struct {
		Project struct {
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := slices.Clone(doc.Project.Dependencies)
	for _, name := range sortedKeys(doc.Tool.Poetry.Dependencies) {
		if name != "python" {
			out = append(out, name)
		}
	}
	return out, nil
}

func parsePackageJSON(data []byte) ([]string, error) {
	var pkg struct {
		Dependencies    map[string]any `json:"dependencies"`
		DevDependencies map[string]any `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	out := sortedKeys(pkg.Dependencies)
	for _, name := range sortedKeys(pkg.DevDependencies) {
		if _, dup := pkg.Dependencies[name]; !dup {
			out = append(out, name)
		}
	}
	return out, nil
}

func parseGoMod(data []byte) ([]string, error) {
	f, err := modfile.ParseLax("go.mod", data, nil)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range f.Require {
		if !r.Indirect {
			out = append(out, r.Mod.Path)
		}
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
