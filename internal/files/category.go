package files

import (
	"path"
	"strings"
)

// Category is the coarse kind of a discovered file. It selects the
// extraction strategy.
type Category string

const (
	CategoryCode        Category = "code"
	CategoryMarkup      Category = "markup"
	CategoryPlaintext   Category = "plaintext"
	CategoryUnsupported Category = "unsupported"
)

// Supported reports whether files of this category produce a summary.
func (c Category) Supported() bool {
	return c == CategoryCode || c == CategoryMarkup || c == CategoryPlaintext
}

type kind struct {
	language string
	category Category
}

var byExtension = map[string]kind{
	".py":    {"python", CategoryCode},
	".js":    {"javascript", CategoryCode},
	".mjs":   {"javascript", CategoryCode},
	".cjs":   {"javascript", CategoryCode},
	".jsx":   {"jsx", CategoryCode},
	".ts":    {"typescript", CategoryCode},
	".tsx":   {"tsx", CategoryCode},
	".java":  {"java", CategoryCode},
	".c":     {"c", CategoryCode},
	".h":     {"c", CategoryCode},
	".cpp":   {"cpp", CategoryCode},
	".cc":    {"cpp", CategoryCode},
	".hpp":   {"cpp", CategoryCode},
	".cs":    {"csharp", CategoryCode},
	".rb":    {"ruby", CategoryCode},
	".go":    {"go", CategoryCode},
	".rs":    {"rust", CategoryCode},
	".php":   {"php", CategoryCode},
	".swift": {"swift", CategoryCode},
	".kt":    {"kotlin", CategoryCode},
	".scala": {"scala", CategoryCode},
	".r":     {"r", CategoryCode},
	".sql":   {"sql", CategoryCode},
	".sh":    {"bash", CategoryCode},

	".md":       {"markdown", CategoryMarkup},
	".markdown": {"markdown", CategoryMarkup},
	".html":     {"html", CategoryMarkup},
	".xml":      {"xml", CategoryMarkup},
	".yml":      {"yaml", CategoryMarkup},
	".yaml":     {"yaml", CategoryMarkup},
	".json":     {"json", CategoryMarkup},
	".toml":     {"toml", CategoryMarkup},
	".ini":      {"ini", CategoryMarkup},
	".cfg":      {"ini", CategoryMarkup},
	".css":      {"css", CategoryMarkup},
	".scss":     {"scss", CategoryMarkup},
	".sass":     {"sass", CategoryMarkup},

	".txt": {"text", CategoryPlaintext},
	".rst": {"rst", CategoryPlaintext},
}

// Well-known extensionless names, matched case-insensitively.
var byBaseName = map[string]kind{
	"readme":     {"text", CategoryPlaintext},
	"license":    {"text", CategoryPlaintext},
	"changelog":  {"text", CategoryPlaintext},
	"makefile":   {"makefile", CategoryPlaintext},
	"dockerfile": {"dockerfile", CategoryPlaintext},
	"go.mod":     {"gomod", CategoryPlaintext},
}

// Classify returns the category and language for a path, judged by its
// extension or well-known base name. Content sniffing happens later.
func Classify(p string) (Category, string) {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	ext := strings.ToLower(path.Ext(base))
	if k, ok := byExtension[ext]; ok {
		return k.category, k.language
	}
	if k, ok := byBaseName[strings.ToLower(base)]; ok {
		return k.category, k.language
	}
	return CategoryUnsupported, ""
}
