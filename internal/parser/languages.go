package parser

import (
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Capture names shared by every query.
const (
	captureFunction = "function"
	captureClass    = "class"
	captureImport   = "import"
)

// grammar pairs a tree-sitter language with the query that captures its
// declarations. The query is compiled once on first use.
type grammar struct {
	lang  *sitter.Language
	query string

	once sync.Once
	q    *sitter.Query
	err  error
}

func (g *grammar) compiled() (*sitter.Query, error) {
	g.once.Do(func() {
		g.q, g.err = sitter.NewQuery([]byte(g.query), g.lang)
	})
	return g.q, g.err
}

const goQuery = `
(function_declaration name: (identifier) @function)
(method_declaration name: (field_identifier) @function)
(type_declaration (type_spec name: (type_identifier) @class))
(import_spec path: (_) @import)
`

const pythonQuery = `
(function_definition name: (identifier) @function)
(class_definition name: (identifier) @class)
(import_statement name: (dotted_name) @import)
(import_statement name: (aliased_import name: (dotted_name) @import))
(import_from_statement module_name: (_) @import)
`

const javascriptQuery = `
(function_declaration name: (identifier) @function)
(method_definition name: (property_identifier) @function)
(class_declaration name: (identifier) @class)
(import_statement source: (string) @import)
`

const typescriptQuery = `
(function_declaration name: (identifier) @function)
(method_definition name: (property_identifier) @function)
(class_declaration name: (_) @class)
(interface_declaration name: (_) @class)
(import_statement source: (string) @import)
`

const javaQuery = `
(method_declaration name: (identifier) @function)
(class_declaration name: (identifier) @class)
(interface_declaration name: (identifier) @class)
(import_declaration (scoped_identifier) @import)
`

const rustQuery = `
(function_item name: (identifier) @function)
(struct_item name: (type_identifier) @class)
(enum_item name: (type_identifier) @class)
(trait_item name: (type_identifier) @class)
(use_declaration argument: (_) @import)
`

const rubyQuery = `
(method name: (_) @function)
(singleton_method name: (_) @function)
(class name: (_) @class)
(module name: (_) @class)
`

const cQuery = `
(function_definition declarator: (function_declarator declarator: (identifier) @function))
(struct_specifier name: (type_identifier) @class)
(preproc_include path: (_) @import)
`

const cppQuery = `
(function_definition declarator: (function_declarator declarator: (_) @function))
(class_specifier name: (_) @class)
(struct_specifier name: (_) @class)
(preproc_include path: (_) @import)
`

// grammars is keyed by the language names assigned in files.Classify.
var grammars = map[string]*grammar{
	"go":         {lang: golang.GetLanguage(), query: goQuery},
	"python":     {lang: python.GetLanguage(), query: pythonQuery},
	"javascript": {lang: javascript.GetLanguage(), query: javascriptQuery},
	"jsx":        {lang: javascript.GetLanguage(), query: javascriptQuery},
	"typescript": {lang: typescript.GetLanguage(), query: typescriptQuery},
	"tsx":        {lang: tsx.GetLanguage(), query: typescriptQuery},
	"java":       {lang: java.GetLanguage(), query: javaQuery},
	"rust":       {lang: rust.GetLanguage(), query: rustQuery},
	"ruby":       {lang: ruby.GetLanguage(), query: rubyQuery},
	"c":          {lang: c.GetLanguage(), query: cQuery},
	"cpp":        {lang: cpp.GetLanguage(), query: cppQuery},
}
