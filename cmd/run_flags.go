package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/codeloom-cli/internal/config"
	"github.com/KaramelBytes/codeloom-cli/internal/files"
	"github.com/KaramelBytes/codeloom-cli/internal/parser"
	"github.com/KaramelBytes/codeloom-cli/internal/pipeline"
	"github.com/KaramelBytes/codeloom-cli/internal/prompt"
	"github.com/KaramelBytes/codeloom-cli/internal/tokens"
)

// runFlags are shared by scan and generate.
type runFlags struct {
	model        string
	provider     string
	maxTokens    int
	reserved     int
	completion   int
	temp         float64
	workers      int
	excerpt      int
	exclude      []string
	includeTests bool
	noGitignore  bool
	tokenizer    string
}

func addRunFlags(c *cobra.Command, f *runFlags) {
	fl := c.Flags()
	fl.StringVar(&f.model, "model", "", "model name (default from config or the provider's cheap tier)")
	fl.StringVar(&f.provider, "provider", "", "provider: openrouter|openai|openai-sdk|gemini|ollama")
	fl.IntVar(&f.maxTokens, "max-tokens-per-request", 0, "token budget per request (default from config, 4000)")
	fl.IntVar(&f.reserved, "reserved-tokens", 0, "tokens reserved for prompt scaffolding (default from config, 500)")
	fl.IntVar(&f.completion, "completion-tokens", 0, "max tokens for each generated section (default from config, 1500)")
	fl.Float64Var(&f.temp, "temp", 0, "sampling temperature (default from config, 0.3)")
	fl.IntVar(&f.workers, "workers", 0, "parallel workers for extraction and generation (default from config, 4)")
	fl.IntVar(&f.excerpt, "max-excerpt-chars", 0, "max characters kept per file excerpt (default from config, 6000)")
	fl.StringSliceVar(&f.exclude, "exclude", nil, "extra ignore pattern, gitignore style (repeatable)")
	fl.BoolVar(&f.includeTests, "include-tests", false, "include test files and directories")
	fl.BoolVar(&f.noGitignore, "no-gitignore", false, "do not apply the root .gitignore")
	fl.StringVar(&f.tokenizer, "tokenizer", "auto", "token counting: auto|tiktoken|heuristic")
}

// effectiveConfig copies the loaded config and applies the flags set on this
// invocation, then validates the result.
func effectiveConfig(c *cobra.Command, f *runFlags) (*cfgpkg.Global, error) {
	base, err := ensureConfig()
	if err != nil {
		return nil, err
	}
	out := *base
	out.Exclude = append([]string(nil), base.Exclude...)

	fl := c.Flags()
	if fl.Changed("provider") {
		out.DefaultProvider = f.provider
	}
	if fl.Changed("max-tokens-per-request") {
		out.MaxTokensPerRequest = f.maxTokens
	}
	if fl.Changed("reserved-tokens") {
		out.ReservedTokens = f.reserved
	}
	if fl.Changed("completion-tokens") {
		out.CompletionTokens = f.completion
	}
	if fl.Changed("temp") {
		out.Temperature = f.temp
	}
	if fl.Changed("workers") {
		out.Workers = f.workers
	}
	if fl.Changed("max-excerpt-chars") {
		out.MaxExcerptChars = f.excerpt
	}
	if fl.Changed("exclude") {
		out.Exclude = append(out.Exclude, f.exclude...)
	}
	if fl.Changed("include-tests") {
		out.IncludeTests = f.includeTests
	}
	if fl.Changed("no-gitignore") {
		out.RespectGitignore = !f.noGitignore
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// explicitModel returns --model only when it was set on this invocation.
func explicitModel(c *cobra.Command, f *runFlags) string {
	if c.Flags().Changed("model") {
		return f.model
	}
	return ""
}

// newAccountant resolves --tokenizer. "auto" falls back to the heuristic
// when no BPE encoding can be loaded; "tiktoken" makes that an error.
func newAccountant(kind, model string) (tokens.Accountant, error) {
	switch kind {
	case "", "auto":
		return tokens.ForModel(model), nil
	case "heuristic":
		return tokens.Heuristic{}, nil
	case "tiktoken":
		tk, err := tokens.NewTiktoken(model)
		if err != nil {
			return nil, fmt.Errorf("--tokenizer tiktoken: %w", err)
		}
		return tokens.Cached(tk, 4096), nil
	default:
		return nil, fmt.Errorf("unknown --tokenizer %q (want auto|tiktoken|heuristic)", kind)
	}
}

func pipelineOptions(root string, c *cfgpkg.Global, model string, acc tokens.Accountant) pipeline.Options {
	return pipeline.Options{
		Root: root,
		Walk: files.Options{
			Exclude:          c.Exclude,
			IncludeTests:     c.IncludeTests,
			RespectGitignore: c.RespectGitignore,
		},
		Extract: parser.Options{MaxExcerptChars: c.MaxExcerptChars},
		Budget: prompt.Budget{
			MaxTokens:      c.MaxTokensPerRequest,
			ReservedTokens: c.ReservedTokens,
			Model:          model,
		},
		Accountant:       acc,
		Model:            model,
		CompletionTokens: c.CompletionTokens,
		Temperature:      c.Temperature,
		Workers:          c.Workers,
		Logger:           logger,
	}
}
