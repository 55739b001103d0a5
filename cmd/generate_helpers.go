package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/KaramelBytes/codeloom-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/codeloom-cli/internal/config"
	"github.com/KaramelBytes/codeloom-cli/internal/pipeline"
	"github.com/KaramelBytes/codeloom-cli/internal/utils"
)

const fallbackModel = "openai/gpt-4o-mini"

type runtimeOptions struct {
	ProviderFlag string
	OllamaHost   string
	BaseURL      string
}

// resolveProvider maps the flag, then config, onto a registered provider name.
func resolveProvider(cfg *cfgpkg.Global, flag string) string {
	name := strings.ToLower(strings.TrimSpace(flag))
	if name == "" && cfg != nil {
		name = strings.ToLower(strings.TrimSpace(cfg.DefaultProvider))
	}
	switch name {
	case "":
		return ai.ProviderOpenRouter
	case "local":
		return ai.ProviderOllama
	case "google":
		return ai.ProviderGemini
	}
	return name
}

// apiKeyFor prefers the provider's environment variable over config api_key.
func apiKeyFor(provider string, cfg *cfgpkg.Global) string {
	var envs []string
	switch provider {
	case ai.ProviderOpenRouter:
		envs = []string{"OPENROUTER_API_KEY"}
	case ai.ProviderOpenAI, ai.ProviderOpenAISDK:
		envs = []string{"OPENAI_API_KEY"}
	case ai.ProviderGemini:
		envs = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	}
	for _, e := range envs {
		if v := strings.TrimSpace(os.Getenv(e)); v != "" {
			return v
		}
	}
	if cfg != nil {
		return cfg.APIKey
	}
	return ""
}

func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	httpTimeout := 60 * time.Second
	if cfg != nil && cfg.HTTPTimeoutSec > 0 {
		httpTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
	}

	providerName := resolveProvider(cfg, opts.ProviderFlag)
	if !slices.Contains(ai.Providers(), providerName) {
		return nil, providerName, fmt.Errorf("provider not supported: %s (use openrouter|openai|openai-sdk|gemini|ollama)", providerName)
	}
	apiKey := apiKeyFor(providerName, cfg)
	if err := ai.RequireAPIKey(providerName, apiKey); err != nil {
		return nil, providerName, err
	}

	rc := ai.RuntimeConfig{
		HTTPTimeout: httpTimeout,
		APIKey:      apiKey,
		BaseURL:     strings.TrimSpace(opts.BaseURL),
	}
	if providerName == ai.ProviderOllama {
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" && cfg != nil {
			host = cfg.OllamaHost
		}
		if host == "" {
			host = ai.DefaultOllamaHost
		}
		rc.Host = host
	}

	client, _ := ai.GetRuntime(providerName, rc)
	return client, providerName, nil
}

func buildPolicy(cfg *cfgpkg.Global) ai.Policy {
	p := ai.DefaultPolicy()
	if cfg == nil {
		return p
	}
	if cfg.RetryMaxAttempts > 0 {
		p.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryBaseDelayMs > 0 {
		p.Backoff.Base = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
	}
	if cfg.RetryMaxDelayMs > 0 {
		p.Backoff.Max = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
	}
	return p
}

// selectModel: explicit flag, then a configured model, then the provider's
// cheap tier. The stock OpenRouter default is not carried to other providers.
func selectModel(cfg *cfgpkg.Global, provider, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if cfg != nil && cfg.DefaultModel != "" {
		if cfg.DefaultModel != fallbackModel || provider == ai.ProviderOpenRouter {
			return cfg.DefaultModel
		}
	}
	if name, ok := ai.RecommendModel(provider, "cheap"); ok {
		return name
	}
	return fallbackModel
}

func enforceBudget(estCost, limit float64) error {
	if limit > 0 && estCost > 0 && estCost > limit {
		return fmt.Errorf("✗ Estimated cost ~$%.4f exceeds budget limit ~$%.4f", estCost, limit)
	}
	return nil
}

// explainError turns typed provider errors into actionable messages.
func explainError(err error, provider, model string) error {
	var (
		authErr *ai.AuthError
		rlErr   *ai.RateLimitError
		nfErr   *ai.ModelNotFoundError
		brErr   *ai.BadRequestError
		ctxErr  *ai.ContextLengthError
		qErr    *ai.QuotaExceededError
		sErr    *ai.ServerError
		unreach *ai.UnreachableError
	)
	switch {
	case errors.Is(err, ai.ErrMissingAPIKey):
		return fmt.Errorf("no API key for %s: export the provider key or run 'codeloom config set api_key <key>': %w", provider, err)
	case errors.As(err, &unreach):
		if provider == ai.ProviderOllama {
			return fmt.Errorf("Ollama not reachable at %s. Ensure Ollama is running and the host is correct (CODELOOM_OLLAMA_HOST or config 'ollama_host'): %w", unreach.Host, err)
		}
		return fmt.Errorf("endpoint unreachable. Check your network and provider settings: %w", err)
	case errors.As(err, &authErr):
		return fmt.Errorf("authentication failed for %s: check the API key (~/.codeloom/config.yaml or environment): %w", provider, err)
	case errors.As(err, &nfErr):
		if provider == ai.ProviderOllama {
			return fmt.Errorf("local model not available (%s). Install it with 'ollama pull %s' or choose another model: %w", model, model, err)
		}
		return fmt.Errorf("model not found (%s). Verify the name with 'codeloom models show': %w", model, err)
	case errors.As(err, &ctxErr):
		return fmt.Errorf("request exceeds the context window of %s. Lower --max-tokens-per-request or --completion-tokens: %w", model, err)
	case errors.As(err, &brErr):
		return fmt.Errorf("request rejected. Try a smaller --max-tokens-per-request: %w", err)
	case errors.As(err, &qErr):
		return fmt.Errorf("quota/billing issue. Check your provider account: %w", err)
	case errors.As(err, &rlErr):
		if rlErr.RetryAfter > 0 {
			return fmt.Errorf("rate limited, try again in ~%ds: %w", int(rlErr.RetryAfter.Seconds()), err)
		}
		return fmt.Errorf("rate limited by provider, please retry: %w", err)
	case errors.As(err, &sErr):
		return fmt.Errorf("provider appears unavailable (server error). Please retry later: %w", err)
	}
	return err
}

type outputOptions struct {
	JSON         bool
	Quiet        bool
	Provider     string
	Model        string
	OutputPath   string
	OutputFormat string
	Writer       io.Writer
}

type jsonReport struct {
	RunID       string                `json:"run_id"`
	Project     string                `json:"project"`
	Provider    string                `json:"provider"`
	Model       string                `json:"model"`
	Batches     int                   `json:"batches"`
	Files       int                   `json:"files"`
	Unsupported []string              `json:"unsupported,omitempty"`
	Partial     bool                  `json:"partial,omitempty"`
	Usage       ai.Usage              `json:"usage"`
	Diagnostics []pipeline.Diagnostic `json:"diagnostics"`
	Content     string                `json:"content"`
}

func newReport(res *pipeline.Result, provider, model string) jsonReport {
	diags := res.Diagnostics
	if diags == nil {
		diags = []pipeline.Diagnostic{}
	}
	return jsonReport{
		RunID:       res.RunID.String(),
		Project:     res.Project.Name,
		Provider:    provider,
		Model:       model,
		Batches:     len(res.Batches),
		Files:       res.Project.TotalFiles,
		Unsupported: res.Unsupported,
		Partial:     res.Partial,
		Usage:       res.Usage,
		Diagnostics: diags,
		Content:     res.Document.Text,
	}
}

// formatAndWriteOutput saves the document to OutputPath (unless empty) and
// prints either a JSON report or a short summary to Writer.
func formatAndWriteOutput(res *pipeline.Result, opts outputOptions) error {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	if opts.OutputPath != "" {
		var data []byte
		switch opts.OutputFormat {
		case "", "text", "markdown", "md":
			data = []byte(res.Document.Text)
		case "json":
			b, err := utils.PrettyJSON(newReport(res, opts.Provider, opts.Model))
			if err != nil {
				return err
			}
			data = append(b, '\n')
		default:
			return fmt.Errorf("unsupported --format: %s (use text|markdown|json)", opts.OutputFormat)
		}
		if err := utils.SafeWriteFile(opts.OutputPath, data); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}

	if opts.JSON {
		b, err := utils.PrettyJSON(newReport(res, opts.Provider, opts.Model))
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
		return nil
	}
	if opts.OutputPath == "" {
		fmt.Fprint(w, res.Document.Text)
		return nil
	}
	if opts.Quiet {
		return nil
	}
	printDiagnostics(w, res.Diagnostics)
	status := "✓"
	if res.Partial {
		status = "⚠ Partial:"
	}
	fmt.Fprintf(w, "%s %d sections (%d unavailable) from %d files; tokens used: %d\n",
		status, len(res.Document.Sections), res.Document.Placeholders(), res.Project.TotalFiles, res.Usage.TotalTokens)
	fmt.Fprintf(w, "💾 Saved documentation to %s\n", opts.OutputPath)
	return nil
}

func printDiagnostics(w io.Writer, ds []pipeline.Diagnostic) {
	for _, d := range ds {
		glyph := "⚠"
		if d.Severity == pipeline.SeverityError {
			glyph = "✗"
		}
		fmt.Fprintf(w, "%s %s\n", glyph, d)
	}
}
