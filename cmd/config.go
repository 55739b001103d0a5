package cmd

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/codeloom-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/codeloom-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set codeloom configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ensureConfig()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "api_key: %s\n", mask(c.APIKey))
		fmt.Fprintf(w, "default_model: %s\n", c.DefaultModel)
		fmt.Fprintf(w, "default_provider: %s\n", c.DefaultProvider)
		fmt.Fprintf(w, "temperature: %.3f\n", c.Temperature)
		fmt.Fprintf(w, "max_tokens_per_request: %d\n", c.MaxTokensPerRequest)
		fmt.Fprintf(w, "reserved_tokens: %d\n", c.ReservedTokens)
		fmt.Fprintf(w, "completion_tokens: %d\n", c.CompletionTokens)
		fmt.Fprintf(w, "workers: %d\n", c.Workers)
		fmt.Fprintf(w, "exclude: [%s]\n", strings.Join(c.Exclude, ", "))
		fmt.Fprintf(w, "include_tests: %t\n", c.IncludeTests)
		fmt.Fprintf(w, "respect_gitignore: %t\n", c.RespectGitignore)
		fmt.Fprintf(w, "max_excerpt_chars: %d\n", c.MaxExcerptChars)
		fmt.Fprintf(w, "output: %s\n", c.Output)
		fmt.Fprintf(w, "http_timeout_sec: %d\n", c.HTTPTimeoutSec)
		fmt.Fprintf(w, "retry_max_attempts: %d\n", c.RetryMaxAttempts)
		fmt.Fprintf(w, "retry_base_delay_ms: %d\n", c.RetryBaseDelayMs)
		fmt.Fprintf(w, "retry_max_delay_ms: %d\n", c.RetryMaxDelayMs)
		fmt.Fprintf(w, "ollama_host: %s\n", c.OllamaHost)
		if c.ModelsCatalog != "" {
			fmt.Fprintf(w, "models_catalog: %s\n", c.ModelsCatalog)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ensureConfig()
		if err != nil {
			return err
		}
		if err := setKey(c, args[0], args[1]); err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func setKey(c *cfgpkg.Global, key, val string) error {
	atoi := func() (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("invalid int for %s: %w", key, err)
		}
		return i, nil
	}
	atob := func() (bool, error) {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return false, fmt.Errorf("invalid bool for %s: %w", key, err)
		}
		return b, nil
	}
	var err error
	switch key {
	case "api_key":
		c.APIKey = val
	case "default_model":
		c.DefaultModel = val
	case "default_provider":
		p := resolveProvider(nil, val)
		if !slices.Contains(ai.Providers(), p) {
			return fmt.Errorf("invalid default_provider: %s (use openrouter|openai|openai-sdk|gemini|ollama)", val)
		}
		c.DefaultProvider = p
	case "temperature":
		f, perr := strconv.ParseFloat(val, 64)
		if perr != nil {
			return fmt.Errorf("invalid float for temperature: %w", perr)
		}
		c.Temperature = f
	case "max_tokens_per_request":
		c.MaxTokensPerRequest, err = atoi()
	case "reserved_tokens":
		c.ReservedTokens, err = atoi()
	case "completion_tokens":
		c.CompletionTokens, err = atoi()
	case "workers":
		c.Workers, err = atoi()
	case "max_excerpt_chars":
		c.MaxExcerptChars, err = atoi()
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = atoi()
	case "retry_max_attempts":
		c.RetryMaxAttempts, err = atoi()
	case "retry_base_delay_ms":
		c.RetryBaseDelayMs, err = atoi()
	case "retry_max_delay_ms":
		c.RetryMaxDelayMs, err = atoi()
	case "include_tests":
		c.IncludeTests, err = atob()
	case "respect_gitignore":
		c.RespectGitignore, err = atob()
	case "exclude":
		c.Exclude = nil
		for _, p := range strings.Split(val, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Exclude = append(c.Exclude, p)
			}
		}
	case "output":
		c.Output = val
	case "ollama_host":
		c.OllamaHost = val
	case "models_catalog":
		c.ModelsCatalog = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return err
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
