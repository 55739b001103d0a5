package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/codeloom-cli/internal/ai"
	"github.com/KaramelBytes/codeloom-cli/internal/pipeline"
)

var (
	genFlags       runFlags
	genOutputPath  string
	genOutputFmt   string
	genDryRun      bool
	genQuiet       bool
	genJSON        bool
	genBestEffort  bool
	genBudgetLimit float64
	genTimeoutSec  int
	genOllamaHost  string
	genBaseURL     string
)

var generateCmd = &cobra.Command{
	Use:   "generate [path]",
	Short: "Generate developer documentation for a source tree",
	Example: `  codeloom generate
  codeloom generate ./service -o docs/SERVICE.md --model openai/gpt-4o
  codeloom generate . --provider gemini --workers 8 --best-effort
  codeloom generate . --dry-run --max-tokens-per-request 2000
  codeloom generate . --budget-limit 0.05 --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}
		if genJSON {
			genQuiet = true
		}
		c, err := effectiveConfig(cmd, &genFlags)
		if err != nil {
			return err
		}
		provider := resolveProvider(c, "")
		model := selectModel(c, provider, explicitModel(cmd, &genFlags))
		acc, err := newAccountant(genFlags.tokenizer, model)
		if err != nil {
			return err
		}

		outputPath := c.Output
		if cmd.Flags().Changed("output") {
			outputPath = genOutputPath
		}
		if outputPath == "-" {
			outputPath = ""
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if genTimeoutSec > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(genTimeoutSec)*time.Second)
			defer cancel()
		}

		opts := pipelineOptions(root, c, model, acc)
		opts.BestEffort = genBestEffort
		if !genQuiet {
			opts.Progress = newBarProgress(cmd.ErrOrStderr())
		}

		plan, err := pipeline.BuildPlan(ctx, opts)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		batches := len(plan.Batches)
		if w := ai.ContextWarning(model, c.MaxTokensPerRequest+c.CompletionTokens); w != "" && !genQuiet {
			fmt.Fprintf(out, "⚠ %s\n", w)
			if n, ok := ai.SuggestRequestTokens(model, c.CompletionTokens); ok {
				fmt.Fprintf(out, "  try --max-tokens-per-request %d\n", n)
			}
		}
		promptTokens := plan.PromptTokens() + c.ReservedTokens*batches
		completionTokens := c.CompletionTokens * batches
		var estCost float64
		if cost, ok := ai.EstimateCostUSD(model, promptTokens, completionTokens); ok {
			estCost = cost
			if !genQuiet {
				fmt.Fprintf(out, "Estimated max cost: ~$%.4f for %d requests (≈%d prompt + %d completion tokens)\n",
					cost, batches, promptTokens, completionTokens)
			}
		}
		if err := enforceBudget(estCost, genBudgetLimit); err != nil {
			return err
		}

		if genDryRun {
			if !genQuiet {
				fmt.Fprintln(out, "\n--dry-run: no API call will be made --")
			}
			printPlan(out, plan, model, acc)
			return nil
		}

		rt, provider, err := buildRuntime(c, runtimeOptions{
			ProviderFlag: provider,
			OllamaHost:   genOllamaHost,
			BaseURL:      genBaseURL,
		})
		if err != nil {
			return explainError(err, provider, model)
		}
		opts.Completer = ai.NewCompleter(rt, buildPolicy(c), logger.With("run_id", plan.RunID.String()))

		if !genQuiet {
			fmt.Fprintf(out, "⚙ Documenting %d files in %d batches with %s/%s ...\n",
				len(plan.Summaries), batches, provider, model)
		}
		res, err := pipeline.Complete(ctx, plan, opts)
		if err != nil {
			return explainError(err, provider, model)
		}
		return formatAndWriteOutput(res, outputOptions{
			JSON:         genJSON,
			Quiet:        genQuiet,
			Provider:     provider,
			Model:        model,
			OutputPath:   outputPath,
			OutputFormat: genOutputFmt,
			Writer:       out,
		})
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	addRunFlags(generateCmd, &genFlags)
	generateCmd.Flags().StringVarP(&genOutputPath, "output", "o", "", "output file, '-' for stdout (default from config, DOCUMENTATION.md)")
	generateCmd.Flags().StringVar(&genOutputFmt, "format", "markdown", "output file format: text|markdown|json")
	generateCmd.Flags().BoolVar(&genDryRun, "dry-run", false, "plan batches and estimate cost without calling the API")
	generateCmd.Flags().BoolVar(&genQuiet, "quiet", false, "suppress non-essential output")
	generateCmd.Flags().BoolVar(&genJSON, "json", false, "emit a JSON report to stdout")
	generateCmd.Flags().BoolVar(&genBestEffort, "best-effort", false, "on interrupt or timeout, keep finished sections and write a partial document")
	generateCmd.Flags().Float64Var(&genBudgetLimit, "budget-limit", 0, "fail if estimated max cost (USD) exceeds this budget")
	generateCmd.Flags().IntVar(&genTimeoutSec, "timeout-sec", 0, "overall run timeout in seconds (0 = none)")
	generateCmd.Flags().StringVar(&genOllamaHost, "ollama-host", "", "override Ollama host (e.g., http://127.0.0.1:11434)")
	generateCmd.Flags().StringVar(&genBaseURL, "base-url", "", "override the provider endpoint (proxies, compatible servers)")
}
