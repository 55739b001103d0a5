package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/codeloom-cli/internal/pipeline"
	"github.com/KaramelBytes/codeloom-cli/internal/prompt"
	"github.com/KaramelBytes/codeloom-cli/internal/tokens"
	"github.com/KaramelBytes/codeloom-cli/internal/utils"
)

var (
	scanFlags runFlags
	scanJSON  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Show what would be documented, without calling any model",
	Long: `scan walks the tree, extracts every file and packs the batches exactly as
generate would, then prints files, categories, batches and token estimates.
No network access is needed.`,
	Example: `  codeloom scan
  codeloom scan ./service --exclude "gen/" --json
  codeloom scan . --max-tokens-per-request 2000 --tokenizer heuristic`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}
		c, err := effectiveConfig(cmd, &scanFlags)
		if err != nil {
			return err
		}
		model := selectModel(c, resolveProvider(c, ""), explicitModel(cmd, &scanFlags))
		acc, err := newAccountant(scanFlags.tokenizer, model)
		if err != nil {
			return err
		}

		plan, err := pipeline.BuildPlan(cmd.Context(), pipelineOptions(root, c, model, acc))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if scanJSON {
			b, err := utils.PrettyJSON(newPlanReport(plan, model, acc))
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		}
		printPlan(out, plan, model, acc)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	addRunFlags(scanCmd, &scanFlags)
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "emit the plan as JSON")
}

type planFile struct {
	Path      string `json:"path"`
	Language  string `json:"language,omitempty"`
	Category  string `json:"category"`
	Tokens    int    `json:"tokens"`
	Batch     int    `json:"batch"`
	Truncated bool   `json:"truncated,omitempty"`
	Omitted   bool   `json:"omitted,omitempty"`
}

type planReport struct {
	RunID        string                `json:"run_id"`
	Root         string                `json:"root"`
	Model        string                `json:"model"`
	Tokenizer    string                `json:"tokenizer"`
	Files        []planFile            `json:"files"`
	Unsupported  []string              `json:"unsupported,omitempty"`
	Batches      int                   `json:"batches"`
	PromptTokens int                   `json:"prompt_tokens"`
	TotalLines   int                   `json:"total_lines"`
	Dependencies map[string][]string   `json:"dependencies,omitempty"`
	Diagnostics  []pipeline.Diagnostic `json:"diagnostics"`
}

func newPlanReport(plan *pipeline.Plan, model string, acc tokens.Accountant) planReport {
	r := planReport{
		RunID:        plan.RunID.String(),
		Root:         plan.Root,
		Model:        model,
		Tokenizer:    plan.Accountant,
		Unsupported:  plan.Unsupported,
		Batches:      len(plan.Batches),
		PromptTokens: plan.PromptTokens(),
		TotalLines:   plan.Project.TotalLines,
		Dependencies: plan.Project.Dependencies,
		Diagnostics:  plan.Diagnostics,
	}
	if r.Diagnostics == nil {
		r.Diagnostics = []pipeline.Diagnostic{}
	}
	for _, b := range plan.Batches {
		for _, s := range b.Summaries {
			r.Files = append(r.Files, planFile{
				Path:      s.Path,
				Language:  s.Language,
				Category:  string(s.Category),
				Tokens:    prompt.Cost(s, acc),
				Batch:     b.Index + 1,
				Truncated: s.Truncated,
				Omitted:   s.Placeholder,
			})
		}
	}
	return r
}

func printPlan(w io.Writer, plan *pipeline.Plan, model string, acc tokens.Accountant) {
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, "Root: %s\n", plan.Root)
	fmt.Fprintf(w, "Model: %s (tokenizer %s)\n", model, plan.Accountant)
	fmt.Fprintf(w, "Files: %d discovered, %d supported, %d unsupported (%d lines)\n",
		plan.Discovered, len(plan.Summaries), len(plan.Unsupported), plan.Project.TotalLines)
	fmt.Fprintf(w, "Languages: %s\n\n", plan.Project.LanguageLine())

	total := len(plan.Batches)
	for _, b := range plan.Batches {
		fmt.Fprintf(w, "Batch %d of %d (≈%d tokens)\n", b.Index+1, total, b.Tokens)
		for _, s := range b.Summaries {
			mark := ""
			switch {
			case s.Placeholder:
				mark = " [omitted]"
			case s.Truncated:
				mark = " [truncated]"
			}
			fmt.Fprintf(w, "  %-50s %-10s %6d%s\n", s.Path, s.Language, prompt.Cost(s, acc), mark)
		}
	}
	if len(plan.Unsupported) > 0 {
		fmt.Fprintln(w, "\nUnsupported (listed, not documented):")
		for _, p := range plan.Unsupported {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	if len(plan.Diagnostics) > 0 {
		fmt.Fprintln(w)
		printDiagnostics(w, plan.Diagnostics)
	}
	fmt.Fprintf(w, "\nTotal: %d batches, ≈%d prompt tokens\n", total, plan.PromptTokens())
}
