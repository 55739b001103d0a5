// Package pipeline turns a source tree into one documentation file:
// traverse, extract, assemble batches under a token budget, complete each
// batch and merge the sections in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/codeloom-cli/internal/ai"
	"github.com/KaramelBytes/codeloom-cli/internal/files"
	"github.com/KaramelBytes/codeloom-cli/internal/parser"
	"github.com/KaramelBytes/codeloom-cli/internal/prompt"
	"github.com/KaramelBytes/codeloom-cli/internal/tokens"
)

// DefaultWorkers bounds each worker pool when Options.Workers is unset.
const DefaultWorkers = 4

// Completer produces text for one batch prompt. *ai.Completer satisfies it.
type Completer interface {
	Complete(ctx context.Context, req ai.GenerateRequest) (ai.Completion, error)
}

type Options struct {
	Root    string
	Walk    files.Options
	Extract parser.Options
	Budget  prompt.Budget

	// Accountant defaults to tokens.ForModel(Budget.Model).
	Accountant tokens.Accountant
	Completer  Completer

	Model            string
	CompletionTokens int
	Temperature      float64
	Workers          int
	// BestEffort returns a Partial document on caller cancellation instead
	// of failing the run.
	BestEffort bool
	// ProjectName defaults to the root's base name.
	ProjectName string

	Logger   *slog.Logger
	Progress Progress
}

func (o *Options) defaults() {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Progress == nil {
		o.Progress = noProgress{}
	}
	if o.Model == "" {
		o.Model = o.Budget.Model
	}
}

// Plan is everything known before any provider call.
type Plan struct {
	RunID       uuid.UUID
	Root        string
	Discovered  int
	Summaries   []prompt.Summary
	Unsupported []string
	Batches     []prompt.Batch
	Project     prompt.Project
	Diagnostics []Diagnostic
	Accountant  string
	Started     time.Time
}

// PromptTokens sums the packed batch costs.
func (p *Plan) PromptTokens() int {
	n := 0
	for _, b := range p.Batches {
		n += b.Tokens
	}
	return n
}

// Result is the outcome of a completed run.
type Result struct {
	RunID       uuid.UUID          `json:"run_id"`
	Document    Document           `json:"document"`
	Diagnostics []Diagnostic       `json:"diagnostics"`
	Batches     []prompt.Batch     `json:"-"`
	Unsupported []string           `json:"unsupported,omitempty"`
	Partial     bool               `json:"partial,omitempty"`
	Usage       ai.Usage           `json:"usage"`
	Elapsed     time.Duration      `json:"elapsed_ns"`
	Project     prompt.Project     `json:"project"`
	Results     []CompletionResult `json:"-"`
}

// BuildPlan walks the root, extracts every entry on a bounded pool and packs
// the summaries into batches. It makes no provider calls.
func BuildPlan(ctx context.Context, opts Options) (*Plan, error) {
	opts.defaults()
	if err := opts.Budget.Validate(); err != nil {
		return nil, err
	}
	if opts.Accountant == nil {
		opts.Accountant = tokens.ForModel(opts.Budget.Model)
	}
	w, err := files.NewWalker(opts.Root, opts.Walk)
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		RunID:      uuid.New(),
		Root:       w.Root(),
		Accountant: opts.Accountant.Name(),
		Started:    time.Now(),
	}
	log := opts.Logger.With("run_id", plan.RunID.String())

	var entries []files.Entry
	for e, err := range w.Walk() {
		if err != nil {
			plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
				Stage: StageTraversal, Severity: SeverityWarning, Path: e.Path, Message: err.Error(),
			})
			log.Debug("traversal problem", "path", e.Path, "error", err)
			continue
		}
		entries = append(entries, e)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	plan.Discovered = len(entries)
	log.Debug("traversal finished", "files", len(entries))

	extracted, err := extractAll(ctx, entries, opts)
	if err != nil {
		return nil, err
	}
	for _, x := range extracted {
		for _, wn := range x.warnings {
			plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
				Stage: StageExtraction, Severity: SeverityWarning, Path: wn.Path, Message: wn.Message,
			})
		}
		if !x.summary.Category.Supported() {
			plan.Unsupported = append(plan.Unsupported, x.summary.Path)
			continue
		}
		plan.Summaries = append(plan.Summaries, x.summary)
	}
	if len(plan.Summaries) == 0 {
		return nil, fmt.Errorf("%w under %s (%d files discovered)", ErrNoFiles, plan.Root, plan.Discovered)
	}

	batches, notes, err := prompt.Assemble(plan.Summaries, opts.Budget, opts.Accountant)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
			Stage: StageBudget, Severity: SeverityWarning, Path: n.Path, Message: n.Message,
		})
	}
	plan.Batches = batches

	name := opts.ProjectName
	if name == "" {
		name = filepath.Base(plan.Root)
	}
	project := prompt.NewProject(name, plan.Summaries)
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	project.Structure = files.Tree(paths, files.DefaultTreeDepth)
	deps, errs := files.Dependencies(plan.Root)
	for _, err := range errs {
		d := Diagnostic{Stage: StageTraversal, Severity: SeverityWarning, Message: err.Error()}
		var me *files.ManifestError
		if errors.As(err, &me) {
			d.Path, d.Message = me.Path, me.Err.Error()
		}
		plan.Diagnostics = append(plan.Diagnostics, d)
	}
	if len(deps) > 0 {
		project.Dependencies = deps
	}

	// The overview rides in every request and is paid for by the reserve.
	project, note, err := prompt.FitOverview(project, len(batches), opts.Budget.ReservedTokens, opts.Accountant)
	if err != nil {
		return nil, err
	}
	if note != "" {
		plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
			Stage: StageBudget, Severity: SeverityWarning, Message: note,
		})
	}
	plan.Project = project
	log.Debug("batches assembled",
		"summaries", len(plan.Summaries),
		"batches", len(batches),
		"tokens", plan.PromptTokens(),
		"accountant", plan.Accountant)
	return plan, nil
}

type extraction struct {
	summary  prompt.Summary
	warnings []parser.Warning
}

func extractAll(ctx context.Context, entries []files.Entry, opts Options) ([]extraction, error) {
	x := parser.New(opts.Extract)
	out := make([]extraction, len(entries))

	opts.Progress.Stage("extracting", len(entries))
	defer opts.Progress.Done()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, ws := x.ExtractFile(gctx, e)
			out[i] = extraction{summary: s, warnings: ws}
			opts.Progress.Step()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Run executes a full pipeline. Fatal conditions return (nil, err) with no
// document. An exhausted batch becomes a placeholder section and an error
// diagnostic; the run still succeeds.
func Run(ctx context.Context, opts Options) (*Result, error) {
	opts.defaults()
	if opts.Completer == nil {
		return nil, ErrNoCompleter
	}
	plan, err := BuildPlan(ctx, opts)
	if err != nil {
		return nil, err
	}
	return Complete(ctx, plan, opts)
}

// Complete runs the completion stage of an existing plan and merges the result.
func Complete(ctx context.Context, plan *Plan, opts Options) (*Result, error) {
	opts.defaults()
	if opts.Completer == nil {
		return nil, ErrNoCompleter
	}
	log := opts.Logger.With("run_id", plan.RunID.String())
	results, err := completeAll(ctx, plan, opts, log)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:       plan.RunID,
		Diagnostics: append([]Diagnostic(nil), plan.Diagnostics...),
		Batches:     plan.Batches,
		Unsupported: plan.Unsupported,
		Project:     plan.Project,
		Results:     results,
	}
	total := len(plan.Batches)
	for _, r := range results {
		res.Usage.Add(r.Usage)
		if r.Err == nil {
			continue
		}
		if errors.Is(r.Err, ErrNotCompleted) || errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded) {
			res.Partial = true
		}
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Stage:    StageCompletion,
			Severity: SeverityError,
			Message:  fmt.Sprintf("batch %d of %d (%d files): %v", r.Batch+1, total, len(plan.Batches[r.Batch].Summaries), r.Err),
		})
	}
	res.Document = Merge(plan.Batches, results)
	res.Elapsed = time.Since(plan.Started)
	log.Info("run finished",
		"batches", total,
		"placeholders", res.Document.Placeholders(),
		"partial", res.Partial,
		"total_tokens", res.Usage.TotalTokens,
		"elapsed", res.Elapsed.Round(time.Millisecond))
	return res, nil
}

func completeAll(ctx context.Context, plan *Plan, opts Options, log *slog.Logger) ([]CompletionResult, error) {
	total := len(plan.Batches)
	results := make([]CompletionResult, total)
	for i := range results {
		results[i] = CompletionResult{Batch: i, Err: ErrNotCompleted}
	}

	opts.Progress.Stage("documenting", total)
	defer opts.Progress.Done()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, b := range plan.Batches {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			msgs := prompt.BuildMessages(b, total, plan.Project)
			req := ai.GenerateRequest{
				Model: opts.Model,
				Messages: []ai.Message{
					{Role: "system", Content: msgs.System},
					{Role: "user", Content: msgs.User},
				},
				MaxTokens:   opts.CompletionTokens,
				Temperature: opts.Temperature,
			}
			c, err := opts.Completer.Complete(gctx, req)
			results[i] = CompletionResult{Batch: i, Text: c.Text, Err: err, Attempts: c.Attempts, Usage: c.Usage}
			opts.Progress.Step()

			var fatal *ai.FatalError
			if errors.As(err, &fatal) {
				log.Error("batch failed", "batch", i+1, "error", err)
				return err
			}
			if err != nil {
				log.Warn("batch failed", "batch", i+1, "attempts", c.Attempts, "error", err)
				return nil
			}
			log.Debug("batch completed", "batch", i+1, "attempts", c.Attempts, "tokens", c.Usage.TotalTokens)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil && !opts.BestEffort {
		return nil, err
	}
	return results, nil
}
