package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/codeloom-cli/internal/ai"
	"github.com/KaramelBytes/codeloom-cli/internal/files"
	"github.com/KaramelBytes/codeloom-cli/internal/prompt"
	"github.com/KaramelBytes/codeloom-cli/internal/tokens"
)

var partRe = regexp.MustCompile(`part (\d+) of (\d+)`)

type fakeCompleter struct {
	mu    sync.Mutex
	parts []int
	fn    func(ctx context.Context, part int) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, req ai.GenerateRequest) (ai.Completion, error) {
	m := partRe.FindStringSubmatch(req.Messages[1].Content)
	if m == nil {
		return ai.Completion{}, errors.New("no part marker in prompt")
	}
	part, _ := strconv.Atoi(m[1])
	f.mu.Lock()
	f.parts = append(f.parts, part)
	f.mu.Unlock()

	text, err := f.fn(ctx, part)
	if err != nil {
		return ai.Completion{Attempts: 3}, err
	}
	return ai.Completion{
		Text:     text,
		Attempts: 1,
		Usage:    ai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func echoParts(_ context.Context, part int) (string, error) {
	return fmt.Sprintf("## Part %d\n", part), nil
}

func writeTree(t *testing.T, tree map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range tree {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

// fourTextFiles yields one batch per file under smallBudget.
func fourTextFiles(t *testing.T) string {
	t.Helper()
	body := strings.Repeat("abcdefghij", 60)
	return writeTree(t, map[string]string{
		"f1.txt": body,
		"f2.txt": body,
		"f3.txt": body,
		"f4.txt": body,
	})
}

var smallBudget = prompt.Budget{MaxTokens: 700, ReservedTokens: 400, Model: "test-model"}

func baseOptions(root string, c Completer) Options {
	return Options{
		Root:       root,
		Budget:     prompt.Budget{MaxTokens: 4000, ReservedTokens: 500, Model: "test-model"},
		Accountant: tokens.Heuristic{},
		Completer:  c,
		Workers:    2,
	}
}

func TestRunSmallProjectSingleBatch(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.go": "package a\n\nfunc A() int { return 1 }\n",
		"b.py": "def b():\n    return 2\n",
		"c.md": "# C\n\nNotes.\n",
	})
	fc := &fakeCompleter{fn: echoParts}
	res, err := Run(context.Background(), baseOptions(root, fc))
	require.NoError(t, err)

	require.Len(t, res.Batches, 1)
	assert.Equal(t, []string{"a.go", "b.py", "c.md"}, res.Batches[0].Paths())
	assert.Empty(t, res.Diagnostics)
	assert.False(t, res.Partial)
	assert.Equal(t, "## Part 1\n", res.Document.Text)
	assert.Equal(t, 0, res.Document.Placeholders())
	assert.Equal(t, 15, res.Usage.TotalTokens)
	assert.Equal(t, filepath.Base(root), res.Project.Name)
	assert.Equal(t, 3, res.Project.TotalFiles)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", res.RunID.String())
}

func TestRunCoverage(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.go":       "package main\n\nfunc main() {}\n",
		"docs/guide.md": "# Guide\n",
		"data.bin":      "\x00\x01\x02",
		"blob.txt":      "abc\x00def",
		"README":        "hello",
	})
	fc := &fakeCompleter{fn: echoParts}
	res, err := Run(context.Background(), baseOptions(root, fc))
	require.NoError(t, err)

	seen := map[string]int{}
	for _, b := range res.Batches {
		for _, p := range b.Paths() {
			seen[p]++
		}
	}
	for _, p := range res.Unsupported {
		seen[p]++
	}
	assert.Equal(t, map[string]int{
		"main.go":       1,
		"docs/guide.md": 1,
		"data.bin":      1,
		"blob.txt":      1,
		"README":        1,
	}, seen)
	assert.ElementsMatch(t, []string{"data.bin", "blob.txt"}, res.Unsupported)
}

func TestRunExhaustedBatchBecomesPlaceholder(t *testing.T) {
	root := fourTextFiles(t)
	fc := &fakeCompleter{fn: func(ctx context.Context, part int) (string, error) {
		if part == 2 {
			return "", fmt.Errorf("%w after 3 attempts: %w", ai.ErrRetriesExhausted, errors.New("server error 503"))
		}
		return echoParts(ctx, part)
	}}
	opts := baseOptions(root, fc)
	opts.Budget = smallBudget
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, res.Batches, 4)
	assert.False(t, res.Partial)
	assert.Equal(t, 1, res.Document.Placeholders())
	assert.True(t, res.Document.Sections[1].Failed)
	assert.Contains(t, res.Document.Text, "## Section unavailable (batch 2 of 4)")
	assert.Contains(t, res.Document.Text, "- `f2.txt`")
	assert.Contains(t, res.Document.Text, "## Part 1")
	assert.Contains(t, res.Document.Text, "## Part 4")

	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, StageCompletion, d.Stage)
	assert.Equal(t, SeverityError, d.Severity)
	assert.Contains(t, d.Message, "batch 2 of 4")
}

func TestRunFatalErrorAborts(t *testing.T) {
	root := fourTextFiles(t)
	fc := &fakeCompleter{fn: func(ctx context.Context, part int) (string, error) {
		if part == 3 {
			return "", &ai.FatalError{Err: errors.New("invalid api key")}
		}
		return echoParts(ctx, part)
	}}
	opts := baseOptions(root, fc)
	opts.Budget = smallBudget
	res, err := Run(context.Background(), opts)
	require.Error(t, err)
	assert.Nil(t, res)
	var fatal *ai.FatalError
	assert.True(t, errors.As(err, &fatal))
}

func TestRunPreservesOrderUnderConcurrency(t *testing.T) {
	root := fourTextFiles(t)
	r := rand.New(rand.NewSource(7))
	delays := make([]time.Duration, 5)
	for i := range delays {
		delays[i] = time.Duration(r.Intn(20)) * time.Millisecond
	}
	fc := &fakeCompleter{fn: func(ctx context.Context, part int) (string, error) {
		time.Sleep(delays[part])
		return fmt.Sprintf("section %d", part), nil
	}}
	opts := baseOptions(root, fc)
	opts.Budget = smallBudget
	opts.Workers = 4
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	want := strings.Join([]string{"section 1", "section 2", "section 3", "section 4"}, SectionSeparator) + "\n"
	assert.Equal(t, want, res.Document.Text)
	assert.Len(t, fc.parts, 4)
}

func cancellingCompleter(cancel context.CancelFunc) *fakeCompleter {
	return &fakeCompleter{fn: func(ctx context.Context, part int) (string, error) {
		if part >= 2 {
			cancel()
			return "", ctx.Err()
		}
		return echoParts(ctx, part)
	}}
}

func TestRunCancelledAborts(t *testing.T) {
	root := fourTextFiles(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts := baseOptions(root, cancellingCompleter(cancel))
	opts.Budget = smallBudget
	opts.Workers = 1

	res, err := Run(ctx, opts)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunCancelledBestEffortIsPartial(t *testing.T) {
	root := fourTextFiles(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts := baseOptions(root, cancellingCompleter(cancel))
	opts.Budget = smallBudget
	opts.Workers = 1
	opts.BestEffort = true

	res, err := Run(ctx, opts)
	require.NoError(t, err)
	assert.True(t, res.Partial)
	require.Len(t, res.Document.Sections, 4)
	assert.False(t, res.Document.Sections[0].Failed)
	assert.Equal(t, "## Part 1", res.Document.Sections[0].Text)
	assert.Equal(t, 3, res.Document.Placeholders())
	assert.Equal(t, 3, Count(res.Diagnostics, SeverityError))
}

func TestRunFatalConfigurations(t *testing.T) {
	fc := &fakeCompleter{fn: echoParts}

	_, err := Run(context.Background(), baseOptions(filepath.Join(t.TempDir(), "missing"), fc))
	assert.ErrorIs(t, err, files.ErrRootUnreadable)

	onlyBinary := writeTree(t, map[string]string{"x.bin": "\x00"})
	_, err = Run(context.Background(), baseOptions(onlyBinary, fc))
	assert.ErrorIs(t, err, ErrNoFiles)

	opts := baseOptions(fourTextFiles(t), fc)
	opts.Budget = prompt.Budget{MaxTokens: 100, ReservedTokens: 100}
	_, err = Run(context.Background(), opts)
	assert.ErrorIs(t, err, prompt.ErrInvalidBudget)

	_, err = Run(context.Background(), baseOptions(onlyBinary, nil))
	assert.ErrorIs(t, err, ErrNoCompleter)

	assert.Empty(t, fc.parts)
}

func TestBuildPlanMakesNoCalls(t *testing.T) {
	root := writeTree(t, map[string]string{
		"big.txt": strings.Repeat("word ", 4000),
		"ok.txt":  "fine",
	})
	opts := baseOptions(root, nil)
	opts.Budget = smallBudget
	plan, err := BuildPlan(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 2, plan.Discovered)
	assert.Len(t, plan.Summaries, 2)
	assert.Equal(t, "heuristic", plan.Accountant)
	for _, b := range plan.Batches {
		assert.LessOrEqual(t, b.Tokens, smallBudget.Usable())
	}
	require.NotEmpty(t, plan.Diagnostics)
	assert.Equal(t, StageBudget, plan.Diagnostics[0].Stage)
	assert.Equal(t, "big.txt", plan.Diagnostics[0].Path)
	assert.Positive(t, plan.PromptTokens())
}

func TestBuildPlanProjectOverview(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.go":             "package a\n\nfunc A() {}\n",
		"pkg/deep/er/x.py": "x = 1\n",
		"requirements.txt": "requests==2.0  # pinned\n# c\n-r base.txt\nflask\n",
		"package.json":     `{"dependencies":{"react":"1"},"devDependencies":{"jest":"1","react":"1"}}`,
		"go.mod":           "module example.com/x\n\ngo 1.22\n\nrequire (\n\tgithub.com/spf13/cobra v1.9.1\n\tgolang.org/x/text v0.3.0 // indirect\n)\n",
	})
	plan, err := BuildPlan(context.Background(), baseOptions(root, nil))
	require.NoError(t, err)

	p := plan.Project
	assert.Equal(t, 5, p.TotalFiles)
	assert.Equal(t, 17, p.TotalLines)
	assert.Equal(t, "a.go\ngo.mod\npackage.json\npkg/\n  deep/\n    er/\nrequirements.txt\n", p.Structure)
	assert.Equal(t, map[string][]string{
		files.EcosystemGo:         {"github.com/spf13/cobra"},
		files.EcosystemJavaScript: {"react", "jest"},
		files.EcosystemPython:     {"requests==2.0", "flask"},
	}, p.Dependencies)
	assert.Empty(t, plan.Diagnostics)

	m := prompt.BuildMessages(plan.Batches[0], len(plan.Batches), p)
	assert.Contains(t, m.User, "Total lines: 17\n")
	assert.Contains(t, m.User, "  javascript: react, jest\n")
	assert.Contains(t, m.User, "Structure:\na.go\n")
}

func TestBuildPlanBrokenManifestIsWarning(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.go":      "package main\n",
		"package.json": "{",
	})
	plan, err := BuildPlan(context.Background(), baseOptions(root, nil))
	require.NoError(t, err)
	assert.Empty(t, plan.Project.Dependencies)
	require.Len(t, plan.Diagnostics, 1)
	assert.Equal(t, StageTraversal, plan.Diagnostics[0].Stage)
	assert.Equal(t, "package.json", plan.Diagnostics[0].Path)
}

func TestBuildPlanScaffoldMustFitReserve(t *testing.T) {
	opts := baseOptions(fourTextFiles(t), nil)
	opts.Budget = prompt.Budget{MaxTokens: 4000, ReservedTokens: 20, Model: "test-model"}
	_, err := BuildPlan(context.Background(), opts)
	require.ErrorIs(t, err, prompt.ErrInvalidBudget)
	assert.Contains(t, err.Error(), "scaffolding")

	opts.Budget.ReservedTokens = 500
	plan, err := BuildPlan(context.Background(), opts)
	require.NoError(t, err)
	assert.LessOrEqual(t, prompt.ScaffoldTokens(plan.Project, len(plan.Batches), tokens.Heuristic{}), 500)
}

func TestMergeIsDeterministic(t *testing.T) {
	batches := []prompt.Batch{
		{Index: 0, Summaries: []prompt.Summary{{Path: "a.go"}}},
		{Index: 1, Summaries: []prompt.Summary{{Path: "b.go"}, {Path: "c.go"}}},
		{Index: 2, Summaries: []prompt.Summary{{Path: "d.go"}}},
	}
	results := []CompletionResult{
		{Batch: 2, Text: "third\n"},
		{Batch: 0, Text: "  first  "},
	}
	doc := Merge(batches, results)
	again := Merge(batches, results)
	assert.Equal(t, doc, again)

	want := "first" + SectionSeparator +
		"## Section unavailable (batch 2 of 3)\n\n" +
		"Documentation for these files could not be generated:\n\n" +
		"- `b.go`\n- `c.go`\n\n" +
		"Cause: " + ErrNotCompleted.Error() +
		SectionSeparator + "third\n"
	assert.Equal(t, want, doc.Text)
	assert.Equal(t, 1, doc.Placeholders())
	assert.Equal(t, []string{"b.go", "c.go"}, doc.Sections[1].Paths)
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Stage: StageExtraction, Severity: SeverityWarning, Path: "a.py", Message: "parse failed"}
	assert.Equal(t, "[warning] extraction: a.py: parse failed", d.String())
	d.Path = ""
	assert.Equal(t, "[warning] extraction: parse failed", d.String())
}
