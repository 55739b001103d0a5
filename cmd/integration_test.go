package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags clears values and Changed state left by a previous Execute.
func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
}

// runCmd executes the root command with args and returns its stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, c := range []*cobra.Command{rootCmd, generateCmd, scanCmd} {
		resetFlags(c)
	}
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	cfg = nil
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		t.Setenv(k, "")
	}
}

func sampleTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"main.go":        "package main\n\nimport \"fmt\"\n\nfunc main() { fmt.Println(hello()) }\n\nfunc hello() string { return \"hi\" }\n",
		"README.md":      "# Demo\n\nA tiny project.\n",
		"assets/img.bin": "\x00\x01",
	}
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func listen(t *testing.T, h http.Handler) string {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })
	return "http://" + ln.Addr().String()
}

func TestCLI_ScanJSON(t *testing.T) {
	isolateHome(t)
	root := sampleTree(t)
	out, err := runCmd(t, "scan", root, "--json", "--tokenizer", "heuristic")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	var rep planReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode scan output: %v\n%s", err, out)
	}
	if rep.Batches != 1 || len(rep.Files) != 2 {
		t.Fatalf("unexpected plan: %+v", rep)
	}
	if rep.Files[0].Path != "README.md" || rep.Files[1].Path != "main.go" {
		t.Fatalf("unexpected file order: %+v", rep.Files)
	}
	if len(rep.Unsupported) != 1 || rep.Unsupported[0] != "assets/img.bin" {
		t.Fatalf("unexpected unsupported list: %v", rep.Unsupported)
	}
	if rep.TotalLines != 10 {
		t.Fatalf("expected 10 lines across main.go and README.md, got %d", rep.TotalLines)
	}
	if rep.Tokenizer != "heuristic" {
		t.Fatalf("unexpected tokenizer: %s", rep.Tokenizer)
	}
}

func TestCLI_GenerateDryRunMakesNoCalls(t *testing.T) {
	isolateHome(t)
	root := sampleTree(t)
	out, err := runCmd(t, "generate", root, "--dry-run", "--tokenizer", "heuristic")
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if !strings.Contains(out, "--dry-run") || !strings.Contains(out, "Batch 1 of 1") {
		t.Fatalf("unexpected dry-run output: %s", out)
	}
	if _, err := os.Stat(filepath.Join(root, "DOCUMENTATION.md")); !os.IsNotExist(err) {
		t.Fatalf("dry run must not write output, stat err=%v", err)
	}
}

func TestCLI_BudgetLimitBlocksGeneration(t *testing.T) {
	isolateHome(t)
	root := sampleTree(t)
	_, err := runCmd(t, "generate", root, "--dry-run", "--tokenizer", "heuristic",
		"--model", "openai/gpt-4o", "--budget-limit", "0.0000001")
	if err == nil {
		t.Fatal("expected error due to budget limit, got nil")
	}
}

func TestCLI_GenerateMissingKey(t *testing.T) {
	isolateHome(t)
	root := sampleTree(t)
	_, err := runCmd(t, "generate", root, "--provider", "openrouter", "--tokenizer", "heuristic", "--quiet")
	if err == nil || !strings.Contains(err.Error(), "no API key") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestCLI_GenerateWritesDocument(t *testing.T) {
	isolateHome(t)
	t.Setenv("OPENAI_API_KEY", "test-key")
	var calls int32
	url := listen(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if n == 1 {
			// first attempt fails transiently
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id":"r1","choices":[{"index":0,"message":{"role":"assistant","content":"## Demo\n\nGenerated."}}],"usage":{"prompt_tokens":50,"completion_tokens":5,"total_tokens":55}}`)
	}))

	root := sampleTree(t)
	outPath := filepath.Join(t.TempDir(), "DOCS.md")
	_, err := runCmd(t, "generate", root,
		"--provider", "openai", "--base-url", url, "--model", "gpt-4o-mini",
		"--tokenizer", "heuristic", "--quiet", "-o", outPath,
		"--retry-base-ms", "1", "--retry-max-ms", "2")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "## Demo\n\nGenerated.\n" {
		t.Fatalf("unexpected document: %q", data)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected one retry (2 calls), got %d", got)
	}
}

func TestCLI_ConfigSetAndShow(t *testing.T) {
	isolateHome(t)
	if _, err := runCmd(t, "config", "set", "workers", "8"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	out, err := runCmd(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "workers: 8") {
		t.Fatalf("expected saved value, got %s", out)
	}
	if _, err := runCmd(t, "config", "set", "workers", "0"); err == nil {
		t.Fatal("expected validation error for workers=0")
	}
	if _, err := runCmd(t, "config", "set", "default_provider", "anthropic"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestCLI_ScanRejectsUnknownTokenizer(t *testing.T) {
	isolateHome(t)
	root := sampleTree(t)
	_, err := runCmd(t, "scan", root, "--json", "--tokenizer", "words")
	if err == nil || !strings.Contains(err.Error(), "unknown --tokenizer") {
		t.Fatalf("expected unknown tokenizer error, got %v", err)
	}
}
