package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/codeloom-cli/internal/ai"
	"github.com/KaramelBytes/codeloom-cli/internal/utils"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage or inspect model catalog and pricing",
	Example: `  codeloom models show
  codeloom models show --provider ollama
  codeloom models sync --file ./models.json --merge
  codeloom models fetch --url https://example.com/models.json
  codeloom models fetch --provider openrouter --merge --output models.json`,
}

var showProvider string

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current model catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := ai.Catalog()
		if showProvider != "" {
			p := resolveProvider(nil, showProvider)
			for name, mi := range cat {
				if mi.Provider != p && !(p == ai.ProviderOpenAISDK && mi.Provider == ai.ProviderOpenAI) {
					delete(cat, name)
				}
			}
		}
		// encoding/json sorts map keys
		b, err := utils.PrettyJSON(cat)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

var (
	syncPath  string
	syncMerge bool
)

var modelsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Load model catalog/pricing from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPath == "" {
			return fmt.Errorf("--file is required")
		}
		m, err := ai.LoadCatalogFromJSON(syncPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		return applyCatalog(cmd.OutOrStdout(), m, syncMerge, "file "+syncPath, "")
	},
}

var (
	fetchURL      string
	fetchOutput   string
	fetchMerge    bool
	fetchProvider string
)

var modelsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch model catalog/pricing JSON from a URL and apply it",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := fetchURL
		if url == "" && fetchProvider != "" {
			url = providerURL(fetchProvider)
		}
		// Without a URL, a known provider falls back to its built-in preset.
		if url == "" && fetchProvider != "" {
			if preset, ok := ai.PresetCatalog(resolveProvider(nil, fetchProvider)); ok {
				return applyCatalog(cmd.OutOrStdout(), preset, fetchMerge, "built-in '"+fetchProvider+"' preset", fetchOutput)
			}
		}
		if url == "" {
			return fmt.Errorf("--url is required (or specify --provider with a known preset)")
		}
		m, err := fetchCatalog(cmd, url)
		if err != nil {
			return err
		}
		return applyCatalog(cmd.OutOrStdout(), m, fetchMerge, url, fetchOutput)
	},
}

// providerURL returns a catalog URL configured for a provider, if any.
// Set CODELOOM_<PROVIDER>_CATALOG_URL (e.g. CODELOOM_OPENROUTER_CATALOG_URL).
func providerURL(name string) string {
	key := "CODELOOM_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_CATALOG_URL"
	return strings.TrimSpace(os.Getenv(key))
}

func fetchCatalog(cmd *cobra.Command, url string) (map[string]ai.ModelInfo, error) {
	c, err := ensureConfig()
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: time.Duration(c.HTTPTimeoutSec) * time.Second}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("fetch: unexpected status %s: %s", resp.Status, string(b))
	}
	var m map[string]ai.ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return m, nil
}

// applyCatalog merges or replaces the in-memory catalog with m and, when
// savePath is set, writes m there for use as models_catalog.
func applyCatalog(w io.Writer, m map[string]ai.ModelInfo, merge bool, source, savePath string) error {
	if savePath != "" {
		data, err := utils.PrettyJSON(m)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		if err := utils.SafeWriteFile(savePath, append(data, '\n')); err != nil {
			return fmt.Errorf("write file: %w", err)
		}
		fmt.Fprintf(w, "💾 Saved %d models to %s\n", len(m), savePath)
	}
	if merge {
		ai.MergeCatalog(m)
		fmt.Fprintf(w, "✓ Merged %d models from %s\n", len(m), source)
	} else {
		ai.OverrideCatalog(m)
		fmt.Fprintf(w, "✓ Replaced catalog with %d models from %s\n", len(m), source)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsSyncCmd)
	modelsCmd.AddCommand(modelsFetchCmd)

	modelsShowCmd.Flags().StringVar(&showProvider, "provider", "", "only list models served by this provider")

	modelsSyncCmd.Flags().StringVar(&syncPath, "file", "", "path to JSON catalog file")
	modelsSyncCmd.Flags().BoolVar(&syncMerge, "merge", false, "merge into existing catalog instead of replacing")

	modelsFetchCmd.Flags().StringVar(&fetchURL, "url", "", "URL to JSON catalog file")
	modelsFetchCmd.Flags().StringVar(&fetchOutput, "output", "", "optional path to save the fetched JSON")
	modelsFetchCmd.Flags().BoolVar(&fetchMerge, "merge", false, "merge into existing catalog instead of replacing")
	modelsFetchCmd.Flags().StringVar(&fetchProvider, "provider", "", "provider preset (openrouter|openai|gemini|ollama) to resolve the catalog URL if --url is not set")
}
