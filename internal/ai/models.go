package ai

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
)

// ModelInfo is the context window and pricing of one model, used for
// budget warnings and cost estimates. Prices are illustrative.
type ModelInfo struct {
	Name          string  `json:"name"`
	Provider      string  `json:"provider,omitempty"`
	ContextTokens int     `json:"context_tokens"`
	InputPerK     float64 `json:"input_per_k"`  // USD per 1K prompt tokens
	OutputPerK    float64 `json:"output_per_k"` // USD per 1K completion tokens
}

var builtinModels = []ModelInfo{
	{"openai/gpt-4o-mini", ProviderOpenRouter, 128000, 0.0006, 0.0024},
	{"openai/gpt-4o", ProviderOpenRouter, 128000, 0.005, 0.015},
	{"openai/gpt-4.1-mini", ProviderOpenRouter, 128000, 0.0005, 0.0015},
	{"anthropic/claude-3.5-sonnet", ProviderOpenRouter, 200000, 0.003, 0.015},
	{"anthropic/claude-3-haiku", ProviderOpenRouter, 200000, 0.00025, 0.00125},
	{"google/gemini-1.5-flash", ProviderOpenRouter, 1000000, 0.0002, 0.0008},
	{"google/gemini-1.5-pro", ProviderOpenRouter, 1000000, 0.00125, 0.005},
	{"meta-llama/llama-3.1-8b-instruct", ProviderOpenRouter, 131072, 0, 0},
	{"meta-llama/llama-3.1-70b-instruct", ProviderOpenRouter, 131072, 0, 0},
	{"deepseek/deepseek-r1:free", ProviderOpenRouter, 128000, 0, 0},

	{"gpt-4o-mini", ProviderOpenAI, 128000, 0.00015, 0.0006},
	{"gpt-4o", ProviderOpenAI, 128000, 0.0025, 0.01},

	{"gemini-2.5-flash", ProviderGemini, 1000000, 0.0003, 0.0025},
	{"gemini-2.5-pro", ProviderGemini, 1000000, 0.00125, 0.01},

	{"llama3:latest", ProviderOllama, 8192, 0, 0},
	{"llama3.1:8b-instruct", ProviderOllama, 8192, 0, 0},
	{"llama3.1:70b-instruct", ProviderOllama, 8192, 0, 0},
	{"mistral-nemo:latest", ProviderOllama, 8192, 0, 0},
	{"mistral:7b-instruct", ProviderOllama, 8192, 0, 0},
	{"phi3:mini-4k-instruct", ProviderOllama, 4096, 0, 0},
	{"phi3:mini-128k-instruct", ProviderOllama, 128000, 0, 0},
}

// catalog is the process-wide model table. It is replaced by
// `models sync|fetch` and the models_catalog config key.
type catalog struct {
	mu     sync.RWMutex
	models map[string]ModelInfo
}

var models = newCatalog(builtinModels)

func newCatalog(list []ModelInfo) *catalog {
	c := &catalog{models: make(map[string]ModelInfo, len(list))}
	for _, mi := range list {
		c.models[mi.Name] = mi
	}
	return c
}

func (c *catalog) get(name string) (ModelInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mi, ok := c.models[name]
	return mi, ok
}

// LookupModel finds a model by name. A vendor-prefixed name falls back to
// its bare form and vice versa.
func LookupModel(name string) (ModelInfo, bool) {
	if mi, ok := models.get(name); ok {
		return mi, true
	}
	if i := strings.IndexByte(name, '/'); i >= 0 {
		return models.get(name[i+1:])
	}
	models.mu.RLock()
	defer models.mu.RUnlock()
	for _, k := range slices.Sorted(maps.Keys(models.models)) {
		if strings.HasSuffix(k, "/"+name) {
			return models.models[k], true
		}
	}
	return ModelInfo{}, false
}

// ContextWarning describes a request size that exceeds the model's known
// context window, or returns "" when it fits or the model is unknown.
func ContextWarning(model string, requestTokens int) string {
	mi, ok := LookupModel(model)
	if !ok || mi.ContextTokens <= 0 || requestTokens <= mi.ContextTokens {
		return ""
	}
	return fmt.Sprintf("requests of up to %d tokens exceed %s context window of %d tokens", requestTokens, mi.Name, mi.ContextTokens)
}

// SuggestRequestTokens is the largest per-request prompt budget that leaves
// room for completionTokens in the model's context window.
func SuggestRequestTokens(model string, completionTokens int) (int, bool) {
	mi, ok := LookupModel(model)
	if !ok || mi.ContextTokens <= completionTokens {
		return 0, false
	}
	return mi.ContextTokens - completionTokens, true
}

// EstimateCostUSD prices a run from its token totals. Unknown models
// return ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	return float64(promptTokens)/1000*mi.InputPerK + float64(completionTokens)/1000*mi.OutputPerK, true
}

// LoadCatalogFromJSON reads a catalog file keyed by model name:
//
//	{"openai/gpt-4o-mini": {"context_tokens": 128000, "input_per_k": 0.0006, "output_per_k": 0.0024}}
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]ModelInfo
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// OverrideCatalog replaces the catalog. A nil map is ignored.
func OverrideCatalog(m map[string]ModelInfo) {
	if m == nil {
		return
	}
	models.mu.Lock()
	defer models.mu.Unlock()
	models.models = make(map[string]ModelInfo, len(m))
	for k, v := range m {
		models.models[k] = named(k, v)
	}
}

// MergeCatalog adds or replaces entries.
func MergeCatalog(m map[string]ModelInfo) {
	models.mu.Lock()
	defer models.mu.Unlock()
	for k, v := range m {
		models.models[k] = named(k, v)
	}
}

// Catalog returns a copy of the current catalog.
func Catalog() map[string]ModelInfo {
	models.mu.RLock()
	defer models.mu.RUnlock()
	return maps.Clone(models.models)
}

// CatalogNames lists the catalog's model names in sorted order.
func CatalogNames() []string {
	models.mu.RLock()
	defer models.mu.RUnlock()
	return slices.Sorted(maps.Keys(models.models))
}

func named(key string, mi ModelInfo) ModelInfo {
	if mi.Name == "" {
		mi.Name = key
	}
	return mi
}
