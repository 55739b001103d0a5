package ai

// PresetCatalog returns the built-in models served by provider, ready to
// merge into or replace the catalog.
func PresetCatalog(provider string) (map[string]ModelInfo, bool) {
	if provider == ProviderOpenAISDK {
		provider = ProviderOpenAI
	}
	out := map[string]ModelInfo{}
	for _, mi := range builtinModels {
		if mi.Provider == provider {
			out[mi.Name] = mi
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// Model tiers understood by RecommendModel.
const (
	TierCheap       = "cheap"
	TierBalanced    = "balanced"
	TierHighContext = "high-context"
)

var recommended = map[string]map[string]string{
	TierCheap: {
		ProviderOpenRouter: "openai/gpt-4o-mini",
		ProviderOpenAI:     "gpt-4o-mini",
		ProviderGemini:     "gemini-2.5-flash",
		ProviderOllama:     "llama3.1:8b-instruct",
	},
	TierBalanced: {
		ProviderOpenRouter: "openai/gpt-4o",
		ProviderOpenAI:     "gpt-4o",
		ProviderGemini:     "gemini-2.5-flash",
		ProviderOllama:     "mistral-nemo:latest",
	},
	// Large windows fit bigger batches, so fewer requests per repository.
	TierHighContext: {
		ProviderOpenRouter: "anthropic/claude-3.5-sonnet",
		ProviderOpenAI:     "gpt-4o",
		ProviderGemini:     "gemini-2.5-pro",
		ProviderOllama:     "phi3:mini-128k-instruct",
	},
}

// RecommendModel names a model for the tier on provider. An empty provider
// means openrouter.
func RecommendModel(provider, tier string) (string, bool) {
	switch provider {
	case "":
		provider = ProviderOpenRouter
	case ProviderOpenAISDK:
		provider = ProviderOpenAI
	}
	name, ok := recommended[tier][provider]
	return name, ok
}
