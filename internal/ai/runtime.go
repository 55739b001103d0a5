package ai

import "context"

// Runtime is a single-attempt completion backend.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used across the CLI for selection.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderOpenAISDK  = "openai-sdk"
	ProviderGemini     = "gemini"
	ProviderOllama     = "ollama"
)

// IsLocal reports providers that run without credentials.
func IsLocal(provider string) bool {
	return provider == ProviderOllama
}
