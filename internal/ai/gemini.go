package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	genai "google.golang.org/genai"
)

// GeminiClient adapts the official genai client to Runtime. The underlying
// client is created on first use.
type GeminiClient struct {
	apiKey      string
	httpTimeout time.Duration

	once sync.Once
	cli  *genai.Client
	err  error
}

func NewGeminiClient(apiKey string, httpTimeout time.Duration) *GeminiClient {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	return &GeminiClient{apiKey: apiKey, httpTimeout: httpTimeout}
}

func (g *GeminiClient) client(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		g.cli, g.err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     g.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: &http.Client{Timeout: g.httpTimeout},
		})
	})
	return g.cli, g.err
}

func (g *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey)
	}
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	cli, err := g.client(ctx)
	if err != nil {
		return nil, &FatalError{Err: fmt.Errorf("create gemini client: %w", err)}
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
		case "assistant":
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}

	model := strings.TrimPrefix(req.Model, "google/")
	resp, err := cli.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, mapGeminiError(err)
	}
	text := resp.Text()
	if text == "" {
		return nil, ErrEmptyResponse
	}
	out := &GenerateResponse{
		Choices: []Choice{{Message: Message{Role: "assistant", Content: text}}},
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func mapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		e := &APIError{StatusCode: apiErr.Code, Code: apiErr.Status, Message: apiErr.Message}
		return classifyAPIError(e, http.Header{})
	}
	return fmt.Errorf("http request: %w", err)
}
