// Package llm provides language model backends for pre-call planning.
package llm

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"

	"github.com/kilianp07/salesintel/core/precall"
)

// APIKeyEnv is read when Config.APIKey is empty.
const APIKeyEnv = "GEMINI_API_KEY"

// Config selects and tunes the model.
type Config struct {
	APIKey          string `json:"api_key"`
	Model           string `json:"model"`
	MaxOutputTokens int32  `json:"max_output_tokens"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Model == "" {
		c.Model = "gemini-2.5-flash"
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = 8000
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv(APIKeyEnv)
	}
}

// Validate checks the configuration. The API key is optional here; a missing
// key is reported when a backend is built.
func (c Config) Validate() error {
	if c.MaxOutputTokens < 0 {
		return fmt.Errorf("llm.max_output_tokens must be >= 0")
	}
	return nil
}

// GenAI generates text with Google's Gemini API.
type GenAI struct {
	client *genai.Client
	model  string
	tokens int32
}

// NewGenAI creates a Gemini-backed precall.LLM.
func NewGenAI(ctx context.Context, cfg Config) (*GenAI, error) {
	cfg.SetDefaults()
	if cfg.APIKey == "" {
		return nil, precall.ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAI{client: client, model: cfg.Model, tokens: cfg.MaxOutputTokens}, nil
}

// Generate sends prompt as a single user turn.
func (g *GenAI) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: g.tokens,
	})
	if err != nil {
		return "", fmt.Errorf("genai generate: %w", err)
	}
	return resp.Text(), nil
}

// Name identifies the backend.
func (g *GenAI) Name() string { return "genai:" + g.model }

var _ precall.LLM = (*GenAI)(nil)
