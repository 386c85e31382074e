package aiprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/QUSEIT/simacode-sub000/pkg/httpclient"
)

const anthropicDefaultHost = "https://api.anthropic.com/v1"

// AnthropicConfig configures an Anthropic-compatible messages endpoint.
type AnthropicConfig struct {
	Host       string
	APIKey     string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
}

// AnthropicProvider implements aiprovider.Provider against the messages
// API.
type AnthropicProvider struct {
	cfg    AnthropicConfig
	client *httpclient.Client
}

// NewAnthropicProvider constructs a provider from cfg, defaulting Host,
// MaxTokens, and Timeout when unset.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	if cfg.Host == "" {
		cfg.Host = anthropicDefaultHost
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	client := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
	)

	return &AnthropicProvider{cfg: cfg, client: client}
}

func (p *AnthropicProvider) Name() string { return "anthropic:" + p.cfg.Model }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *AnthropicProvider) do(ctx context.Context, req anthropicRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("aiprovider/anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("aiprovider/anthropic: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("aiprovider/anthropic: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("aiprovider/anthropic: read response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("aiprovider/anthropic: decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("aiprovider/anthropic: %s", parsed.Error.Message)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("aiprovider/anthropic: empty response")
	}
	return parsed.Content[0].Text, nil
}

func (p *AnthropicProvider) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := anthropicRequest{
		Model:     p.cfg.Model,
		System:    systemPrompt,
		MaxTokens: p.cfg.MaxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: userPrompt}},
	}
	return p.do(ctx, req)
}

// GenerateStructured asks for JSON by instruction (Anthropic's messages API
// has no native JSON-schema response_format), appending the schema to the
// system prompt and parsing the reply as JSON.
func (p *AnthropicProvider) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any, out any) error {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("aiprovider/anthropic: marshal schema: %w", err)
	}

	augmentedSystem := systemPrompt + "\n\nRespond with JSON matching exactly this schema, and nothing else:\n" + string(schemaJSON)

	text, err := p.GenerateText(ctx, augmentedSystem, userPrompt)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("aiprovider/anthropic: unmarshal structured output: %w", err)
	}
	return nil
}
