// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ProviderAdapter is the channel to one backend. Implementations are
// looked up by provider name; each provider has exactly one adapter.
type ProviderAdapter interface {
	Name() string
	Send(ctx context.Context, req Request) (*Response, error)
}

// BrowserEngine is the automation channel adapters and the orchestrator
// fall back to when a provider has no direct API.
type BrowserEngine interface {
	Send(ctx context.Context, provider, prompt, contextBlock string) (string, error)
	Active() bool
	Close() error
}

// AdapterConfig carries the per-provider API keys. An empty key means
// that provider's adapter drives the browser engine instead.
type AdapterConfig struct {
	AnthropicKey string
	OpenAIKey    string
	GeminiKey    string
}

// Default models for the direct API channels.
const (
	anthropicModel = "claude-3-5-sonnet-20241022"
	openAIModel    = "gpt-4o"
	geminiModel    = "gemini-1.5-pro"
)

const adapterTimeout = 60 * time.Second

// NewAdapters builds the adapter set keyed by provider name. Providers
// with an API key get a direct API adapter; the rest drive the browser
// engine.
func NewAdapters(cfg AdapterConfig, engine BrowserEngine) map[string]ProviderAdapter {
	client := &http.Client{Timeout: adapterTimeout}

	adapters := make(map[string]ProviderAdapter, 3)

	if cfg.AnthropicKey != "" {
		adapters["claude"] = &anthropicAdapter{apiKey: cfg.AnthropicKey, client: client}
	} else {
		adapters["claude"] = &browserAdapter{provider: "claude", confidence: 0.9, engine: engine}
	}

	if cfg.OpenAIKey != "" {
		adapters["chatgpt"] = &openAIAdapter{apiKey: cfg.OpenAIKey, client: client}
	} else {
		adapters["chatgpt"] = &browserAdapter{provider: "chatgpt", confidence: 0.85, engine: engine}
	}

	if cfg.GeminiKey != "" {
		adapters["gemini"] = &geminiAdapter{apiKey: cfg.GeminiKey, client: client}
	} else {
		adapters["gemini"] = &browserAdapter{provider: "gemini", confidence: 0.8, engine: engine}
	}

	return adapters
}

// browserAdapter drives a provider's web interface through the shared
// automation engine.
type browserAdapter struct {
	provider   string
	confidence float64
	engine     BrowserEngine
}

func (a *browserAdapter) Name() string {
	return a.provider
}

func (a *browserAdapter) Send(ctx context.Context, req Request) (*Response, error) {
	content, err := a.engine.Send(ctx, a.provider, req.Query, req.Context)
	if err != nil {
		return nil, newProviderError(a.provider, CodeAutomationFailed, "browser automation failed", err)
	}
	return &Response{
		Content:    content,
		Confidence: a.confidence,
	}, nil
}

// anthropicAdapter implements the Anthropic messages API.
type anthropicAdapter struct {
	apiKey string
	client *http.Client
}

func (a *anthropicAdapter) Name() string {
	return "claude"
}

func (a *anthropicAdapter) Send(ctx context.Context, req Request) (*Response, error) {
	body := map[string]interface{}{
		"model":      anthropicModel,
		"max_tokens": req.MaxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": req.Query},
		},
	}
	if req.Context != "" {
		body["system"] = req.Context
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", "https://api.anthropic.com/v1/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, newProviderError("claude", CodeProviderCallFailed, "anthropic API call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, newProviderError("claude", CodeProviderCallFailed,
			fmt.Sprintf("anthropic API error: %s", string(payload)), nil)
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	content := ""
	if len(parsed.Content) > 0 {
		content = parsed.Content[0].Text
	}

	return &Response{
		Content:    content,
		TokensUsed: parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		Confidence: 0.9,
	}, nil
}

// openAIAdapter implements the OpenAI chat completions API.
type openAIAdapter struct {
	apiKey string
	client *http.Client
}

func (a *openAIAdapter) Name() string {
	return "chatgpt"
}

func (a *openAIAdapter) Send(ctx context.Context, req Request) (*Response, error) {
	messages := []map[string]string{}
	if req.Context != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.Context})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Query})

	body := map[string]interface{}{
		"model":      openAIModel,
		"messages":   messages,
		"max_tokens": req.MaxTokens,
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, newProviderError("chatgpt", CodeProviderCallFailed, "OpenAI API call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, newProviderError("chatgpt", CodeProviderCallFailed,
			fmt.Sprintf("OpenAI API error: %s", string(payload)), nil)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	content := ""
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
	}

	return &Response{
		Content:    content,
		TokensUsed: parsed.Usage.TotalTokens,
		Confidence: 0.85,
	}, nil
}

// geminiAdapter implements the Gemini generateContent API.
type geminiAdapter struct {
	apiKey string
	client *http.Client
}

func (a *geminiAdapter) Name() string {
	return "gemini"
}

func (a *geminiAdapter) Send(ctx context.Context, req Request) (*Response, error) {
	prompt := req.Query
	if req.Context != "" {
		prompt = req.Context + "\n" + req.Query
	}

	body := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]interface{}{
			"maxOutputTokens": req.MaxTokens,
		},
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s",
		geminiModel, url.QueryEscape(a.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, newProviderError("gemini", CodeProviderCallFailed, "Gemini API call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, newProviderError("gemini", CodeProviderCallFailed,
			fmt.Sprintf("Gemini API error: %s", string(payload)), nil)
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		UsageMetadata struct {
			TotalTokenCount int `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	content := ""
	if len(parsed.Candidates) > 0 && len(parsed.Candidates[0].Content.Parts) > 0 {
		content = parsed.Candidates[0].Content.Parts[0].Text
	}

	return &Response{
		Content:    content,
		TokensUsed: parsed.UsageMetadata.TotalTokenCount,
		Confidence: 0.8,
	}, nil
}
