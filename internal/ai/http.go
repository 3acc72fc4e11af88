package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const systemPrompt = "You are an expert cover letter writer."

// httpCompleter posts a JSON body and extracts text from the JSON reply
type httpCompleter struct {
	name     string
	endpoint string
	headers  map[string]string
	body     func(prompt string) any
	parse    func(raw []byte) (string, error)
	client   *http.Client
	cfg      Config
}

func (c *httpCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	jsonData, err := json.Marshal(c.body(prompt))
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", classifyTransport(c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport(c.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(c.name, resp.StatusCode, body)
	}

	text, err := c.parse(body)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrProvider, c.name, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s returned an empty completion", ErrProvider, c.name)
	}
	return text, nil
}

func (c *httpCompleter) Close() error { return nil }

func baseURL(cfg Config, fallback string) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	return fallback
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// newOpenAICompatible serves OpenAI and Groq, which share the chat completions API
func newOpenAICompatible(cfg Config, name, root string) *httpCompleter {
	return &httpCompleter{
		name:     name,
		endpoint: baseURL(cfg, root) + "/v1/chat/completions",
		headers:  map[string]string{"Authorization": "Bearer " + cfg.APIKey},
		client:   &http.Client{},
		cfg:      cfg,
		body: func(prompt string) any {
			return map[string]any{
				"model": cfg.Model,
				"messages": []chatMessage{
					{Role: "system", Content: systemPrompt},
					{Role: "user", Content: prompt},
				},
				"temperature": 0.7,
				"max_tokens":  1000,
			}
		},
		parse: func(raw []byte) (string, error) {
			var result struct {
				Choices []struct {
					Message chatMessage `json:"message"`
				} `json:"choices"`
			}
			if err := json.Unmarshal(raw, &result); err != nil {
				return "", err
			}
			if len(result.Choices) == 0 {
				return "", fmt.Errorf("unexpected response format: no choices")
			}
			return result.Choices[0].Message.Content, nil
		},
	}
}

func newAnthropic(cfg Config) *httpCompleter {
	return &httpCompleter{
		name:     "Anthropic",
		endpoint: baseURL(cfg, "https://api.anthropic.com") + "/v1/messages",
		headers: map[string]string{
			"x-api-key":         cfg.APIKey,
			"anthropic-version": "2023-06-01",
		},
		client: &http.Client{},
		cfg:    cfg,
		body: func(prompt string) any {
			return map[string]any{
				"model":       cfg.Model,
				"max_tokens":  1000,
				"temperature": 0.7,
				"messages":    []chatMessage{{Role: "user", Content: prompt}},
			}
		},
		parse: func(raw []byte) (string, error) {
			var result struct {
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			}
			if err := json.Unmarshal(raw, &result); err != nil {
				return "", err
			}
			var parts []string
			for _, block := range result.Content {
				if block.Type == "" || block.Type == "text" {
					parts = append(parts, block.Text)
				}
			}
			if len(parts) == 0 {
				return "", fmt.Errorf("unexpected response format: no text content")
			}
			return strings.Join(parts, ""), nil
		},
	}
}

func newOllama(cfg Config) *httpCompleter {
	return &httpCompleter{
		name:     "Ollama",
		endpoint: baseURL(cfg, "http://localhost:11434") + "/api/generate",
		headers:  map[string]string{},
		client:   &http.Client{},
		cfg:      cfg,
		body: func(prompt string) any {
			return map[string]any{
				"model":  cfg.Model,
				"system": systemPrompt,
				"prompt": prompt,
				"stream": false,
			}
		},
		parse: func(raw []byte) (string, error) {
			var result struct {
				Response string `json:"response"`
			}
			if err := json.Unmarshal(raw, &result); err != nil {
				return "", err
			}
			return result.Response, nil
		},
	}
}
