package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// geminiCompleter implements Completer for Google Gemini
type geminiCompleter struct {
	client *genai.Client
	cfg    Config
}

func newGemini(ctx context.Context, cfg Config) (*geminiCompleter, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &geminiCompleter{client: client, cfg: cfg}, nil
}

func (c *geminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	model := c.client.GenerativeModel(c.cfg.Model)
	model.SetTemperature(0.7)
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyGemini(err)
	}

	text, err := extractText(resp)
	if err != nil {
		return "", fmt.Errorf("%w: Gemini: %v", ErrProvider, err)
	}
	return text, nil
}

func (c *geminiCompleter) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// classifyGemini maps SDK errors onto the error classes. The SDK surfaces
// either *googleapi.Error or a status-bearing error whose text names the code.
func classifyGemini(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return classifyStatus("Gemini", gerr.Code, []byte(gerr.Message))
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "API_KEY_INVALID"), strings.Contains(msg, "PermissionDenied"), strings.Contains(msg, "Unauthenticated"):
		return classifyStatus("Gemini", http.StatusUnauthorized, []byte(msg))
	case strings.Contains(msg, "ResourceExhausted"), strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return classifyStatus("Gemini", http.StatusTooManyRequests, []byte(msg))
	case strings.Contains(msg, "DeadlineExceeded"):
		return fmt.Errorf("%w: Gemini: %v", ErrTimeout, err)
	}
	return classifyTransport("Gemini", err)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	text := strings.TrimSpace(strings.Join(parts, ""))
	if text == "" {
		return "", fmt.Errorf("empty completion")
	}
	return text, nil
}
