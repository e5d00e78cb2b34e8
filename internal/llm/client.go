// Package llm is the completion collaborator: an OpenAI-compatible
// /chat/completions client pointed at a Groq-style endpoint. The core
// treats any failure here as "no reply produced" and leaves memory
// state unchanged for the turn.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kokonet/kokobot/internal/config"
	"github.com/kokonet/kokobot/internal/memory"
)

// ErrUpstream marks completion failures: transport errors, non-success
// statuses and unusable response bodies. Callers branch with errors.Is.
var ErrUpstream = errors.New("upstream completion failure")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer is what the gateway needs from this package; satisfied by
// *Client and by test doubles.
type Completer interface {
	Complete(ctx context.Context, msgs []Message) (string, error)
	Summarize(ctx context.Context, turns []memory.Turn) (string, error)
}

type Client struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

func New(cfg config.ProviderConfig) *Client {
	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

const summarizeInstruction = `Compress the following conversation into a short digest.
Preserve concrete facts about the user, their preferences, and how the
relationship has developed. Plain text, at most five sentences.

Conversation:
%s`

// Complete sends the messages and returns the assistant text.
func (c *Client) Complete(ctx context.Context, msgs []Message) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", fmt.Errorf("missing api key: %w", ErrUpstream)
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("missing base url: %w", ErrUpstream)
	}
	if c.model == "" {
		return "", fmt.Errorf("missing model: %w", ErrUpstream)
	}

	body := map[string]any{
		"model":       c.model,
		"messages":    msgs,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w: %w", ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion status %d: %s: %w", resp.StatusCode, truncate(string(respBody), 200), ErrUpstream)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w: %w", ErrUpstream, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty choices: %w", ErrUpstream)
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// Summarize compresses old history turns into a digest via the
// completion API.
func (c *Client) Summarize(ctx context.Context, turns []memory.Turn) (string, error) {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(t.Role)
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}
	return c.Complete(ctx, []Message{{
		Role:    "user",
		Content: fmt.Sprintf(summarizeInstruction, sb.String()),
	}})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
