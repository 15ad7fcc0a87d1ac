package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/voiceagent/internal/convo"
	"github.com/ent0n29/voiceagent/internal/reliability"
)

const providerGroq = "groq"

type GroqConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	// Stream requests server-sent events and joins the deltas.
	Stream  bool
	Timeout time.Duration
}

// GroqCompleter calls an OpenAI-compatible /chat/completions endpoint.
type GroqCompleter struct {
	cfg    GroqConfig
	client *http.Client
}

func NewGroqCompleter(cfg GroqConfig) *GroqCompleter {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.groq.com/openai/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "llama-3.1-8b-instant"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &GroqCompleter{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
		Delta   chatMessage `json:"delta"`
	} `json:"choices"`
}

func (c *GroqCompleter) Complete(ctx context.Context, history []convo.Message) (string, error) {
	req := chatRequest{
		Model:       c.cfg.Model,
		Messages:    make([]chatMessage, 0, len(history)),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      c.cfg.Stream,
	}
	for _, m := range history {
		req.Messages = append(req.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	res, err := c.client.Do(httpReq)
	if err != nil {
		return "", reliability.TransportError(providerGroq, "llm", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", reliability.HTTPError(providerGroq, "llm", res.StatusCode, strings.TrimSpace(string(body)))
	}

	if strings.Contains(strings.ToLower(res.Header.Get("Content-Type")), "text/event-stream") {
		return c.consumeStreaming(res.Body)
	}

	var out chatResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", &reliability.ProviderError{Provider: providerGroq, Stage: "llm", Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Choices) == 0 {
		return "", &reliability.ProviderError{Provider: providerGroq, Stage: "llm", Err: fmt.Errorf("response has no choices")}
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (c *GroqCompleter) consumeStreaming(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if line == "[DONE]" {
			break
		}
		var chunk chatResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			out.WriteString(choice.Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", reliability.TransportError(providerGroq, "llm", fmt.Errorf("stream read: %w", err))
	}
	return strings.TrimSpace(out.String()), nil
}
