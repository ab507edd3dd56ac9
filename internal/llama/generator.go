package llama

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// DefaultGenerationTimeout bounds a single chat completion request.
const DefaultGenerationTimeout = 120 * time.Second

// thinkRe matches delimited reasoning blocks some models embed in their
// output; they are stripped before the completion is returned.
var thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Generator sends single-turn chat requests to the llama-server completions
// endpoint.
type Generator struct {
	url         string
	model       string
	temperature float64
	client      *http.Client
	logger      *slog.Logger
}

// NewGenerator creates a generation client for the given endpoint URL.
func NewGenerator(url, model string, timeout time.Duration, logger *slog.Logger) *Generator {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		url:         url,
		model:       model,
		temperature: 0.7,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate posts a single-turn chat request and returns the cleaned
// completion. On failure it returns a human-readable error string instead of
// an error, so the calling pipeline can still produce a (degraded) response.
func (g *Generator) Generate(ctx context.Context, prompt string) string {
	req := chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: g.temperature,
	}

	var out chatResponse
	if err := postJSON(ctx, g.client, g.url, req, &out); err != nil {
		g.logger.Warn("generation request failed", slog.String("error", err.Error()))
		return "Error calling llama server: " + err.Error()
	}
	if len(out.Choices) == 0 {
		g.logger.Warn("generation returned no choices")
		return "Error calling llama server: empty response"
	}

	content := thinkRe.ReplaceAllString(out.Choices[0].Message.Content, "")
	return strings.TrimSpace(content)
}
