// Package websearch answers queries from a Bing-style web search API when
// the local knowledge base has nothing relevant.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Fixed response texts. "Not configured" is a valid steady state for
// deployments without a search subscription, not a failure.
const (
	MsgNotConfigured = "Web search is not configured."
	MsgNoResults     = "No relevant information found on the web."
)

const (
	resultCount    = 3
	defaultTimeout = 15 * time.Second
)

// Generator produces a completion for a prompt. Satisfied by
// *llama.Generator.
type Generator interface {
	Generate(ctx context.Context, prompt string) string
}

// Client queries the search API and summarizes result snippets through the
// generation service.
type Client struct {
	endpoint string
	key      string
	gen      Generator
	client   *http.Client
	logger   *slog.Logger
}

// New creates a web search client. Endpoint or key may be empty, in which
// case Answer returns MsgNotConfigured.
func New(endpoint, key string, gen Generator, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: endpoint,
		key:      key,
		gen:      gen,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   logger,
	}
}

// Configured reports whether a search endpoint and key are set.
func (c *Client) Configured() bool {
	return c.endpoint != "" && c.key != ""
}

type searchResponse struct {
	WebPages struct {
		Value []struct {
			Snippet string `json:"snippet"`
		} `json:"value"`
	} `json:"webPages"`
}

// Answer searches the web for query and returns a generated summary of the
// top snippets. Transport failures are converted into a descriptive string;
// Answer never returns an error to its caller.
func (c *Client) Answer(ctx context.Context, query string) string {
	if !c.Configured() {
		return MsgNotConfigured
	}

	snippets, err := c.search(ctx, query)
	if err != nil {
		c.logger.Warn("web search failed", slog.String("error", err.Error()))
		return fmt.Sprintf("Error during web search: %v", err)
	}
	if len(snippets) == 0 {
		return MsgNoResults
	}

	prompt := fmt.Sprintf("Summarize the following search results for the query %q:\n\n%s",
		query, strings.Join(snippets, "\n"))
	return c.gen.Generate(ctx, prompt)
}

func (c *Client) search(ctx context.Context, query string) ([]string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("websearch: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", fmt.Sprint(resultCount))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: build request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("websearch: unexpected status %s", resp.Status)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("websearch: decode response: %w", err)
	}

	var snippets []string
	for _, v := range out.WebPages.Value {
		if v.Snippet != "" {
			snippets = append(snippets, v.Snippet)
		}
	}
	return snippets, nil
}
