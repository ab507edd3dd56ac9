// Package aggregator periodically pulls the RSS feeds of every user,
// extracts the linked article text, and ingests it into the owner's
// knowledge base.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/starford/mimir/internal/ingest"
	"github.com/starford/mimir/internal/notify"
	"github.com/starford/mimir/internal/sse"
	"github.com/starford/mimir/internal/store"
)

const fetchTimeout = 10 * time.Second

// Aggregator drives the feed polling cycle.
type Aggregator struct {
	store    *store.Store
	pipeline *ingest.Pipeline
	mailer   *notify.Mailer
	broker   *sse.Broker
	staging  string
	interval time.Duration
	logger   *slog.Logger

	parser *gofeed.Parser
	client *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates an aggregator. Articles are staged as text files under
// stagingDir before ingestion. broker may be nil when no event stream is
// wanted.
func New(st *store.Store, pipeline *ingest.Pipeline, mailer *notify.Mailer, broker *sse.Broker, stagingDir string, interval time.Duration, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	client := &http.Client{Timeout: fetchTimeout}
	parser := gofeed.NewParser()
	parser.Client = client
	return &Aggregator{
		store:    st,
		pipeline: pipeline,
		mailer:   mailer,
		broker:   broker,
		staging:  stagingDir,
		interval: interval,
		logger:   logger,
		parser:   parser,
		client:   client,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Run polls all feeds once immediately and then on every interval tick
// until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) error {
	a.logger.Info("feed aggregator started", slog.Duration("interval", a.interval))

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if err := a.RunOnce(ctx); err != nil {
			a.logger.Error("aggregation cycle failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			a.logger.Info("feed aggregator stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce processes every feed of every user. Per-feed and per-article
// failures are logged and skipped; only store access errors abort the
// cycle.
func (a *Aggregator) RunOnce(ctx context.Context) error {
	if err := os.MkdirAll(a.staging, 0o755); err != nil {
		return fmt.Errorf("aggregator: create staging dir: %w", err)
	}

	users, err := a.store.AllUsers(ctx)
	if err != nil {
		return err
	}

	for _, user := range users {
		feeds, err := a.store.ListFeeds(ctx, user.ID)
		if err != nil {
			return err
		}
		for _, feed := range feeds {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.processFeed(ctx, user, feed)
		}
	}
	return nil
}

func (a *Aggregator) processFeed(ctx context.Context, user store.User, feed store.Feed) {
	parsed, err := a.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		a.logger.Warn("feed parse failed",
			slog.String("url", feed.URL),
			slog.String("error", err.Error()))
		return
	}

	for _, entry := range parsed.Items {
		if ctx.Err() != nil {
			return
		}
		if entry.Link == "" {
			continue
		}
		if err := a.processEntry(ctx, user, entry); err != nil {
			a.logger.Warn("feed entry skipped",
				slog.String("link", entry.Link),
				slog.String("error", err.Error()))
		}
	}
}

func (a *Aggregator) processEntry(ctx context.Context, user store.User, entry *gofeed.Item) error {
	content, err := a.articleContent(ctx, entry.Link)
	if err != nil {
		return err
	}
	if content == "" {
		return fmt.Errorf("no paragraph text at %s", entry.Link)
	}

	path := filepath.Join(a.staging, fmt.Sprintf("%d_%s.txt", user.ID, sanitizeName(entry.Link)))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("stage article: %w", err)
	}

	tags := strings.Join(entry.Categories, ",")
	doc, err := a.pipeline.Ingest(ctx, user.ID, path, ingest.TypeText, entry.Link, tags)
	if err != nil {
		return err
	}

	a.mailer.Send(ctx, "New Document Added to Knowledge Base",
		fmt.Sprintf("A new document from %s has been added for user %s.", entry.Link, user.Username))

	if a.broker != nil {
		a.broker.Publish(user.ID, sse.Event{
			Type: sse.EventFeedArticle,
			Data: map[string]any{
				"document_id": doc.ID,
				"title":       entry.Title,
				"url":         entry.Link,
			},
		})
	}
	return nil
}

// articleContent fetches the page and joins the text of its <p> elements,
// one paragraph per line. Fetches are rate limited per host.
func (a *Aggregator) articleContent(ctx context.Context, link string) (string, error) {
	if err := a.waitHost(ctx, link); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: unexpected status %s", link, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	var paragraphs []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	return strings.Join(paragraphs, "\n"), nil
}

// waitHost blocks until the per-host limiter admits one request.
func (a *Aggregator) waitHost(ctx context.Context, link string) error {
	u, err := url.Parse(link)
	if err != nil {
		return err
	}

	a.mu.Lock()
	limiter, ok := a.limiters[u.Host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Second), 1)
		a.limiters[u.Host] = limiter
	}
	a.mu.Unlock()

	return limiter.Wait(ctx)
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeName(s string) string {
	return strings.Trim(unsafeNameChars.ReplaceAllString(s, "_"), "_")
}
