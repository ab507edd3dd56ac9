// Package reports derives analytical summaries from a user's document
// corpus: a keyword frequency report and a TF-IDF k-means clustering
// report.
package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/mimir/internal/ingest"
	"github.com/starford/mimir/internal/store"
)

// Report errors surfaced to API callers.
var (
	ErrNoDocuments         = errors.New("reports: no documents found for this user")
	ErrNoReadableDocuments = errors.New("reports: could not read any documents")
	ErrNotEnoughDocuments  = errors.New("reports: not enough documents to generate a cluster report")
)

const (
	keywordCount = 10
	clusterCount = 5
	clusterTerms = 10
	clusterSeed  = 42
)

// Service builds reports from documents on disk. Content is re-read per
// request rather than cached; corpora are small enough that this stays
// cheap.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

// NewService creates a report service.
func NewService(st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger}
}

// Keywords returns the user's top terms by total occurrence across all
// readable documents, stopword-filtered and alphabetically ordered.
func (s *Service) Keywords(ctx context.Context, userID int64) ([]string, error) {
	contents, err := s.readCorpus(ctx, userID)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, text := range contents {
		for _, tok := range tokenize(text) {
			counts[tok]++
		}
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > keywordCount {
		terms = terms[:keywordCount]
	}
	sort.Strings(terms)
	return terms, nil
}

// Clusters groups the user's documents into a fixed number of k-means
// clusters over TF-IDF vectors and returns the top terms nearest each
// centroid, keyed "Cluster 1" through "Cluster 5". Requires at least as
// many readable documents as clusters.
func (s *Service) Clusters(ctx context.Context, userID int64) (map[string][]string, error) {
	docs, err := s.store.ListDocuments(ctx, userID, store.DocumentFilter{})
	if err != nil {
		return nil, err
	}
	if len(docs) < clusterCount {
		return nil, ErrNotEnoughDocuments
	}

	contents := s.readDocs(docs)
	if len(contents) < clusterCount {
		return nil, ErrNotEnoughDocuments
	}

	terms, vectors := corpusVectors(contents)
	centroids := kMeans(vectors, clusterCount, clusterSeed)

	report := make(map[string][]string, clusterCount)
	for i, centroid := range centroids {
		order := make([]int, len(terms))
		for j := range order {
			order[j] = j
		}
		sort.Slice(order, func(a, b int) bool {
			if centroid[order[a]] != centroid[order[b]] {
				return centroid[order[a]] > centroid[order[b]]
			}
			return order[a] < order[b]
		})
		n := clusterTerms
		if n > len(order) {
			n = len(order)
		}
		top := make([]string, n)
		for j := 0; j < n; j++ {
			top[j] = terms[order[j]]
		}
		report[fmt.Sprintf("Cluster %d", i+1)] = top
	}
	return report, nil
}

func (s *Service) readCorpus(ctx context.Context, userID int64) ([]string, error) {
	docs, err := s.store.ListDocuments(ctx, userID, store.DocumentFilter{})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	contents := s.readDocs(docs)
	if len(contents) == 0 {
		return nil, ErrNoReadableDocuments
	}
	return contents, nil
}

// readDocs loads each document's text, skipping files that can no longer
// be read.
func (s *Service) readDocs(docs []store.Document) []string {
	contents := make([]string, 0, len(docs))
	for _, doc := range docs {
		text, err := ingest.Load(doc.FilePath, doc.DocumentType)
		if err != nil {
			s.logger.Warn("report: skipping unreadable document",
				slog.Int64("document_id", doc.ID),
				slog.String("path", doc.FilePath),
				slog.String("error", err.Error()))
			continue
		}
		contents = append(contents, text)
	}
	return contents
}
