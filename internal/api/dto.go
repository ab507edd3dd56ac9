package api

import (
	"github.com/starford/mimir/internal/query"
	"github.com/starford/mimir/internal/store"
)

// CredentialsRequest is the request body for register and login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries the session token after a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
}

// UpdateDocumentRequest carries the mutable document metadata. Absent
// fields are left unchanged.
type UpdateDocumentRequest struct {
	Source *string `json:"source"`
	Tags   *string `json:"tags"`
}

// BatchDeleteRequest names the documents to remove.
type BatchDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

// SearchRequest is the request body for POST /search.
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchResponse is the answer for a search (aliased from the query layer).
type SearchResponse = query.Result

// FeedRequest is the request body for adding an RSS subscription.
type FeedRequest struct {
	URL string `json:"url"`
}

// FeedResponse is one RSS subscription.
type FeedResponse struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// KeywordReportResponse wraps the keyword report.
type KeywordReportResponse struct {
	TopKeywords []string `json:"top_keywords"`
}

// DocumentResponse is one document record (aliased from the store layer).
type DocumentResponse = store.Document
