// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the knowledge base tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mimir/internal/ingest"
	"github.com/starford/mimir/internal/query"
	"github.com/starford/mimir/internal/store"
)

// Server wraps the MCP server with knowledge base tools. Stdio transport
// carries no session, so every tool takes an explicit user_id.
type Server struct {
	mcp      *server.MCPServer
	store    *store.Store
	queries  *query.Pipeline
	pipeline *ingest.Pipeline
}

// New creates an MCP server with all tools registered.
func New(st *store.Store, queries *query.Pipeline, pipeline *ingest.Pipeline) *Server {
	s := &Server{store: st, queries: queries, pipeline: pipeline}

	s.mcp = server.NewMCPServer(
		"Mimir",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_knowledge_base",
		mcp.WithDescription("Answer a question from the user's knowledge base, "+
			"falling back to web search when the knowledge base has nothing relevant."),
		mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Owner of the knowledge base")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Question to answer")),
	), s.searchKnowledgeBase)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the documents in the user's knowledge base."),
		mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Owner of the knowledge base")),
		mcp.WithString("type", mcp.Description("Optional document type filter: txt, pdf, or xlsx")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("ingest_document",
		mcp.WithDescription("Ingest a file on the server's filesystem into the user's knowledge base."),
		mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Owner of the knowledge base")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the file to ingest")),
		mcp.WithString("source", mcp.Description("Optional origin URL recorded with the document")),
		mcp.WithString("tags", mcp.Description("Optional comma-separated tags")),
	), s.ingestDocument)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchKnowledgeBase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := requireUserID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := s.queries.Answer(ctx, userID, q)
	out, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := requireUserID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var filter store.DocumentFilter
	if t, err := req.RequireString("type"); err == nil {
		filter.Type = t
	}

	docs, err := s.store.ListDocuments(ctx, userID, filter)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText("no documents"), nil
	}
	out, _ := json.MarshalIndent(docs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) ingestDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := requireUserID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	docType := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if !ingest.SupportedType(docType) {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported file type: %s", path)), nil
	}

	source := ""
	if v, err := req.RequireString("source"); err == nil {
		source = v
	}
	tags := ""
	if v, err := req.RequireString("tags"); err == nil {
		tags = v
	}

	doc, err := s.pipeline.Ingest(ctx, userID, path, docType, source, tags)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("ingested document %d: %s", doc.ID, doc.FilePath)), nil
}

func requireUserID(req mcp.CallToolRequest) (int64, error) {
	raw, err := req.RequireFloat("user_id")
	if err != nil {
		return 0, err
	}
	id := int64(raw)
	if id <= 0 {
		return 0, fmt.Errorf("user_id must be positive")
	}
	return id, nil
}
