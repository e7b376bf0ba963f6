package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/avelik/docqa/internal/rag"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	RAG RAGService
}

// NewMCPServer creates an MCP server exposing the document question-answering
// tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"docqa",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("docqa answers questions over uploaded PDF documents with cited sources."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_documents",
			mcp.WithDescription("Ask a question over the uploaded documents and get a grounded answer with cited sources."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithNumber("max_results", mcp.Description("Maximum number of sources to use (default 5)")),
		),
		mcpAskDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("search_documents",
			mcp.WithDescription("Semantically search the uploaded documents and return relevant text chunks without generating an answer."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of chunks (default 5)")),
		),
		mcpSearchDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List the uploaded documents with their processing status."),
		),
		mcpListDocuments(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"docqa://documents",
			"Uploaded Documents",
			mcp.WithResourceDescription("All uploaded documents and their status, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceDocuments(deps),
	)

	return s
}

func mcpAskDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		maxResults := req.GetInt("max_results", rag.DefaultMaxResults)
		if maxResults <= 0 {
			maxResults = rag.DefaultMaxResults
		}
		if maxResults > maxResultsCeiling {
			maxResults = maxResultsCeiling
		}

		res, err := deps.RAG.Query(ctx, rag.QueryRequest{
			Query:        question,
			MaxResults:   maxResults,
			UseReranking: true,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("query failed: %v", err)), nil
		}

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", rag.DefaultMaxResults)
		if limit <= 0 {
			limit = rag.DefaultMaxResults
		}
		if limit > maxResultsCeiling {
			limit = maxResultsCeiling
		}

		chunks, err := deps.RAG.Search(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			DocumentID   string  `json:"document_id"`
			DocumentName string  `json:"document_name"`
			PageNumber   int     `json:"page_number"`
			Text         string  `json:"text"`
			Score        float32 `json:"score"`
		}
		results := make([]chunkResult, len(chunks))
		for i, c := range chunks {
			results[i] = chunkResult{
				DocumentID:   c.DocumentID,
				DocumentName: c.DocumentName,
				PageNumber:   c.PageNumber,
				Text:         c.Text,
				Score:        c.Score,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docs, err := deps.RAG.ListDocuments(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list documents: %v", err)), nil
		}
		if len(docs) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(docs)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal documents: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceDocuments(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		docs, err := deps.RAG.ListDocuments(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}

		type docSummary struct {
			ID         string `json:"id"`
			Filename   string `json:"filename"`
			Status     string `json:"status"`
			UploadTime string `json:"upload_time"`
			PageCount  int    `json:"page_count"`
			ChunkCount int    `json:"chunk_count"`
		}
		summaries := make([]docSummary, len(docs))
		for i, d := range docs {
			summaries[i] = docSummary{
				ID:         d.DocumentID,
				Filename:   d.Filename,
				Status:     d.Status,
				UploadTime: d.UploadTime.Format(time.RFC3339),
				PageCount:  d.PageCount,
				ChunkCount: d.ChunkCount,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal documents: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
