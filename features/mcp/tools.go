package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"journalrag/internal/chat"
	"journalrag/internal/chunk"
	"journalrag/internal/retrieval"
)

type SearchInput struct {
	Query    string   `json:"query" jsonschema:"the search query"`
	K        int      `json:"k,omitempty" jsonschema:"maximum number of results (default from settings)"`
	MinScore *float64 `json:"min_score,omitempty" jsonschema:"minimum similarity score in [0,1] (default from settings)"`
}

type SearchOutput struct {
	Results []chunk.Hit `json:"results"`
	Count   int         `json:"count"`
}

type ChatInput struct {
	Query string `json:"query" jsonschema:"the question to answer from journal chunks"`
	K     int    `json:"k,omitempty" jsonschema:"number of context chunks (default from settings)"`
}

type ContentInput struct {
	JournalID string `json:"journal_id" jsonschema:"the source document id of the journal"`
}

type ContentOutput struct {
	JournalID string        `json:"journal_id"`
	Chunks    []chunk.Chunk `json:"chunks"`
}

type UsageInput struct{}

type UsageOutput struct {
	Journals []chunk.UsageTotal `json:"journals"`
}

func (h *Handler) registerTools() {
	mcp.AddTool(h.server, &mcp.Tool{
		Name:        "journal_search",
		Description: "Similarity search over journal chunks. Returns chunk id, source document id, text and a score in [0,1], best first.",
	}, h.handleSearch)

	mcp.AddTool(h.server, &mcp.Tool{
		Name:        "journal_chat",
		Description: "Answers a question from retrieved journal chunks with inline [Source: <id>] citations.",
	}, h.handleChat)

	mcp.AddTool(h.server, &mcp.Tool{
		Name:        "journal_content",
		Description: "Returns every chunk of one journal ordered by chunk index.",
	}, h.handleContent)

	mcp.AddTool(h.server, &mcp.Tool{
		Name:        "usage_statistics",
		Description: "Lists journals by how often their chunks were retrieved, most used first.",
	}, h.handleUsage)
}

func (h *Handler) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	s := h.defaults(ctx)
	q := retrieval.Query{Text: in.Query, K: s.SearchTopK, MinScore: s.SearchMinScore, FetchK: s.FetchK}
	if in.K > 0 {
		q.K = in.K
	}
	if in.MinScore != nil {
		q.MinScore = *in.MinScore
	}

	hits, err := h.search.SimilaritySearch(ctx, q)
	logTool(ctx, "journal_search", err, "result_count", len(hits))
	if err != nil {
		return nil, SearchOutput{}, err
	}
	if hits == nil {
		hits = []chunk.Hit{}
	}
	return nil, SearchOutput{Results: hits, Count: len(hits)}, nil
}

func (h *Handler) handleChat(ctx context.Context, _ *mcp.CallToolRequest, in ChatInput) (*mcp.CallToolResult, chat.Answer, error) {
	s := h.defaults(ctx)
	req := chat.Request{Query: in.Query, K: s.ChatTopK, MinScore: s.ChatMinScore, FetchK: s.FetchK}
	if in.K > 0 {
		req.K = in.K
	}

	ans, err := h.chat.Chat(ctx, req)
	logTool(ctx, "journal_chat", err, "citations", len(ans.Citations))
	if err != nil {
		return nil, chat.Answer{}, err
	}
	return nil, ans, nil
}

func (h *Handler) handleContent(ctx context.Context, _ *mcp.CallToolRequest, in ContentInput) (*mcp.CallToolResult, ContentOutput, error) {
	chunks, err := h.journals.JournalContent(ctx, in.JournalID)
	logTool(ctx, "journal_content", err, "journal_id", in.JournalID)
	if err != nil {
		return nil, ContentOutput{}, err
	}
	return nil, ContentOutput{JournalID: in.JournalID, Chunks: chunks}, nil
}

func (h *Handler) handleUsage(ctx context.Context, _ *mcp.CallToolRequest, _ UsageInput) (*mcp.CallToolResult, UsageOutput, error) {
	totals, err := h.journals.UsageStatistics(ctx)
	logTool(ctx, "usage_statistics", err, "journals", len(totals))
	if err != nil {
		return nil, UsageOutput{}, err
	}
	return nil, UsageOutput{Journals: totals}, nil
}
