package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"journalrag/internal/chat"
	"journalrag/internal/chunk"
	"journalrag/internal/retrieval"
	"journalrag/internal/settings"
)

const Version = "1.0.0"

var (
	ErrMissingSearcher = errors.New("mcp: searcher is required")
	ErrMissingChatter  = errors.New("mcp: chatter is required")
	ErrMissingJournals = errors.New("mcp: journal reader is required")
)

type Searcher interface {
	SimilaritySearch(ctx context.Context, q retrieval.Query) ([]chunk.Hit, error)
}

type Chatter interface {
	Chat(ctx context.Context, req chat.Request) (chat.Answer, error)
}

type JournalReader interface {
	UsageStatistics(ctx context.Context) ([]chunk.UsageTotal, error)
	JournalContent(ctx context.Context, journalID string) ([]chunk.Chunk, error)
}

type SettingsProvider interface {
	Effective(ctx context.Context) *settings.Settings
}

// Handler serves the journal tools over streamable HTTP.
type Handler struct {
	search   Searcher
	chat     Chatter
	journals JournalReader
	settings SettingsProvider
	server   *mcp.Server
	http     http.Handler
}

func NewHandler(s Searcher, c Chatter, j JournalReader, set SettingsProvider) (*Handler, error) {
	switch {
	case s == nil:
		return nil, ErrMissingSearcher
	case c == nil:
		return nil, ErrMissingChatter
	case j == nil:
		return nil, ErrMissingJournals
	}

	h := &Handler{
		search:   s,
		chat:     c,
		journals: j,
		settings: set,
		server:   mcp.NewServer(&mcp.Implementation{Name: "journalrag", Version: Version}, nil),
	}
	h.registerTools()
	h.http = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return h.server
	}, nil)
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.http.ServeHTTP(w, r)
}

func (h *Handler) defaults(ctx context.Context) *settings.Settings {
	if h.settings == nil {
		return settings.Defaults()
	}
	return h.settings.Effective(ctx)
}

func logTool(ctx context.Context, tool string, err error, attrs ...any) {
	if err != nil {
		slog.WarnContext(ctx, "tool execution failed", append([]any{"tool", tool, "error", err}, attrs...)...)
		return
	}
	slog.InfoContext(ctx, "tool execution completed", append([]any{"tool", tool}, attrs...)...)
}
