package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"journalrag/internal/apperror"
	"journalrag/internal/chat"
	"journalrag/internal/chunk"
	"journalrag/internal/middleware"
	"journalrag/internal/retrieval"
)

type Searcher interface {
	SimilaritySearch(ctx context.Context, q retrieval.Query) ([]chunk.Hit, error)
}

type Chatter interface {
	Chat(ctx context.Context, req chat.Request) (chat.Answer, error)
}

type Handler struct {
	service        *Service
	search         Searcher
	chat           Chatter
	settings       SettingsProvider
	maxUploadBytes int64
}

func NewHandler(service *Service, search Searcher, chat Chatter, settings SettingsProvider, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	return &Handler{service: service, search: search, chat: chat, settings: settings, maxUploadBytes: maxUploadBytes}
}

// queryRequest is the body of similarity_search and chat. Omitted fields fall
// back to the runtime settings.
type queryRequest struct {
	Query    string   `json:"query"`
	K        *int     `json:"k,omitempty"`
	MinScore *float64 `json:"min_score,omitempty"`
	FetchK   *int     `json:"fetch_k,omitempty"`
}

type searchResponse struct {
	Query    string      `json:"query"`
	K        int         `json:"k"`
	MinScore float64     `json:"min_score"`
	Results  []chunk.Hit `json:"results"`
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	var chunks []chunk.Chunk
	if err := json.NewDecoder(r.Body).Decode(&chunks); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(ctx, w, "VALIDATION_ERROR", "Payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid JSON: expected a list of chunks", http.StatusBadRequest)
		return
	}

	count, err := h.service.Upload(ctx, chunks)
	if err != nil {
		h.fail(ctx, w, "upload failed", err)
		return
	}

	slog.InfoContext(ctx, "chunks uploaded", "count", count)
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("Successfully uploaded %d chunks", count),
		"count":   count,
	})
}

func (h *Handler) SimilaritySearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid JSON", http.StatusBadRequest)
		return
	}

	s := h.settings.Effective(ctx)
	q := retrieval.Query{
		Text:     req.Query,
		K:        intOr(req.K, s.SearchTopK),
		MinScore: floatOr(req.MinScore, s.SearchMinScore),
		FetchK:   intOr(req.FetchK, s.FetchK),
	}

	hits, err := h.search.SimilaritySearch(ctx, q)
	if err != nil {
		h.fail(ctx, w, "similarity search failed", err)
		return
	}
	if hits == nil {
		hits = []chunk.Hit{}
	}

	h.writeJSON(ctx, w, http.StatusOK, searchResponse{Query: q.Text, K: q.K, MinScore: q.MinScore, Results: hits})
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid JSON", http.StatusBadRequest)
		return
	}

	s := h.settings.Effective(ctx)
	ans, err := h.chat.Chat(ctx, chat.Request{
		Query:    req.Query,
		K:        intOr(req.K, s.ChatTopK),
		MinScore: floatOr(req.MinScore, s.ChatMinScore),
		FetchK:   intOr(req.FetchK, s.FetchK),
	})
	if err != nil {
		h.fail(ctx, w, "chat failed", err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, ans)
}

func (h *Handler) UsageStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totals, err := h.service.UsageStatistics(ctx)
	if err != nil {
		h.fail(ctx, w, "usage statistics failed", err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, totals)
}

func (h *Handler) JournalContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("journal_id")

	chunks, err := h.service.JournalContent(ctx, id)
	if err != nil {
		h.fail(ctx, w, "journal content failed", err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, chunks)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	status, code := apperror.Status(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, msg, "error", err)
	} else {
		slog.WarnContext(ctx, msg, "error", err)
	}
	h.writeError(ctx, w, code, err.Error(), status)
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
