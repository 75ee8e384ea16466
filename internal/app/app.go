package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"journalrag/features/job"
	"journalrag/features/journal"
	"journalrag/features/mcp"
	"journalrag/features/stats"
	"journalrag/internal/adapter/reranker"
	wstore "journalrag/internal/adapter/weaviate"
	"journalrag/internal/chat"
	"journalrag/internal/config"
	"journalrag/internal/middleware"
	"journalrag/internal/retrieval"
	"journalrag/internal/settings"
	"journalrag/internal/usage"
	"journalrag/internal/worker"
)

// Models embeds query and chunk text and generates chat answers.
type Models interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Generate(ctx context.Context, prompt string) (string, error)
}

type App struct {
	Handler       http.Handler
	UsageConsumer *worker.UsageConsumer
	Usage         usage.Recorder
	QueryLogger   *retrieval.QueryLogger
	port          int
}

// New wires services and routes. pub may be nil, in which case queue usage
// mode falls back to sync and job retry is unavailable.
func New(
	cfg *config.Config,
	db *sql.DB,
	wClient *weaviate.Client,
	models Models,
	pub usage.Publisher,
	logger *slog.Logger,
) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store := wstore.NewStore(wClient, models, cfg.WeaviateClass, cfg.ScanPageSize)

	// Feature: Settings
	settingsService := settings.NewService(settings.NewPostgresRepo(db))
	settingsHandler := settings.NewHandler(settingsService)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	var jobPub job.EventPublisher
	if pub != nil {
		jobPub = pub
	}
	jobService := job.NewService(jobRepo, jobPub, logger)
	jobHandler := job.NewHandler(jobService)

	// Usage
	usageTimeout := time.Duration(cfg.UsageTimeoutSeconds) * time.Second
	applier := usage.NewApplier(store, jobService)
	recorder := usage.NewRecorder(cfg.UsageMode, applier, pub, usageTimeout)
	usageConsumer := worker.NewUsageConsumer(applier, usageTimeout)

	// Retrieval & Chat
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(store, recorder, queryLogger)
	chatService := chat.NewService(
		store,
		models,
		reranker.NewDynamicClient(settingsService),
		recorder,
		journal.NewSettingsOptions(settingsService),
		queryLogger,
	)

	// Feature: Journal
	journalService := journal.NewService(store)
	journalHandler := journal.NewHandler(journalService, retrievalService, chatService, settingsService, cfg.MaxUploadSizeMB<<20)

	// Feature: Stats
	statsHandler := stats.NewHandler(jobRepo, store)

	// Feature: MCP
	mcpHandler, err := mcp.NewHandler(retrievalService, chatService, journalService, settingsService)
	if err != nil {
		return nil, fmt.Errorf("mcp handler: %w", err)
	}

	// Routes
	mux := http.NewServeMux()
	prefix := strings.TrimRight(cfg.APIPrefix, "/")

	mux.HandleFunc("PUT "+prefix+"/upload", journalHandler.Upload)
	mux.HandleFunc("POST "+prefix+"/similarity_search", journalHandler.SimilaritySearch)
	mux.HandleFunc("POST "+prefix+"/chat", journalHandler.Chat)
	mux.HandleFunc("GET "+prefix+"/usage_statistics", journalHandler.UsageStatistics)
	mux.HandleFunc("GET "+prefix+"/{journal_id}", journalHandler.JournalContent)

	mux.HandleFunc("GET /settings", settingsHandler.GetSettings)
	mux.HandleFunc("PUT /settings", settingsHandler.UpdateSettings)

	mux.HandleFunc("GET /jobs/failed", jobHandler.List)
	mux.HandleFunc("POST /jobs/{id}/retry", jobHandler.Retry)

	mux.HandleFunc("GET /stats", statsHandler.GetStats)

	mux.Handle("GET /mcp", mcpHandler)
	mux.Handle("POST /mcp", mcpHandler)
	mux.Handle("DELETE /mcp", mcpHandler)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	handler := middleware.CorrelationID(middleware.Tracing(middleware.Recover(middleware.CORS(mux))))

	return &App{
		Handler:       handler,
		UsageConsumer: usageConsumer,
		Usage:         recorder,
		QueryLogger:   queryLogger,
		port:          cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close waits for background usage increments and closes the query log.
func (a *App) Close() {
	if w, ok := a.Usage.(interface{ Wait() }); ok {
		w.Wait()
	}
	if a.QueryLogger != nil {
		if err := a.QueryLogger.Close(); err != nil {
			slog.Warn("failed to close query log", "error", err)
		}
	}
}
