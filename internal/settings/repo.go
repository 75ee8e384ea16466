package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"journalrag/internal/apperror"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const selectSettings = `SELECT id, search_top_k, search_min_score, chat_top_k, chat_min_score, fetch_k, chat_apply_min_score, rerank_provider, rerank_api_key FROM settings WHERE id = 1`

func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	err := r.db.QueryRowContext(ctx, selectSettings).Scan(
		&s.ID, &s.SearchTopK, &s.SearchMinScore, &s.ChatTopK, &s.ChatMinScore,
		&s.FetchK, &s.ChatApplyMinScore, &s.RerankProvider, &s.RerankAPIKey,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: settings row missing", apperror.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

const updateSettings = `UPDATE settings SET search_top_k = $1, search_min_score = $2, chat_top_k = $3, chat_min_score = $4, fetch_k = $5, chat_apply_min_score = $6, rerank_provider = $7, rerank_api_key = $8, updated_at = NOW() WHERE id = 1`

func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	_, err := r.db.ExecContext(ctx, updateSettings,
		s.SearchTopK, s.SearchMinScore, s.ChatTopK, s.ChatMinScore,
		s.FetchK, s.ChatApplyMinScore, s.RerankProvider, s.RerankAPIKey,
	)
	return err
}
