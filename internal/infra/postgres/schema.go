package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements は解析履歴テーブルの定義。何度実行しても安全
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS analysis_runs (
		id                  UUID PRIMARY KEY,
		repo_url            TEXT NOT NULL,
		branch              TEXT,
		document_count      INTEGER NOT NULL,
		artifact_count      INTEGER NOT NULL,
		embedding_model     TEXT,
		embedding_dimension INTEGER,
		llm_model           TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS analysis_runs_repo_url_idx ON analysis_runs (repo_url, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS analysis_documents (
		run_id    UUID NOT NULL REFERENCES analysis_runs (id) ON DELETE CASCADE,
		ordinal   INTEGER NOT NULL,
		path      TEXT NOT NULL,
		language  TEXT,
		size      INTEGER NOT NULL,
		embedding VECTOR,
		PRIMARY KEY (run_id, ordinal)
	)`,
}

// EnsureSchema は解析履歴のテーブルを作成する
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
