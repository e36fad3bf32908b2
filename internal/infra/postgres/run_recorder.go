package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jinford/repo-analyst/internal/core/analysis"
	"github.com/jinford/repo-analyst/internal/core/document"
	"github.com/jinford/repo-analyst/internal/platform/database"
)

// ErrRunNotFound は解析履歴が存在しないことを示す
var ErrRunNotFound = errors.New("analysis run not found")

// Run は保存済みの解析履歴
type Run struct {
	ID                 uuid.UUID `json:"id"`
	RepoURL            string    `json:"repo_url"`
	Branch             string    `json:"branch,omitempty"`
	DocumentCount      int       `json:"document_count"`
	ArtifactCount      int       `json:"artifact_count"`
	EmbeddingModel     string    `json:"embedding_model,omitempty"`
	EmbeddingDimension int       `json:"embedding_dimension"`
	LLMModel           string    `json:"llm_model,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// StoredDocument は解析履歴に含まれるドキュメント
type StoredDocument struct {
	Path      string
	Language  string
	Size      int
	Embedding []float32
}

// RunRecorder は解析結果を PostgreSQL に保存する analysis.RunRecorder 実装
type RunRecorder struct {
	tx    *database.TransactionProvider
	newID func() uuid.UUID
}

// NewRunRecorder は新しい RunRecorder を作成する
func NewRunRecorder(tx *database.TransactionProvider) *RunRecorder {
	return &RunRecorder{tx: tx, newID: uuid.New}
}

// Record は解析1回分を1トランザクションで保存する
func (r *RunRecorder) Record(ctx context.Context, run analysis.RunRecord) error {
	_, err := database.Transact(ctx, r.tx, func(tx pgx.Tx) (uuid.UUID, error) {
		return r.insert(ctx, tx, run)
	})
	return err
}

func (r *RunRecorder) insert(ctx context.Context, tx pgx.Tx, run analysis.RunRecord) (uuid.UUID, error) {
	id := r.newID()

	_, err := tx.Exec(ctx, `
		INSERT INTO analysis_runs
			(id, repo_url, branch, document_count, artifact_count, embedding_model, embedding_dimension, llm_model)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		UUIDToPgtype(id),
		run.RepoURL,
		StringToNullableText(run.Branch),
		len(run.Documents),
		run.ArtifactCount,
		StringToNullableText(run.EmbeddingModel),
		IntToNullableInt4(run.Dimension),
		StringToNullableText(run.LLMModel),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert analysis run: %w", err)
	}

	if len(run.Documents) == 0 {
		return id, nil
	}

	batch := &pgx.Batch{}
	for i, doc := range run.Documents {
		var vector []float32
		if i < len(run.Vectors) {
			vector = run.Vectors[i]
		}
		batch.Queue(`
			INSERT INTO analysis_documents (run_id, ordinal, path, language, size, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			UUIDToPgtype(id),
			i,
			doc.Path,
			StringToNullableText(doc.Metadata[document.MetaLanguage]),
			len(doc.Content),
			VectorOrNil(vector),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert analysis documents: %w", err)
	}
	return id, nil
}

// LatestRun は repoURL の直近の解析履歴を返す
func (r *RunRecorder) LatestRun(ctx context.Context, repoURL string) (*Run, error) {
	return database.Transact(ctx, r.tx, func(tx pgx.Tx) (*Run, error) {
		var (
			id        pgtype.UUID
			branch    pgtype.Text
			model     pgtype.Text
			dimension pgtype.Int4
			llmModel  pgtype.Text
			createdAt pgtype.Timestamptz
			run       Run
		)
		err := tx.QueryRow(ctx, `
			SELECT id, repo_url, branch, document_count, artifact_count,
			       embedding_model, embedding_dimension, llm_model, created_at
			FROM analysis_runs
			WHERE repo_url = $1
			ORDER BY created_at DESC
			LIMIT 1`, repoURL,
		).Scan(&id, &run.RepoURL, &branch, &run.DocumentCount, &run.ArtifactCount,
			&model, &dimension, &llmModel, &createdAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrRunNotFound
			}
			return nil, fmt.Errorf("failed to get analysis run: %w", err)
		}

		run.ID = PgtypeToUUID(id)
		run.Branch = PgtextToString(branch)
		run.EmbeddingModel = PgtextToString(model)
		run.EmbeddingDimension = PgtypeToInt(dimension)
		run.LLMModel = PgtextToString(llmModel)
		run.CreatedAt = PgtypeToTime(createdAt)
		return &run, nil
	})
}

// Documents は解析履歴に含まれるドキュメントを保存順に返す
func (r *RunRecorder) Documents(ctx context.Context, runID uuid.UUID) ([]StoredDocument, error) {
	return database.Transact(ctx, r.tx, func(tx pgx.Tx) ([]StoredDocument, error) {
		rows, err := tx.Query(ctx, `
			SELECT path, language, size, embedding::text
			FROM analysis_documents
			WHERE run_id = $1
			ORDER BY ordinal`, UUIDToPgtype(runID))
		if err != nil {
			return nil, fmt.Errorf("failed to list analysis documents: %w", err)
		}
		defer rows.Close()

		var docs []StoredDocument
		for rows.Next() {
			var (
				doc      StoredDocument
				language pgtype.Text
				vector   pgtype.Text
			)
			if err := rows.Scan(&doc.Path, &language, &doc.Size, &vector); err != nil {
				return nil, fmt.Errorf("failed to scan analysis document: %w", err)
			}
			doc.Language = PgtextToString(language)
			if vector.Valid {
				v, err := parseVector(vector.String)
				if err != nil {
					return nil, err
				}
				doc.Embedding = v
			}
			docs = append(docs, doc)
		}
		return docs, rows.Err()
	})
}

var _ analysis.RunRecorder = (*RunRecorder)(nil)
