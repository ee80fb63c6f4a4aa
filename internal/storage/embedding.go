// Package storage persists computed embeddings: run metadata, the three
// coordinate mappings, and the per-sample factor score vectors used for
// similarity lookups.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/TomKellyGenetics/swne/pkg/models"
)

// EmbeddingRecord is the stored form of one embedding run.
type EmbeddingRecord struct {
	ID        uuid.UUID
	Name      string
	Factors   int
	Samples   int
	Features  int
	Params    models.EmbeddingParams
	CreatedAt time.Time
}

// ScoreVector pairs a sample identifier with its factor score vector.
type ScoreVector struct {
	Sample string
	Scores pgvector.Vector
}

// SampleWithSimilarity is a similarity-lookup hit.
type SampleWithSimilarity struct {
	Sample     string
	Similarity float64
}

// EmbeddingRepository defines the persistence operations for embeddings.
type EmbeddingRepository interface {
	Create(ctx context.Context, rec *EmbeddingRecord, coords []models.Coordinate) error
	GetByID(ctx context.Context, id uuid.UUID) (*EmbeddingRecord, error)
	List(ctx context.Context) ([]*EmbeddingRecord, error)
	GetCoordinates(ctx context.Context, id uuid.UUID, kind models.CoordinateKind) ([]models.Coordinate, error)
	ReplaceCoordinates(ctx context.Context, id uuid.UUID, kind models.CoordinateKind, coords []models.Coordinate) error
	SaveScoreVectors(ctx context.Context, id uuid.UUID, vectors []ScoreVector) error
	FindSimilarSamples(ctx context.Context, id uuid.UUID, scores pgvector.Vector, limit int) ([]*SampleWithSimilarity, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PostgresEmbeddingRepository implements EmbeddingRepository using PostgreSQL
// with the pgvector extension.
type PostgresEmbeddingRepository struct {
	db *sql.DB
}

// NewPostgresEmbeddingRepository creates a new PostgresEmbeddingRepository.
func NewPostgresEmbeddingRepository(db *sql.DB) *PostgresEmbeddingRepository {
	return &PostgresEmbeddingRepository{db: db}
}

// Create inserts an embedding record and its coordinates in one transaction.
func (r *PostgresEmbeddingRepository) Create(ctx context.Context, rec *EmbeddingRecord, coords []models.Coordinate) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO embeddings (id, name, factors, samples, features, params, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		rec.ID, rec.Name, rec.Factors, rec.Samples, rec.Features, params, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}

	if err := insertCoordinates(ctx, tx, rec.ID, coords); err != nil {
		return err
	}
	return tx.Commit()
}

// GetByID retrieves an embedding record, or nil when absent.
func (r *PostgresEmbeddingRepository) GetByID(ctx context.Context, id uuid.UUID) (*EmbeddingRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, factors, samples, features, params, created_at
		FROM embeddings
		WHERE id = $1
	`, id)

	rec, err := scanEmbedding(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List retrieves all embedding records, newest first.
func (r *PostgresEmbeddingRepository) List(ctx context.Context) ([]*EmbeddingRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, factors, samples, features, params, created_at
		FROM embeddings
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*EmbeddingRecord
	for rows.Next() {
		rec, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GetCoordinates retrieves one coordinate mapping of an embedding, ordered by
// identifier for stable output.
func (r *PostgresEmbeddingRepository) GetCoordinates(ctx context.Context, id uuid.UUID, kind models.CoordinateKind) ([]models.Coordinate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, identifier, x, y
		FROM coordinates
		WHERE embedding_id = $1 AND kind = $2
		ORDER BY identifier ASC
	`, id, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coords []models.Coordinate
	for rows.Next() {
		var c models.Coordinate
		if err := rows.Scan(&c.Kind, &c.Identifier, &c.X, &c.Y); err != nil {
			return nil, err
		}
		coords = append(coords, c)
	}
	return coords, rows.Err()
}

// ReplaceCoordinates swaps out one coordinate mapping, used when feature
// coordinates are recomputed against an existing layout.
func (r *PostgresEmbeddingRepository) ReplaceCoordinates(ctx context.Context, id uuid.UUID, kind models.CoordinateKind, coords []models.Coordinate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM coordinates WHERE embedding_id = $1 AND kind = $2
	`, id, string(kind)); err != nil {
		return fmt.Errorf("delete coordinates: %w", err)
	}
	if err := insertCoordinates(ctx, tx, id, coords); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveScoreVectors stores per-sample factor score vectors for similarity
// lookups.
func (r *PostgresEmbeddingRepository) SaveScoreVectors(ctx context.Context, id uuid.UUID, vectors []ScoreVector) error {
	if len(vectors) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO score_vectors (embedding_id, sample, scores)
		VALUES ($1, $2, $3)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range vectors {
		if _, err := stmt.ExecContext(ctx, id, v.Sample, v.Scores); err != nil {
			return fmt.Errorf("insert score vector for %s: %w", v.Sample, err)
		}
	}
	return tx.Commit()
}

// FindSimilarSamples returns the samples whose stored factor score vectors
// are closest to the query under pgvector cosine distance.
func (r *PostgresEmbeddingRepository) FindSimilarSamples(ctx context.Context, id uuid.UUID, scores pgvector.Vector, limit int) ([]*SampleWithSimilarity, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT sample, 1 - (scores <=> $2) AS similarity
		FROM score_vectors
		WHERE embedding_id = $1
		ORDER BY scores <=> $2
		LIMIT $3
	`, id, scores, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*SampleWithSimilarity
	for rows.Next() {
		s := &SampleWithSimilarity{}
		if err := rows.Scan(&s.Sample, &s.Similarity); err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// Delete removes an embedding and its dependent rows.
func (r *PostgresEmbeddingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM score_vectors WHERE embedding_id = $1`,
		`DELETE FROM coordinates WHERE embedding_id = $1`,
		`DELETE FROM embeddings WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertCoordinates(ctx context.Context, tx *sql.Tx, id uuid.UUID, coords []models.Coordinate) error {
	if len(coords) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO coordinates (embedding_id, kind, identifier, x, y)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range coords {
		if _, err := stmt.ExecContext(ctx, id, string(c.Kind), c.Identifier, c.X, c.Y); err != nil {
			return fmt.Errorf("insert coordinate %s/%s: %w", c.Kind, c.Identifier, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmbedding(row scanner) (*EmbeddingRecord, error) {
	rec := &EmbeddingRecord{}
	var params []byte
	if err := row.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Factors,
		&rec.Samples,
		&rec.Features,
		&params,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params, &rec.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return rec, nil
}
