package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/TomKellyGenetics/swne/pkg/models"
)

func TestPostgresEmbeddingRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresEmbeddingRepository(db)

	rec := &EmbeddingRecord{
		Name:     "pbmc",
		Factors:  12,
		Samples:  3000,
		Features: 0,
		Params: models.EmbeddingParams{
			NPull:    3,
			AlphaExp: 1.25,
			SNNExp:   1,
			Distance: "ic",
			Reducer:  "sammon",
			Seed:     42,
		},
	}
	coords := []models.Coordinate{
		{Kind: models.KindAnchor, Identifier: "factor_1", X: 0.1, Y: -0.4},
		{Kind: models.KindSample, Identifier: "cell_1", X: 0.2, Y: 0.3},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO embeddings").
		WithArgs(sqlmock.AnyArg(), rec.Name, rec.Factors, rec.Samples, rec.Features, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep := mock.ExpectPrepare("INSERT INTO coordinates")
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), "anchor", "factor_1", 0.1, -0.4).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), "sample", "cell_1", 0.2, 0.3).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.Create(context.Background(), rec, coords); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if rec.ID == uuid.Nil {
		t.Error("expected embedding ID to be generated")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresEmbeddingRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresEmbeddingRepository(db)

	id := uuid.New()
	params := []byte(`{"n_pull":3,"alpha_exp":1.25,"snn_exp":1,"distance":"ic","reducer":"sammon","seed":42}`)
	rows := sqlmock.NewRows([]string{"id", "name", "factors", "samples", "features", "params", "created_at"}).
		AddRow(id, "pbmc", 12, 3000, 40, params, time.Now())

	mock.ExpectQuery("SELECT (.+) FROM embeddings WHERE id").
		WithArgs(id).
		WillReturnRows(rows)

	rec, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec == nil {
		t.Fatal("expected record to be returned")
	}
	if rec.Name != "pbmc" {
		t.Errorf("expected name pbmc, got %s", rec.Name)
	}
	if rec.Params.NPull != 3 || rec.Params.Distance != "ic" {
		t.Errorf("params not unmarshalled: %+v", rec.Params)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresEmbeddingRepository_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresEmbeddingRepository(db)

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM embeddings WHERE id").
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	rec, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec != nil {
		t.Error("expected nil record")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresEmbeddingRepository_GetCoordinates(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresEmbeddingRepository(db)

	id := uuid.New()
	rows := sqlmock.NewRows([]string{"kind", "identifier", "x", "y"}).
		AddRow("sample", "cell_1", 0.25, -0.5).
		AddRow("sample", "cell_2", 0.75, 0.5)

	mock.ExpectQuery("SELECT (.+) FROM coordinates").
		WithArgs(id, "sample").
		WillReturnRows(rows)

	coords, err := repo.GetCoordinates(context.Background(), id, models.KindSample)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if len(coords) != 2 {
		t.Fatalf("expected 2 coordinates, got %d", len(coords))
	}
	if coords[0].Identifier != "cell_1" || coords[0].X != 0.25 {
		t.Errorf("unexpected first coordinate: %+v", coords[0])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresEmbeddingRepository_ReplaceCoordinates(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresEmbeddingRepository(db)

	id := uuid.New()
	coords := []models.Coordinate{
		{Kind: models.KindFeature, Identifier: "CD3E", X: 0.5, Y: 0.5},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM coordinates").
		WithArgs(id, "feature").
		WillReturnResult(sqlmock.NewResult(0, 3))
	prep := mock.ExpectPrepare("INSERT INTO coordinates")
	prep.ExpectExec().
		WithArgs(id, "feature", "CD3E", 0.5, 0.5).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.ReplaceCoordinates(context.Background(), id, models.KindFeature, coords); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
