package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/clever-calibrator/internal/database"
	"github.com/yourusername/clever-calibrator/internal/models"
)

const predictionColumns = `id, source_id, match_id, league, confidence_raw, outcome, predicted_at`

// PostgresPredictionRepository implements PredictionRepository for PostgreSQL
type PostgresPredictionRepository struct {
	db *database.DB
}

// NewPostgresPredictionRepository creates a new prediction repository
func NewPostgresPredictionRepository(db *database.DB) *PostgresPredictionRepository {
	return &PostgresPredictionRepository{db: db}
}

// FetchPredictions returns every prediction made at or after since, oldest first
func (r *PostgresPredictionRepository) FetchPredictions(ctx context.Context, since time.Time) ([]models.PredictionRecord, error) {
	query := `SELECT ` + predictionColumns + `
		FROM predictions
		WHERE predicted_at >= $1
		ORDER BY predicted_at ASC, id ASC`

	rows, err := r.db.GetPool().Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	return collectPredictions(rows)
}

// GetBySource returns one source's predictions made at or after since, newest first
func (r *PostgresPredictionRepository) GetBySource(ctx context.Context, sourceID string, since time.Time) ([]models.PredictionRecord, error) {
	query := `SELECT ` + predictionColumns + `
		FROM predictions
		WHERE source_id = $1 AND predicted_at >= $2
		ORDER BY predicted_at DESC, id DESC`

	rows, err := r.db.GetPool().Query(ctx, query, sourceID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions for source %s: %w", sourceID, err)
	}
	return collectPredictions(rows)
}

// GetByID retrieves a single prediction
func (r *PostgresPredictionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PredictionRecord, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions WHERE id = $1`

	rec, err := scanPrediction(r.db.GetPool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return &rec, nil
}

// Insert validates and stores a new prediction
func (r *PostgresPredictionRepository) Insert(ctx context.Context, prediction *models.PredictionRecord) error {
	if prediction.ID == uuid.Nil {
		prediction.ID = uuid.New()
	}
	if err := prediction.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO predictions (` + predictionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.GetPool().Exec(ctx, query,
		prediction.ID, prediction.SourceID, prediction.MatchID, prediction.League,
		prediction.ConfidenceRaw, string(prediction.Outcome), prediction.PredictedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

// InsertBatch stores many predictions in a single round trip
func (r *PostgresPredictionRepository) InsertBatch(ctx context.Context, predictions []models.PredictionRecord) error {
	if len(predictions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO predictions (` + predictionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	for i := range predictions {
		p := &predictions[i]
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("prediction %d: %w", i, err)
		}
		batch.Queue(query, p.ID, p.SourceID, p.MatchID, p.League, p.ConfidenceRaw, string(p.Outcome), p.PredictedAt)
	}

	results := r.db.GetPool().SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(predictions); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert prediction batch at %d: %w", i, err)
		}
	}
	return nil
}

// Settle records the outcome of a pending prediction. The update only matches
// pending rows, so a concurrent second settlement sees ErrAlreadySettled.
func (r *PostgresPredictionRepository) Settle(ctx context.Context, id uuid.UUID, outcome models.Outcome) error {
	if !outcome.IsSettled() {
		return models.ErrInvalidOutcome
	}

	tag, err := r.db.GetPool().Exec(ctx,
		`UPDATE predictions SET outcome = $2 WHERE id = $1 AND outcome = 'pending'`,
		id, string(outcome),
	)
	if err != nil {
		return fmt.Errorf("failed to settle prediction: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return models.ErrAlreadySettled
}

func scanPrediction(row pgx.Row) (models.PredictionRecord, error) {
	var rec models.PredictionRecord
	var outcome string
	err := row.Scan(&rec.ID, &rec.SourceID, &rec.MatchID, &rec.League, &rec.ConfidenceRaw, &outcome, &rec.PredictedAt)
	rec.Outcome = models.Outcome(outcome)
	return rec, err
}

func collectPredictions(rows pgx.Rows) ([]models.PredictionRecord, error) {
	defer rows.Close()

	records := make([]models.PredictionRecord, 0)
	for rows.Next() {
		rec, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
