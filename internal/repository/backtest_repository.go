package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/stocktester/internal/database"
	"github.com/yourusername/stocktester/internal/models"
)

const (
	errScanBacktest = "failed to scan backtest: %w"
	backtestColumns = `id, user_id, kind, request, status, priority, results, error,
		execution_time, created_at, started_at, completed_at`
)

// PostgresBacktestRepository implements BacktestRepository for PostgreSQL
type PostgresBacktestRepository struct {
	db *database.DB
}

// NewPostgresBacktestRepository creates a new backtest repository
func NewPostgresBacktestRepository(db *database.DB) BacktestRepository {
	return &PostgresBacktestRepository{db: db}
}

// Create inserts a new backtest record
func (r *PostgresBacktestRepository) Create(ctx context.Context, record *models.BacktestRecord) error {
	if record.ID == "" {
		record.ID = models.NewBacktestID()
	}
	if record.Status == "" {
		record.Status = models.StatusPending
	}
	if record.Kind == "" {
		record.Kind = models.JobKindBacktest
	}

	query := `
		INSERT INTO backtests (id, user_id, kind, request, status, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.GetPool().QueryRow(ctx, query,
		record.ID, record.UserID, string(record.Kind), []byte(record.Request),
		string(record.Status), record.Priority,
	).Scan(&record.CreatedAt)
	if err != nil {
		return translateError("create backtest", err)
	}
	return nil
}

// GetByID retrieves a backtest record by ID
func (r *PostgresBacktestRepository) GetByID(ctx context.Context, id string) (*models.BacktestRecord, error) {
	row := r.db.GetPool().QueryRow(ctx, `SELECT `+backtestColumns+` FROM backtests WHERE id = $1`, id)
	record, err := scanBacktest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backtest: %w", err)
	}
	return record, nil
}

// ListByUser retrieves the newest records owned by userID, or unowned records when userID is nil
func (r *PostgresBacktestRepository) ListByUser(ctx context.Context, userID *uuid.UUID, limit int) ([]*models.BacktestRecord, error) {
	query := `SELECT ` + backtestColumns + ` FROM backtests
		WHERE user_id IS NOT DISTINCT FROM $1
		ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, query, userID, limit)
}

// ListByStatus retrieves records in a status, highest priority and oldest first
func (r *PostgresBacktestRepository) ListByStatus(ctx context.Context, status models.BacktestStatus, limit int) ([]*models.BacktestRecord, error) {
	query := `SELECT ` + backtestColumns + ` FROM backtests
		WHERE status = $1
		ORDER BY priority DESC, created_at ASC LIMIT $2`
	return r.list(ctx, query, string(status), limit)
}

func (r *PostgresBacktestRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.BacktestRecord, error) {
	rows, err := r.db.GetPool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtests: %w", err)
	}
	defer rows.Close()

	records := []*models.BacktestRecord{}
	for rows.Next() {
		record, err := scanBacktest(rows)
		if err != nil {
			return nil, fmt.Errorf(errScanBacktest, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Transition performs a guarded status update. The WHERE clause only matches rows
// whose current status may move to the target, so concurrent writers cannot regress a job.
func (r *PostgresBacktestRepository) Transition(ctx context.Context, id string, to models.BacktestStatus, update StatusUpdate) error {
	from := models.SourceStatuses(to)
	if len(from) == 0 {
		return fmt.Errorf("%w: nothing transitions to %s", models.ErrInvalidTransition, to)
	}
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}
	at := update.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	query := `
		UPDATE backtests SET
			status = $2,
			started_at = CASE WHEN $2 = 'running' THEN $3 ELSE started_at END,
			completed_at = CASE WHEN $2 IN ('completed', 'failed', 'cancelled') THEN $3 ELSE completed_at END,
			results = COALESCE($4, results),
			error = COALESCE($5, error),
			execution_time = COALESCE($6, execution_time)
		WHERE id = $1 AND status = ANY($7::text[])
	`
	var results []byte
	if len(update.Results) > 0 {
		results = update.Results
	}
	tag, err := r.db.GetPool().Exec(ctx, query,
		id, string(to), at, results, update.Error, update.ExecutionTime, sources,
	)
	if err != nil {
		return fmt.Errorf("failed to update backtest status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = r.db.GetPool().QueryRow(ctx, `SELECT status FROM backtests WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read backtest status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current, to)
}

// CountByStatus returns the number of records per status
func (r *PostgresBacktestRepository) CountByStatus(ctx context.Context) (map[models.BacktestStatus]int, error) {
	rows, err := r.db.GetPool().Query(ctx, `SELECT status, COUNT(*) FROM backtests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count backtests: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.BacktestStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan backtest count: %w", err)
		}
		counts[models.BacktestStatus(status)] = n
	}
	return counts, rows.Err()
}

// FailRunning marks every running record failed. Used on startup to clear jobs
// orphaned by a previous process.
func (r *PostgresBacktestRepository) FailRunning(ctx context.Context, message string, at time.Time) (int64, error) {
	tag, err := r.db.GetPool().Exec(ctx, `
		UPDATE backtests SET status = 'failed', error = $1, completed_at = $2
		WHERE status = 'running'
	`, message, at)
	if err != nil {
		return 0, fmt.Errorf("failed to fail running backtests: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteFinishedBefore removes terminal records created before cutoff
func (r *PostgresBacktestRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.GetPool().Exec(ctx, `
		DELETE FROM backtests
		WHERE status IN ('completed', 'failed', 'cancelled') AND created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old backtests: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanBacktest(row pgx.Row) (*models.BacktestRecord, error) {
	record := &models.BacktestRecord{}
	var kind, status string
	var request, results []byte
	err := row.Scan(
		&record.ID, &record.UserID, &kind, &request, &status, &record.Priority, &results, &record.Error,
		&record.ExecutionTime, &record.CreatedAt, &record.StartedAt, &record.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Kind = models.JobKind(kind)
	record.Status = models.BacktestStatus(status)
	record.Request = request
	if len(results) > 0 {
		record.Results = results
	}
	return record, nil
}
