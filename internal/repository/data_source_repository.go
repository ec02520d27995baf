package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/yourusername/stocktester/internal/database"
	"github.com/yourusername/stocktester/internal/models"
)

// PostgresDataSourceRepository implements DataSourceRepository for PostgreSQL
type PostgresDataSourceRepository struct {
	db *database.DB
}

// NewPostgresDataSourceRepository creates a new uploaded data repository
func NewPostgresDataSourceRepository(db *database.DB) DataSourceRepository {
	return &PostgresDataSourceRepository{db: db}
}

// CreateWithBars registers a source and bulk loads its bars in one transaction
func (r *PostgresDataSourceRepository) CreateWithBars(ctx context.Context, source *models.CustomDataSource, bars []models.SymbolBar) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO custom_data_sources (name, description, symbols_count, start_date, end_date)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at
		`, source.Name, source.Description, source.SymbolsCount, source.StartDate, source.EndDate,
		).Scan(&source.ID, &source.CreatedAt)
		if err != nil {
			return translateError("create data source", err)
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"market_bars"},
			[]string{"source_id", "symbol", "ts", "open", "high", "low", "close", "volume"},
			pgx.CopyFromSlice(len(bars), func(i int) ([]interface{}, error) {
				b := bars[i]
				return []interface{}{source.ID, b.Symbol, b.Time, b.Open, b.High, b.Low, b.Close, b.Volume}, nil
			}),
		)
		if err != nil {
			return translateError("copy market bars", err)
		}
		return nil
	})
}

// GetByName retrieves an uploaded source by name
func (r *PostgresDataSourceRepository) GetByName(ctx context.Context, name string) (*models.CustomDataSource, error) {
	source := &models.CustomDataSource{}
	err := r.db.GetPool().QueryRow(ctx, `
		SELECT id, name, description, symbols_count, start_date, end_date, created_at
		FROM custom_data_sources WHERE name = $1
	`, name).Scan(
		&source.ID, &source.Name, &source.Description, &source.SymbolsCount,
		&source.StartDate, &source.EndDate, &source.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data source: %w", err)
	}
	return source, nil
}

// List returns every uploaded source ordered by name
func (r *PostgresDataSourceRepository) List(ctx context.Context) ([]*models.CustomDataSource, error) {
	rows, err := r.db.GetPool().Query(ctx, `
		SELECT id, name, description, symbols_count, start_date, end_date, created_at
		FROM custom_data_sources ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query data sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.CustomDataSource
	for rows.Next() {
		source := &models.CustomDataSource{}
		if err := rows.Scan(
			&source.ID, &source.Name, &source.Description, &source.SymbolsCount,
			&source.StartDate, &source.EndDate, &source.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan data source: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

// Delete removes an uploaded source and, by cascade, its bars
func (r *PostgresDataSourceRepository) Delete(ctx context.Context, name string) error {
	tag, err := r.db.GetPool().Exec(ctx, `DELETE FROM custom_data_sources WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete data source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListSymbols returns the distinct symbols stored for a source
func (r *PostgresDataSourceRepository) ListSymbols(ctx context.Context, sourceID int64) ([]string, error) {
	rows, err := r.db.GetPool().Query(ctx,
		`SELECT DISTINCT symbol FROM market_bars WHERE source_id = $1 ORDER BY symbol`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	symbols := []string{}
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

// GetBars returns a symbol's bars in [start, end] ordered by time
func (r *PostgresDataSourceRepository) GetBars(ctx context.Context, sourceID int64, symbol string, start, end time.Time) ([]models.Bar, error) {
	rows, err := r.db.GetPool().Query(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM market_bars
		WHERE source_id = $1 AND symbol = $2 AND ts >= $3 AND ts <= $4
		ORDER BY ts ASC
	`, sourceID, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query market bars: %w", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan market bar: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}
