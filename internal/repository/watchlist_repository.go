package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/stocktester/internal/database"
	"github.com/yourusername/stocktester/internal/models"
)

// PostgresWatchlistRepository implements WatchlistRepository for PostgreSQL
type PostgresWatchlistRepository struct {
	db *database.DB
}

// NewPostgresWatchlistRepository creates a new watchlist repository
func NewPostgresWatchlistRepository(db *database.DB) WatchlistRepository {
	return &PostgresWatchlistRepository{db: db}
}

// Add inserts a watchlist item, returning the existing row when the symbol is already tracked
func (r *PostgresWatchlistRepository) Add(ctx context.Context, item *models.WatchlistItem) (*models.WatchlistItem, bool, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}

	query := `
		INSERT INTO watchlist_items (id, user_id, symbol, notes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, symbol) DO NOTHING
		RETURNING added_at
	`
	err := r.db.GetPool().QueryRow(ctx, query, item.ID, item.UserID, item.Symbol, item.Notes).Scan(&item.AddedAt)
	if err == nil {
		return item, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, translateError("add watchlist item", err)
	}

	existing := &models.WatchlistItem{}
	err = r.db.GetPool().QueryRow(ctx, `
		SELECT id, user_id, symbol, notes, added_at
		FROM watchlist_items WHERE user_id = $1 AND symbol = $2
	`, item.UserID, item.Symbol).Scan(
		&existing.ID, &existing.UserID, &existing.Symbol, &existing.Notes, &existing.AddedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing watchlist item: %w", err)
	}
	return existing, false, nil
}

// List returns a user's watchlist ordered by symbol
func (r *PostgresWatchlistRepository) List(ctx context.Context, userID uuid.UUID) ([]*models.WatchlistItem, error) {
	rows, err := r.db.GetPool().Query(ctx, `
		SELECT id, user_id, symbol, notes, added_at
		FROM watchlist_items WHERE user_id = $1
		ORDER BY symbol ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	items := []*models.WatchlistItem{}
	for rows.Next() {
		item := &models.WatchlistItem{}
		if err := rows.Scan(&item.ID, &item.UserID, &item.Symbol, &item.Notes, &item.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Remove deletes a symbol from a user's watchlist and reports whether a row existed
func (r *PostgresWatchlistRepository) Remove(ctx context.Context, userID uuid.UUID, symbol string) (bool, error) {
	tag, err := r.db.GetPool().Exec(ctx,
		`DELETE FROM watchlist_items WHERE user_id = $1 AND symbol = $2`, userID, symbol)
	if err != nil {
		return false, fmt.Errorf("failed to remove watchlist item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
