package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/yourusername/stocktester/internal/models"
)

const uniqueViolation = "23505"

// translateError maps driver errors onto the model sentinels, wrapping anything else with op
func translateError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "users_username_key":
			return models.ErrUsernameTaken
		case "users_email_key":
			return models.ErrEmailTaken
		}
		return fmt.Errorf("%s: %w", op, models.ErrDuplicateKey)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
