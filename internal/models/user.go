package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// WatchlistItem is a ticker tracked by a user. (UserID, Symbol) is unique.
type WatchlistItem struct {
	ID      uuid.UUID `db:"id" json:"id"`
	UserID  uuid.UUID `db:"user_id" json:"user_id"`
	Symbol  string    `db:"symbol" json:"symbol"`
	Notes   string    `db:"notes" json:"notes,omitempty"`
	AddedAt time.Time `db:"added_at" json:"added_at"`
}
