package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/stocktester/internal/logger"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/repository"
)

// WatchlistService manages each user's tracked symbols
type WatchlistService struct {
	repo  repository.WatchlistRepository
	audit *logger.AuditLogger
}

// NewWatchlistService creates a new watchlist service
func NewWatchlistService(repo repository.WatchlistRepository, log *logrus.Logger) *WatchlistService {
	return &WatchlistService{repo: repo, audit: logger.NewAuditLogger(log)}
}

// List returns the user's items
func (s *WatchlistService) List(ctx context.Context, userID uuid.UUID) ([]*models.WatchlistItem, error) {
	items, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.WatchlistItem{}
	}
	return items, nil
}

// Add tracks symbol for the user. Adding a symbol already on the list
// returns the existing item with created=false.
func (s *WatchlistService) Add(ctx context.Context, userID uuid.UUID, symbol, notes string) (*models.WatchlistItem, bool, error) {
	normalized, err := NormalizeWatchSymbol(symbol)
	if err != nil {
		return nil, false, err
	}
	item := &models.WatchlistItem{
		ID:      uuid.New(),
		UserID:  userID,
		Symbol:  normalized,
		Notes:   notes,
		AddedAt: time.Now().UTC(),
	}
	stored, created, err := s.repo.Add(ctx, item)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.audit.LogWatchlistChange(userID.String(), normalized, "add")
	}
	return stored, created, nil
}

// Remove drops symbol from the user's list. Removing an absent symbol is not an error.
func (s *WatchlistService) Remove(ctx context.Context, userID uuid.UUID, symbol string) error {
	normalized, err := NormalizeWatchSymbol(symbol)
	if err != nil {
		return err
	}
	removed, err := s.repo.Remove(ctx, userID, normalized)
	if err != nil {
		return err
	}
	if removed {
		s.audit.LogWatchlistChange(userID.String(), normalized, "remove")
	}
	return nil
}
