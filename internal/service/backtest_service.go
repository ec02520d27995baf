package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/stocktester/internal/jobs"
	"github.com/yourusername/stocktester/internal/logger"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/repository"
)

// Listing bounds for GET /api/v1/backtest
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// JobQueue is the part of the worker pool the service drives
type JobQueue interface {
	Submit(ctx context.Context, record *models.BacktestRecord) error
	Cancel(ctx context.Context, id string) error
	Status() jobs.Status
}

// BacktestService validates, submits and looks up backtest jobs
type BacktestService struct {
	queue     JobQueue
	repo      repository.BacktestRepository
	validator *RequestValidator
	audit     *logger.AuditLogger
}

// NewBacktestService creates a new backtest service
func NewBacktestService(queue JobQueue, repo repository.BacktestRepository, validator *RequestValidator, log *logrus.Logger) *BacktestService {
	return &BacktestService{
		queue:     queue,
		repo:      repo,
		validator: validator,
		audit:     logger.NewAuditLogger(log),
	}
}

// Submit validates req and queues it as a pending job owned by userID
func (s *BacktestService) Submit(ctx context.Context, userID *uuid.UUID, req models.BacktestRequest) (*models.BacktestRecord, error) {
	req.Normalize()
	if err := s.validator.ValidateBacktest(ctx, &req); err != nil {
		return nil, err
	}
	return s.enqueue(ctx, userID, models.JobKindBacktest, req.Strategy.Name, len(req.Data.Symbols), req.Priority, req)
}

// SubmitAI validates an advisor request and queues it as an ai job
func (s *BacktestService) SubmitAI(ctx context.Context, userID *uuid.UUID, req models.AIBacktestRequest) (*models.BacktestRecord, error) {
	if err := s.validator.ValidateAIBacktest(ctx, &req); err != nil {
		return nil, err
	}
	return s.enqueue(ctx, userID, models.JobKindAI, req.Objective, len(req.Data.Symbols), req.Priority, req)
}

func (s *BacktestService) enqueue(
	ctx context.Context,
	userID *uuid.UUID,
	kind models.JobKind,
	label string,
	symbols, priority int,
	payload interface{},
) (*models.BacktestRecord, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	record := &models.BacktestRecord{
		ID:       models.NewBacktestID(),
		UserID:   userID,
		Kind:     kind,
		Request:  raw,
		Priority: priority,
	}
	if err := s.queue.Submit(ctx, record); err != nil {
		return record, err
	}
	s.audit.LogBacktestSubmitted(record.ID, userString(userID), string(kind), label, symbols, priority)
	return record, nil
}

// Get returns a job. Jobs owned by another user are reported as not found.
func (s *BacktestService) Get(ctx context.Context, userID *uuid.UUID, id string) (*models.BacktestRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visible(record, userID) {
		return nil, fmt.Errorf("backtest %s: %w", id, models.ErrNotFound)
	}
	return record, nil
}

// List returns the caller's most recent jobs. A nil user lists jobs submitted with an API key.
func (s *BacktestService) List(ctx context.Context, userID *uuid.UUID, limit int) ([]*models.BacktestRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	records, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*models.BacktestRecord{}
	}
	return records, nil
}

// Cancel stops a pending job. Running or finished jobs fail with jobs.ErrNotCancellable.
func (s *BacktestService) Cancel(ctx context.Context, userID *uuid.UUID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.queue.Cancel(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("backtest %s: %w", id, models.ErrNotFound)
		}
		return err
	}
	s.audit.LogBacktestCancelled(id, userString(userID))
	return nil
}

// Status reports the worker pool snapshot
func (s *BacktestService) Status() jobs.Status {
	return s.queue.Status()
}

// visible reports whether the caller may see record. API-key callers (nil
// user) see every job; jobs without an owner are hidden from logged-in users.
func visible(record *models.BacktestRecord, userID *uuid.UUID) bool {
	if record.UserID == nil {
		return userID == nil
	}
	if userID == nil {
		return true
	}
	return *record.UserID == *userID
}

func userString(userID *uuid.UUID) string {
	if userID == nil {
		return ""
	}
	return userID.String()
}
