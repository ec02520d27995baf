package service

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/stocktester/internal/logger"
	"github.com/yourusername/stocktester/internal/models"
)

// DataCatalog is the market data surface the API exposes
type DataCatalog interface {
	ListSources(ctx context.Context) ([]models.DataSource, error)
	ListSymbols(ctx context.Context, source string) ([]string, error)
	Import(ctx context.Context, sourceName, filename string, r io.Reader) (*models.DataUploadResponse, error)
}

// DataService lists sources and imports uploads on behalf of users
type DataService struct {
	catalog DataCatalog
	audit   *logger.AuditLogger
}

// NewDataService creates a new data service
func NewDataService(catalog DataCatalog, log *logrus.Logger) *DataService {
	return &DataService{catalog: catalog, audit: logger.NewAuditLogger(log)}
}

// Sources lists every data source
func (s *DataService) Sources(ctx context.Context) ([]models.DataSource, error) {
	return s.catalog.ListSources(ctx)
}

// Symbols lists the tickers of source
func (s *DataService) Symbols(ctx context.Context, source string) ([]string, error) {
	return s.catalog.ListSymbols(ctx, source)
}

// Upload imports a CSV file as a new source
func (s *DataService) Upload(ctx context.Context, userID *uuid.UUID, sourceName, filename string, r io.Reader) (*models.DataUploadResponse, error) {
	resp, err := s.catalog.Import(ctx, sourceName, filename, r)
	if err != nil {
		return nil, err
	}
	s.audit.LogDataUpload(userString(userID), resp.SourceName, resp.Rows, len(resp.Symbols))
	return resp, nil
}
