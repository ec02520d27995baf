package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/stocktester/internal/metrics"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/repository"
)

// Manager resolves data sources and loads bars through the cache
type Manager struct {
	mu         sync.RWMutex
	providers  map[string]Provider
	repo       repository.DataSourceRepository
	cache      *BarCache
	maxSymbols int
	logger     *logrus.Entry
}

// NewManager creates a manager with the synthetic source registered.
// repo may be nil, in which case uploads are unavailable.
func NewManager(cache *BarCache, repo repository.DataSourceRepository, maxSymbols int, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if cache == nil {
		cache = NewBarCache(time.Hour, 100)
	}
	m := &Manager{
		providers:  make(map[string]Provider),
		repo:       repo,
		cache:      cache,
		maxSymbols: maxSymbols,
		logger:     logger.WithField("component", "marketdata"),
	}
	m.Register(NewSyntheticProvider())
	return m
}

// Register adds or replaces a provider
func (m *Manager) Register(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.Name()] = p
}

// provider resolves a registered provider or a stored upload
func (m *Manager) provider(ctx context.Context, name string) (Provider, error) {
	if name == "" {
		name = SyntheticSourceName
	}

	m.mu.RLock()
	p, ok := m.providers[name]
	m.mu.RUnlock()
	if ok {
		return p, nil
	}

	if m.repo == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	source, err := m.repo.GetByName(ctx, name)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data source %s: %w", name, err)
	}
	return NewUploadedProvider(source, m.repo), nil
}

// LookupSource describes the named source. It returns nil when no such source exists.
func (m *Manager) LookupSource(ctx context.Context, name string) (*models.DataSource, error) {
	p, err := m.provider(ctx, name)
	if errors.Is(err, ErrUnknownSource) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ds, err := p.Describe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to describe source %s: %w", name, err)
	}
	return &ds, nil
}

// ListSources returns the registered sources sorted by name followed by the uploads
func (m *Manager) ListSources(ctx context.Context) ([]models.DataSource, error) {
	m.mu.RLock()
	providers := make([]Provider, 0, len(m.providers))
	for _, p := range m.providers {
		providers = append(providers, p)
	}
	m.mu.RUnlock()
	sort.Slice(providers, func(i, j int) bool { return providers[i].Name() < providers[j].Name() })

	sources := make([]models.DataSource, 0, len(providers))
	for _, p := range providers {
		ds, err := p.Describe(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe source %s: %w", p.Name(), err)
		}
		sources = append(sources, ds)
	}

	if m.repo == nil {
		return sources, nil
	}
	uploads, err := m.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploaded sources: %w", err)
	}
	for _, u := range uploads {
		sources = append(sources, u.ToDataSource())
	}
	return sources, nil
}

// ListSymbols returns the tickers for source. A blank source lists the
// synthetic symbols and an unknown source yields an empty list.
func (m *Manager) ListSymbols(ctx context.Context, source string) ([]string, error) {
	p, err := m.provider(ctx, source)
	if errors.Is(err, ErrUnknownSource) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	symbols, err := p.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols for %s: %w", p.Name(), err)
	}
	if symbols == nil {
		symbols = []string{}
	}
	return symbols, nil
}

// Load fetches bars for every requested symbol, in request order
func (m *Manager) Load(ctx context.Context, req models.DataRequest) (map[string][]models.Bar, error) {
	if m.maxSymbols > 0 && len(req.Symbols) > m.maxSymbols {
		return nil, fmt.Errorf("%w: %d requested, limit is %d", ErrTooManySymbols, len(req.Symbols), m.maxSymbols)
	}

	p, err := m.provider(ctx, req.DataSource)
	if err != nil {
		return nil, err
	}
	timeframe := req.Timeframe
	if timeframe == "" {
		timeframe = models.TimeframeDay
	}

	data := make(map[string][]models.Bar, len(req.Symbols))
	for _, symbol := range req.Symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, done := data[symbol]; done {
			continue
		}

		key := CacheKey{
			Symbol:    symbol,
			Source:    p.Name(),
			Timeframe: timeframe,
			Start:     req.StartDate.Time,
			End:       req.EndDate.Time,
		}
		if bars, ok := m.cache.Get(key); ok {
			data[symbol] = bars
			continue
		}

		started := time.Now()
		bars, err := p.Fetch(ctx, symbol, req.StartDate.Time, req.EndDate.Time, timeframe)
		metrics.RecordDataFetch(p.Name(), time.Since(started).Seconds(), err)
		if err != nil {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"source": p.Name(),
				"symbol": symbol,
			}).Warn("Failed to fetch bars")
			return nil, fmt.Errorf("failed to load %s from %s: %w", symbol, p.Name(), err)
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("%w %s in %s between %s and %s", ErrNoBars, symbol, p.Name(),
				req.StartDate, req.EndDate)
		}

		m.cache.Set(key, bars)
		data[symbol] = bars
	}

	m.logger.WithFields(logrus.Fields{
		"source":  p.Name(),
		"symbols": len(data),
	}).Debug("Loaded market data")
	return data, nil
}

// Import parses a CSV upload and stores it as a new source.
// A blank sourceName defaults to custom_<file stem>.
func (m *Manager) Import(ctx context.Context, sourceName, filename string, r io.Reader) (*models.DataUploadResponse, error) {
	if m.repo == nil {
		return nil, errors.New("data uploads require a database")
	}
	if err := CheckUploadFile(filename); err != nil {
		return nil, err
	}
	if sourceName == "" {
		sourceName = DefaultUploadName(filename)
	}

	m.mu.RLock()
	_, builtin := m.providers[sourceName]
	m.mu.RUnlock()
	if builtin {
		return nil, fmt.Errorf("%w: %s is a built-in source", models.ErrDuplicateKey, sourceName)
	}

	bars, err := ParseCSV(r)
	if err != nil {
		return nil, err
	}
	symbols, start, end := summarizeUpload(bars)

	source := &models.CustomDataSource{
		Name:         sourceName,
		Description:  "Custom data uploaded by user",
		SymbolsCount: len(symbols),
		StartDate:    start,
		EndDate:      end,
	}
	if err := m.repo.CreateWithBars(ctx, source, bars); err != nil {
		return nil, fmt.Errorf("failed to store upload %s: %w", sourceName, err)
	}
	m.cache.InvalidateSource(sourceName)

	m.logger.WithFields(logrus.Fields{
		"source":  sourceName,
		"rows":    len(bars),
		"symbols": len(symbols),
	}).Info("Imported custom data")

	return &models.DataUploadResponse{
		SourceName: sourceName,
		Symbols:    symbols,
		Rows:       len(bars),
		Message:    fmt.Sprintf("Successfully uploaded %d rows of data for %d symbols", len(bars), len(symbols)),
	}, nil
}

// DeleteSource removes an uploaded source and its cached bars
func (m *Manager) DeleteSource(ctx context.Context, name string) error {
	if m.repo == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	if err := m.repo.Delete(ctx, name); err != nil {
		return err
	}
	m.cache.InvalidateSource(name)
	return nil
}

// DeleteExpired sweeps expired cache entries and returns how many remain
func (m *Manager) DeleteExpired() int {
	return m.cache.DeleteExpired()
}
