package marketdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/repository"
)

// RequiredColumns must appear in the header of an uploaded file
var RequiredColumns = []string{"date", "symbol", "open", "high", "low", "close", "volume"}

// Upload errors
var (
	ErrUnsupportedFile = errors.New("only CSV files are supported")
	ErrInvalidCSV      = errors.New("invalid CSV data")
	ErrEmptyUpload     = errors.New("uploaded file contains no rows")
)

// MissingColumnsError reports required columns absent from an upload header
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "Missing required columns: " + strings.Join(e.Columns, ", ")
}

// DefaultUploadName derives a source name from the uploaded file name
func DefaultUploadName(filename string) string {
	base := filepath.Base(filename)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return "custom_" + base
}

// CheckUploadFile rejects files that are not CSV
func CheckUploadFile(filename string) error {
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		return ErrUnsupportedFile
	}
	return nil
}

// ParseCSV reads bars from r. The header must contain every RequiredColumns entry;
// extra columns are ignored. Rows are returned in file order.
func ParseCSV(r io.Reader) ([]models.SymbolBar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyUpload
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))] = i
	}
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	var bars []models.SymbolBar
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}
		bar, err := parseRow(record, index)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidCSV, line, err)
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, ErrEmptyUpload
	}
	return bars, nil
}

func parseRow(record []string, index map[string]int) (models.SymbolBar, error) {
	field := func(name string) string {
		i := index[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	symbol := models.NormalizeSymbol(field("symbol"))
	if symbol == "" {
		return models.SymbolBar{}, fmt.Errorf("empty symbol")
	}
	ts, err := parseTimestamp(field("date"))
	if err != nil {
		return models.SymbolBar{}, err
	}

	values := make(map[string]float64, 5)
	for _, name := range []string{"open", "high", "low", "close", "volume"} {
		v, err := strconv.ParseFloat(field(name), 64)
		if err != nil {
			return models.SymbolBar{}, fmt.Errorf("invalid %s %q", name, field(name))
		}
		values[name] = v
	}

	return models.SymbolBar{
		Symbol: symbol,
		Bar: models.Bar{
			Time:   ts,
			Open:   values["open"],
			High:   values["high"],
			Low:    values["low"],
			Close:  values["close"],
			Volume: values["volume"],
		},
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if d, err := models.ParseDate(s); err == nil {
		return d.Time, nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// summarizeUpload returns the sorted distinct symbols and the date range of bars
func summarizeUpload(bars []models.SymbolBar) (symbols []string, start, end time.Time) {
	seen := make(map[string]bool)
	for i, b := range bars {
		if !seen[b.Symbol] {
			seen[b.Symbol] = true
			symbols = append(symbols, b.Symbol)
		}
		if i == 0 || b.Time.Before(start) {
			start = b.Time
		}
		if i == 0 || b.Time.After(end) {
			end = b.Time
		}
	}
	sort.Strings(symbols)
	return symbols, start, end
}

// UploadedProvider serves bars persisted from a user upload
type UploadedProvider struct {
	source *models.CustomDataSource
	repo   repository.DataSourceRepository
}

// NewUploadedProvider wraps a stored upload
func NewUploadedProvider(source *models.CustomDataSource, repo repository.DataSourceRepository) *UploadedProvider {
	return &UploadedProvider{source: source, repo: repo}
}

// Name returns the upload's source name
func (p *UploadedProvider) Name() string { return p.source.Name }

// Describe returns the catalogue entry for the upload
func (p *UploadedProvider) Describe(ctx context.Context) (models.DataSource, error) {
	return p.source.ToDataSource(), nil
}

// Symbols lists the tickers stored for the upload
func (p *UploadedProvider) Symbols(ctx context.Context) ([]string, error) {
	return p.repo.ListSymbols(ctx, p.source.ID)
}

// Fetch reads stored daily bars
func (p *UploadedProvider) Fetch(ctx context.Context, symbol string, start, end time.Time, timeframe models.Timeframe) ([]models.Bar, error) {
	if timeframe != models.TimeframeDay {
		return nil, fmt.Errorf("%w: uploaded source %s holds daily bars", ErrUnsupportedTimeframe, p.source.Name)
	}
	// end is a calendar date; include every bar stamped on that day
	return p.repo.GetBars(ctx, p.source.ID, symbol, start, end.Add(24*time.Hour-time.Nanosecond))
}
