package models

import "time"

// Bar is one OHLCV observation
type Bar struct {
	Time   time.Time `db:"ts" json:"time"`
	Open   float64   `db:"open" json:"open"`
	High   float64   `db:"high" json:"high"`
	Low    float64   `db:"low" json:"low"`
	Close  float64   `db:"close" json:"close"`
	Volume float64   `db:"volume" json:"volume"`
}

// Closes extracts the close price series
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// DataSource describes a market data source available to backtests
type DataSource struct {
	Name         string   `db:"name" json:"name"`
	Description  string   `db:"description" json:"description"`
	SymbolsCount int      `db:"symbols_count" json:"symbols_count"`
	StartDate    *Date    `db:"start_date" json:"start_date"`
	EndDate      *Date    `db:"end_date" json:"end_date"`
	Timeframes   []string `db:"timeframes" json:"timeframes"`
}

// CustomDataSource is an uploaded data set persisted in custom_data_sources
type CustomDataSource struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Description  string    `db:"description" json:"description"`
	SymbolsCount int       `db:"symbols_count" json:"symbols_count"`
	StartDate    time.Time `db:"start_date" json:"start_date"`
	EndDate      time.Time `db:"end_date" json:"end_date"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ToDataSource converts the stored row into its catalogue entry
func (c *CustomDataSource) ToDataSource() DataSource {
	start := Date{Time: c.StartDate.UTC()}
	end := Date{Time: c.EndDate.UTC()}
	return DataSource{
		Name:         c.Name,
		Description:  c.Description,
		SymbolsCount: c.SymbolsCount,
		StartDate:    &start,
		EndDate:      &end,
		Timeframes:   []string{string(TimeframeDay)},
	}
}

// SymbolBar is a bar tagged with its symbol, as parsed from an upload
type SymbolBar struct {
	Symbol string
	Bar
}

// DataUploadResponse is returned by POST /api/v1/data/upload
type DataUploadResponse struct {
	SourceName string   `json:"source_name"`
	Symbols    []string `json:"symbols"`
	Rows       int      `json:"rows"`
	Message    string   `json:"message"`
}
