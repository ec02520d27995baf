package backtest

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yourusername/stocktester/internal/models"
)

func sampleCurve() EquityCurve {
	return EquityCurve{
		{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Value: 100000},
		{Time: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Value: 99500.5, Drawdown: 0.004995, PnL: -499.5},
	}
}

func TestGenerateConsoleReport(t *testing.T) {
	result := &models.BacktestResult{
		OverallMetrics: models.BacktestMetrics{
			TotalReturn: models.Float64(0.1234),
			SharpeRatio: models.Float64(1.5),
			NumTrades:   models.Int(12),
		},
		PerSymbolMetrics: map[string]models.SymbolMetrics{"AAPL": {}, "MSFT": {}},
	}

	report := GenerateConsoleReport("momentum", result)
	for _, want := range []string{"Strategy:          momentum", "Symbols:           2", "12.34%", "1.50", "Trades:            12"} {
		if !strings.Contains(report, want) {
			t.Errorf("expected report to contain %q, got:\n%s", want, report)
		}
	}
	if !strings.Contains(report, "Max Drawdown:      n/a") {
		t.Errorf("expected missing drawdown to print n/a, got:\n%s", report)
	}
}

func TestWriteEquityCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEquityCSV(&buf, sampleCurve()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "time,value,drawdown,pnl" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[2] != "2024-01-03T00:00:00Z,99500.5000,0.004995,-499.5000" {
		t.Errorf("unexpected row %q", lines[2])
	}
}

func TestWriteEquityFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "out", "equity.json")
	if err := WriteEquityFile(jsonPath, sampleCurve()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var points []EquityPoint
	if err := json.Unmarshal(data, &points); err != nil {
		t.Fatalf("expected valid JSON, got %v", err)
	}
	if len(points) != 2 || points[1].PnL != -499.5 {
		t.Errorf("unexpected points %+v", points)
	}

	if err := WriteEquityFile(filepath.Join(dir, "equity.txt"), sampleCurve()); err == nil {
		t.Error("expected error for .txt output")
	}
}
