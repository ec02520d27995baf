package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/stocktester/internal/models"
)

// GenerateConsoleReport formats the overall metrics for terminal output.
// Metrics that were not computed print as n/a.
func GenerateConsoleReport(strategyName string, result *models.BacktestResult) string {
	m := result.OverallMetrics

	var builder strings.Builder
	builder.WriteString("Backtest Report\n")
	builder.WriteString("===============\n")
	builder.WriteString(fmt.Sprintf("Strategy:          %s\n", strategyName))
	builder.WriteString(fmt.Sprintf("Symbols:           %d\n", len(result.PerSymbolMetrics)))
	builder.WriteString(fmt.Sprintf("Total Return:      %s\n", percent(m.TotalReturn)))
	builder.WriteString(fmt.Sprintf("CAGR:              %s\n", percent(m.CAGR)))
	builder.WriteString(fmt.Sprintf("Sharpe Ratio:      %s\n", ratio(m.SharpeRatio)))
	builder.WriteString(fmt.Sprintf("Sortino Ratio:     %s\n", ratio(m.SortinoRatio)))
	builder.WriteString(fmt.Sprintf("Max Drawdown:      %s\n", percent(m.MaxDrawdown)))
	builder.WriteString(fmt.Sprintf("Win Rate:          %s\n", percent(m.WinRate)))
	builder.WriteString(fmt.Sprintf("Profit Factor:     %s\n", ratio(m.ProfitFactor)))
	if m.NumTrades != nil {
		builder.WriteString(fmt.Sprintf("Trades:            %d\n", *m.NumTrades))
	}
	return builder.String()
}

func percent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *v*100)
}

func ratio(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

// WriteEquityFile writes the curve as CSV or JSON depending on the extension
func WriteEquityFile(outputPath string, curve EquityCurve) error {
	ext := strings.ToLower(filepath.Ext(outputPath))
	if ext != ".csv" && ext != ".json" {
		return fmt.Errorf("unsupported equity output %q, use .csv or .json", outputPath)
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	defer f.Close()

	if ext == ".json" {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(curve)
	}
	return WriteEquityCSV(f, curve)
}

// WriteEquityCSV exports the curve for spreadsheets
func WriteEquityCSV(w io.Writer, curve EquityCurve) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "value", "drawdown", "pnl"}); err != nil {
		return err
	}
	for _, p := range curve {
		row := []string{
			p.Time.UTC().Format(time.RFC3339),
			strconv.FormatFloat(p.Value, 'f', 4, 64),
			strconv.FormatFloat(p.Drawdown, 'f', 6, 64),
			strconv.FormatFloat(p.PnL, 'f', 4, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
