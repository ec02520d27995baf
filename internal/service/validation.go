// Package service holds the business logic behind the REST API.
package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/yourusername/stocktester/internal/backtest"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/strategy"
)

// ValidationError collects every problem found in a request
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "validation failed: " + e.Problems[0]
	}
	return fmt.Sprintf("validation failed: %d problems", len(e.Problems))
}

func (e *ValidationError) add(format string, args ...interface{}) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ValidationError) errOrNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,50}$`)
	symbolPattern   = regexp.MustCompile(`^[A-Z0-9.\-]{1,15}$`)
)

// SourceChecker describes a data source, returning nil when it does not exist
type SourceChecker interface {
	LookupSource(ctx context.Context, name string) (*models.DataSource, error)
}

// RequestValidator checks request DTOs with struct tags and then semantic rules
type RequestValidator struct {
	validate   *validator.Validate
	registry   *strategy.Registry
	sources    SourceChecker
	maxSymbols int
}

// NewRequestValidator creates a validator. sources may be nil to skip the data source lookup.
func NewRequestValidator(registry *strategy.Registry, sources SourceChecker, maxSymbols int) *RequestValidator {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return &RequestValidator{
		validate:   v,
		registry:   registry,
		sources:    sources,
		maxSymbols: maxSymbols,
	}
}

// structProblems runs the struct tags and renders each failure as one line
func (rv *RequestValidator) structProblems(s interface{}, verr *ValidationError) {
	err := rv.validate.Struct(s)
	if err == nil {
		return
	}
	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		verr.add("%v", err)
		return
	}
	for _, fe := range fieldErrors {
		field := jsonPath(fe.Namespace())
		switch fe.Tag() {
		case "required":
			verr.add("%s is required", field)
		case "email":
			verr.add("%s must be a valid email address", field)
		case "username":
			verr.add("%s must be 3-50 letters, digits or underscores", field)
		case "oneof":
			verr.add("%s must be one of: %s", field, fe.Param())
		case "min":
			if fe.Kind().String() == "slice" {
				verr.add("%s must contain at least %s entries", field, fe.Param())
			} else {
				verr.add("%s must be at least %s characters", field, fe.Param())
			}
		case "gt", "gte", "lt", "lte":
			verr.add("%s must be %s %s", field, comparison(fe.Tag()), fe.Param())
		default:
			verr.add("%s failed %s validation", field, fe.Tag())
		}
	}
}

// ValidateBacktest checks a backtest request
func (rv *RequestValidator) ValidateBacktest(ctx context.Context, req *models.BacktestRequest) error {
	verr := &ValidationError{}
	rv.structProblems(req, verr)
	rv.checkData(ctx, req.Data, verr)

	if req.Strategy.Name != "" {
		if err := rv.registry.ValidateDefinition(req.Strategy); err != nil {
			verr.add("strategy: %v", err)
		}
	}
	for _, name := range req.Output.Metrics {
		if !backtest.IsKnownMetric(name) {
			verr.add("output.metrics: unknown metric '%s'", name)
		}
	}
	return verr.errOrNil()
}

// ValidateAIBacktest checks an advisor request
func (rv *RequestValidator) ValidateAIBacktest(ctx context.Context, req *models.AIBacktestRequest) error {
	verr := &ValidationError{}
	rv.structProblems(req, verr)
	rv.checkData(ctx, req.Data, verr)
	for _, name := range req.Strategies {
		if _, err := rv.registry.Get(name); err != nil {
			verr.add("strategies: unknown strategy '%s'", name)
		}
	}
	return verr.errOrNil()
}

func (rv *RequestValidator) checkData(ctx context.Context, data models.DataRequest, verr *ValidationError) {
	if data.StartDate.IsZero() {
		verr.add("data.start_date is required")
	}
	if data.EndDate.IsZero() {
		verr.add("data.end_date is required")
	}
	if !data.StartDate.IsZero() && !data.EndDate.IsZero() && !data.EndDate.After(data.StartDate.Time) {
		verr.add("data.end_date must be after data.start_date")
	}
	if rv.maxSymbols > 0 && len(data.Symbols) > rv.maxSymbols {
		verr.add("data.symbols: %d symbols requested, limit is %d", len(data.Symbols), rv.maxSymbols)
	}
	if rv.sources != nil && data.DataSource != "" {
		source, err := rv.sources.LookupSource(ctx, data.DataSource)
		switch {
		case err != nil:
			verr.add("data.data_source: %v", err)
		case source == nil:
			verr.add("data.data_source: unknown data source '%s'", data.DataSource)
		case data.Timeframe != "" && !serves(source.Timeframes, string(data.Timeframe)):
			verr.add("data.timeframe: source '%s' does not serve '%s' bars (available: %s)",
				data.DataSource, data.Timeframe, strings.Join(source.Timeframes, ", "))
		}
	}
}

func serves(timeframes []string, tf string) bool {
	for _, t := range timeframes {
		if t == tf {
			return true
		}
	}
	return false
}

// NormalizeWatchSymbol trims and upper-cases symbol and checks its shape
func NormalizeWatchSymbol(symbol string) (string, error) {
	s := models.NormalizeSymbol(symbol)
	if !symbolPattern.MatchString(s) {
		return "", &ValidationError{Problems: []string{
			fmt.Sprintf("symbol '%s' must be 1-15 characters of A-Z, 0-9, '.' or '-'", strings.TrimSpace(symbol)),
		}}
	}
	return s, nil
}

// jsonPath turns BacktestRequest.Data.StartDate into data.start_date
func jsonPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snakeCase(p)
	}
	return strings.Join(parts, ".")
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && s[i-1] != '[' {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func comparison(tag string) string {
	switch tag {
	case "gt":
		return ">"
	case "gte":
		return ">="
	case "lt":
		return "<"
	default:
		return "<="
	}
}
