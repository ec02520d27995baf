// Package logger provides advisor-specific logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// AdvisorLogger provides dedicated logging for the AI backtest advisor.
type AdvisorLogger struct {
	*logrus.Entry
}

// NewAdvisorLogger creates a new advisor logger.
func NewAdvisorLogger(baseLogger *logrus.Logger) *AdvisorLogger {
	return &AdvisorLogger{
		Entry: baseLogger.WithField("component", "advisor"),
	}
}

// LogCandidatesGenerated logs the candidate set produced for a search.
func (al *AdvisorLogger) LogCandidatesGenerated(backtestID, source string, candidates int, cacheHit bool) {
	al.WithFields(logrus.Fields{
		"backtest_id": backtestID,
		"source":      source,
		"candidates":  candidates,
		"cache_hit":   cacheHit,
	}).Info("Advisor candidates generated")
}

// LogRemoteAdvisorError logs a remote advisor failure before falling back.
func (al *AdvisorLogger) LogRemoteAdvisorError(backtestID string, err error) {
	al.WithField("backtest_id", backtestID).WithError(err).Warn("Remote advisor unavailable, using local grid")
}

// LogRecommendation logs the winning candidate.
func (al *AdvisorLogger) LogRecommendation(backtestID, strategy, objective string, score float64, evaluated int) {
	al.WithFields(logrus.Fields{
		"backtest_id": backtestID,
		"strategy":    strategy,
		"objective":   objective,
		"score":       score,
		"evaluated":   evaluated,
	}).Info("Advisor recommendation selected")
}
