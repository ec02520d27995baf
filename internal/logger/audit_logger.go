// Package logger provides audit logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// AuditLogger provides dedicated audit trail logging.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogUserRegistered logs a new account.
func (al *AuditLogger) LogUserRegistered(userID, username, email string) {
	al.WithFields(logrus.Fields{
		"user_id":  userID,
		"username": username,
		"email":    email,
	}).Info("User registered")
}

// LogLogin logs a login attempt.
func (al *AuditLogger) LogLogin(username string, success bool, remoteAddr string) {
	entry := al.WithFields(logrus.Fields{
		"username":    username,
		"success":     success,
		"remote_addr": remoteAddr,
	})
	if success {
		entry.Info("User logged in")
		return
	}
	entry.Warn("Login rejected")
}

// LogBacktestSubmitted logs a submitted job.
func (al *AuditLogger) LogBacktestSubmitted(backtestID, userID, kind, strategyName string, symbols int, priority int) {
	al.WithFields(logrus.Fields{
		"backtest_id": backtestID,
		"user_id":     userID,
		"kind":        kind,
		"strategy":    strategyName,
		"symbols":     symbols,
		"priority":    priority,
	}).Info("Backtest submitted")
}

// LogBacktestCancelled logs a cancellation request.
func (al *AuditLogger) LogBacktestCancelled(backtestID, userID string) {
	al.WithFields(logrus.Fields{
		"backtest_id": backtestID,
		"user_id":     userID,
	}).Info("Backtest cancelled")
}

// LogWatchlistChange logs a watchlist add or remove.
func (al *AuditLogger) LogWatchlistChange(userID, symbol, action string) {
	al.WithFields(logrus.Fields{
		"user_id": userID,
		"symbol":  symbol,
		"action":  action,
	}).Info("Watchlist changed")
}

// LogDataUpload logs an uploaded data source.
func (al *AuditLogger) LogDataUpload(userID, sourceName string, rows, symbols int) {
	al.WithFields(logrus.Fields{
		"user_id":     userID,
		"source_name": sourceName,
		"rows":        rows,
		"symbols":     symbols,
	}).Info("Market data uploaded")
}
