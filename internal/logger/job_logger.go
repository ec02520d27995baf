// Package logger provides job lifecycle logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// JobLogger provides dedicated logging for backtest jobs.
type JobLogger struct {
	*logrus.Entry
}

// NewJobLogger creates a new job logger.
func NewJobLogger(baseLogger *logrus.Logger) *JobLogger {
	return &JobLogger{
		Entry: baseLogger.WithField("component", "jobs"),
	}
}

// LogJobQueued logs a job entering the queue.
func (jl *JobLogger) LogJobQueued(backtestID, kind string, priority, queued int) {
	jl.WithFields(logrus.Fields{
		"backtest_id": backtestID,
		"kind":        kind,
		"priority":    priority,
		"queued_jobs": queued,
	}).Info("Job queued")
}

// LogJobStarted logs a worker picking up a job.
func (jl *JobLogger) LogJobStarted(backtestID, kind string, worker int, waited time.Duration) {
	jl.WithFields(logrus.Fields{
		"backtest_id": backtestID,
		"kind":        kind,
		"worker":      worker,
		"wait_ms":     waited.Milliseconds(),
	}).Info("Job started")
}

// LogJobCompleted logs a successful job.
func (jl *JobLogger) LogJobCompleted(backtestID, kind, strategy string, duration time.Duration, trades int) {
	jl.WithFields(logrus.Fields{
		"backtest_id": backtestID,
		"kind":        kind,
		"strategy":    strategy,
		"duration_ms": duration.Milliseconds(),
		"trades":      trades,
	}).Info("Job completed")
}

// LogJobFailed logs a failed job.
func (jl *JobLogger) LogJobFailed(backtestID, kind string, duration time.Duration, err error) {
	jl.WithFields(logrus.Fields{
		"backtest_id": backtestID,
		"kind":        kind,
		"duration_ms": duration.Milliseconds(),
	}).WithError(err).Error("Job failed")
}

// LogJobCancelled logs a cancelled job.
func (jl *JobLogger) LogJobCancelled(backtestID string) {
	jl.WithField("backtest_id", backtestID).Info("Job cancelled")
}

// LogRecovery logs startup recovery of jobs left by a previous process.
func (jl *JobLogger) LogRecovery(interrupted int64, requeued int) {
	jl.WithFields(logrus.Fields{
		"interrupted": interrupted,
		"requeued":    requeued,
	}).Info("Recovered jobs from previous run")
}
