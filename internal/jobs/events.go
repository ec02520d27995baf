package jobs

import (
	"time"

	"github.com/yourusername/stocktester/internal/models"
)

// Event types published on job transitions
const (
	EventPending   = "backtest:pending"
	EventRunning   = "backtest:running"
	EventCompleted = "backtest:completed"
	EventFailed    = "backtest:failed"
	EventCancelled = "backtest:cancelled"
)

// Event describes a job lifecycle change
type Event struct {
	Type          string                `json:"type"`
	BacktestID    string                `json:"backtest_id"`
	Kind          models.JobKind        `json:"kind"`
	Status        models.BacktestStatus `json:"status"`
	ExecutionTime float64               `json:"execution_time,omitempty"`
	Error         string                `json:"error,omitempty"`
	Timestamp     time.Time             `json:"timestamp"`
}

// EventType returns the event name for a status
func EventType(status models.BacktestStatus) string {
	return "backtest:" + string(status)
}

// Publisher receives job events. Publish must not block.
type Publisher interface {
	Publish(event Event)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(Event)

// Publish calls f(event)
func (f PublisherFunc) Publish(event Event) { f(event) }

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}
