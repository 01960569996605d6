package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditDailyStats aggregates the previous day's bitácora activity.
	TaskAuditDailyStats = "audit:daily_stats"
)

// AuditDailyStatsPayload selects the day to aggregate. A zero Day means
// yesterday.
type AuditDailyStatsPayload struct {
	Day time.Time `json:"day"`
}

// NewAuditDailyStatsTask constructs the aggregation task.
func NewAuditDailyStatsTask(payload AuditDailyStatsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditDailyStats, data), nil
}
