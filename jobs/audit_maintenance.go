package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditMaintenance implements the bitácora background tasks against
// PostgreSQL. Entries themselves are append-only and never deleted; the
// tasks only derive aggregates.
type AuditMaintenance struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAuditMaintenance constructs the task handlers.
func NewAuditMaintenance(pool *pgxpool.Pool, logger *slog.Logger) *AuditMaintenance {
	return &AuditMaintenance{pool: pool, logger: logger}
}

// HandleDailyStats upserts one audit_daily_stats row per module with the
// entry count for the requested day.
func (m *AuditMaintenance) HandleDailyStats(ctx context.Context, t *asynq.Task) error {
	var payload AuditDailyStatsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	day := payload.Day
	if day.IsZero() {
		day = time.Now().UTC().AddDate(0, 0, -1)
	}
	day = day.Truncate(24 * time.Hour)

	tag, err := m.pool.Exec(ctx, `
		INSERT INTO audit_daily_stats (dia, modulo, total)
		SELECT $1::date, COALESCE(modulo, ''), COUNT(*)
		FROM audit_log
		WHERE ts >= $1 AND ts < $1::date + INTERVAL '1 day'
		GROUP BY modulo
		ON CONFLICT (dia, modulo) DO UPDATE SET total = EXCLUDED.total`, day)
	if err != nil {
		return err
	}
	m.logger.Info("audit daily stats aggregated",
		slog.Time("day", day), slog.Int64("modules", tag.RowsAffected()))
	return nil
}
