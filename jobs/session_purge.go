package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskSessionPurge trims login session rows past their expiry.
const TaskSessionPurge = "sessions:purge"

// SessionPurge removes expired session rows. The Redis copy expires on its
// own TTL; this keeps the PostgreSQL audit trail of logins bounded.
type SessionPurge struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSessionPurge constructs the task handler.
func NewSessionPurge(pool *pgxpool.Pool, logger *slog.Logger) *SessionPurge {
	return &SessionPurge{pool: pool, logger: logger}
}

// NewSessionPurgeTask constructs the task. It carries no payload.
func NewSessionPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionPurge, nil)
}

// Handle deletes sessions whose expiry has passed.
func (s *SessionPurge) Handle(ctx context.Context, t *asynq.Task) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		s.logger.Info("session purge", slog.Int64("deleted", tag.RowsAffected()))
	}
	return nil
}
