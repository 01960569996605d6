package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of pgxpool.Pool the recorder needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// FailureCounter is notified of swallowed audit failures (prometheus.Counter
// satisfies it).
type FailureCounter interface {
	Inc()
}

// Recorder appends bitácora entries. Recording never raises: every failure
// (marshalling, connectivity, constraints) is swallowed, logged as a
// diagnostic and reported as a false return. Writes run outside the business
// transaction that triggered them.
type Recorder struct {
	db       Execer
	logger   *slog.Logger
	failures FailureCounter
}

// NewRecorder constructs a Recorder.
func NewRecorder(db Execer, logger *slog.Logger, failures FailureCounter) *Recorder {
	return &Recorder{db: db, logger: logger, failures: failures}
}

// Record attempts a single synchronous insert of the entry. A nil actor is
// allowed (failed-authentication events). The insert is attempted even when
// the request context was already cancelled: a client disconnecting after the
// mutation committed must not lose the trail entry.
func (rec *Recorder) Record(ctx context.Context, entry Entry) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			rec.fail("audit record panic", slog.Any("panic", r))
			ok = false
		}
	}()

	if rec == nil || rec.db == nil {
		return false
	}

	var detalles []byte
	if entry.Detalles != nil {
		encoded, err := json.Marshal(entry.Detalles)
		if err != nil {
			rec.fail("audit detalles marshal", slog.Any("error", err))
			return false
		}
		detalles = encoded
	}

	id := entry.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	_, err := rec.db.Exec(writeCtx, `
		INSERT INTO audit_log (id, actor_id, accion, ip, modulo, detalles, ts)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`,
		id, entry.ActorID, entry.Accion, entry.IP, entry.Modulo, detalles, ts)
	if err != nil {
		rec.fail("audit insert", slog.Any("error", err), slog.String("accion", entry.Accion))
		return false
	}
	return true
}

func (rec *Recorder) fail(msg string, args ...any) {
	if rec.failures != nil {
		rec.failures.Inc()
	}
	if rec.logger != nil {
		rec.logger.Error(msg, args...)
	}
}
