package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads bitácora entries. There are deliberately no update or
// delete operations: the trail is append-only.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns entries newest-first with the total matching count.
func (r *Repository) List(ctx context.Context, filters ListFilters, limit, offset int) ([]Entry, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filters.ActorID != nil {
		conditions = append(conditions, fmt.Sprintf("b.actor_id = $%d", argPos))
		args = append(args, *filters.ActorID)
		argPos++
	}
	if filters.IP != "" {
		conditions = append(conditions, fmt.Sprintf("b.ip = $%d", argPos))
		args = append(args, filters.IP)
		argPos++
	}
	if !filters.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("b.ts >= $%d", argPos))
		args = append(args, filters.From)
		argPos++
	}
	if !filters.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("b.ts <= $%d", argPos))
		args = append(args, filters.To)
		argPos++
	}
	if filters.Search != "" {
		pattern := "%" + filters.Search + "%"
		conditions = append(conditions, fmt.Sprintf("(b.accion ILIKE $%d OR u.email ILIKE $%d OR u.nombre ILIKE $%d)", argPos, argPos, argPos))
		args = append(args, pattern)
		argPos++
	}

	whereClause := ""
	for i, cond := range conditions {
		if i == 0 {
			whereClause = "WHERE " + cond
			continue
		}
		whereClause += " AND " + cond
	}

	countQuery := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM audit_log b
		LEFT JOIN users u ON u.id = b.actor_id
		%s`, whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT b.id, b.actor_id, b.accion, b.ip, b.modulo, b.detalles, b.ts,
		       u.email, u.nombre, u.apellido
		FROM audit_log b
		LEFT JOIN users u ON u.id = b.actor_id
		%s
		ORDER BY b.ts DESC
		LIMIT $%d OFFSET $%d`, whereClause, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var entry Entry
	var actorID pgtype.Int8
	var modulo pgtype.Text
	var detalles []byte
	var ts pgtype.Timestamptz
	var email, nombre, apellido pgtype.Text

	if err := row.Scan(&entry.ID, &actorID, &entry.Accion, &entry.IP, &modulo, &detalles, &ts, &email, &nombre, &apellido); err != nil {
		return Entry{}, err
	}
	if actorID.Valid {
		id := actorID.Int64
		entry.ActorID = &id
		entry.Actor = &ActorSummary{
			ID:       id,
			Email:    email.String,
			Nombre:   nombre.String,
			Apellido: apellido.String,
		}
	}
	if modulo.Valid {
		entry.Modulo = modulo.String
	}
	if ts.Valid {
		entry.Timestamp = ts.Time
	}
	if len(detalles) > 0 {
		entry.Detalles = decodeDetalles(detalles)
	}
	return entry, nil
}
