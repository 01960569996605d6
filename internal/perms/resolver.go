package perms

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CodenameSource loads the permission codenames attached to a role.
type CodenameSource interface {
	RoleCodenames(ctx context.Context, roleID int64) ([]string, error)
}

// Resolver computes capability maps from the current committed role data.
// Results are never cached: role or permission edits take effect on the very
// next request.
type Resolver struct {
	source CodenameSource
}

// NewResolver constructs a Resolver.
func NewResolver(source CodenameSource) *Resolver {
	return &Resolver{source: source}
}

// CapabilitiesFor derives the capability map for an identity. An identity
// without a role yields an empty map (deny-all for module-scoped actions).
func (r *Resolver) CapabilitiesFor(ctx context.Context, identity *Identity) (CapabilityMap, error) {
	if identity == nil || identity.RoleID == nil {
		return CapabilityMap{}, nil
	}
	codenames, err := r.source.RoleCodenames(ctx, *identity.RoleID)
	if err != nil {
		return nil, err
	}
	return Resolve(codenames), nil
}

// PGSource reads role permission codenames from PostgreSQL.
type PGSource struct {
	pool *pgxpool.Pool
}

// NewPGSource constructs a PGSource.
func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

// RoleCodenames returns the codenames granted to a role.
func (s *PGSource) RoleCodenames(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.codename
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.codename`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codenames []string
	for rows.Next() {
		var codename string
		if err := rows.Scan(&codename); err != nil {
			return nil, err
		}
		codenames = append(codenames, codename)
	}
	return codenames, rows.Err()
}

var _ CodenameSource = (*PGSource)(nil)
