package access

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore persists role grants in the role_grants table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Grant implements Store.
func (s *PostgresStore) Grant(ctx context.Context, actor string, role Role, grantedBy string) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO role_grants (actor, role, granted_by, granted_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (actor, role) DO NOTHING`,
		actor, role.String(), grantedBy,
	); err != nil {
		return fmt.Errorf("insert role grant: %w", err)
	}
	s.logger.Debug("role granted", zap.String("actor", actor), zap.Stringer("role", role))
	return nil
}

// Revoke implements Store.
func (s *PostgresStore) Revoke(ctx context.Context, actor string, role Role) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM role_grants WHERE actor = $1 AND role = $2`,
		actor, role.String(),
	); err != nil {
		return fmt.Errorf("delete role grant: %w", err)
	}
	return nil
}

// HasRole implements Store.
func (s *PostgresStore) HasRole(ctx context.Context, actor string, role Role) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM role_grants WHERE actor = $1 AND role = $2)`,
		actor, role.String(),
	).Scan(&ok); err != nil {
		return false, fmt.Errorf("query role grant: %w", err)
	}
	return ok, nil
}

// Roles implements Store.
func (s *PostgresStore) Roles(ctx context.Context, actor string) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT role FROM role_grants WHERE actor = $1`, actor)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		r, err := ParseRole(tag)
		if err != nil {
			s.logger.Warn("ignoring unknown stored role", zap.String("actor", actor), zap.String("role", tag))
			continue
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortRoles(roles)
	return roles, nil
}
