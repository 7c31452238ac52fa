package access

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS role_grants (
    actor      TEXT    NOT NULL,
    role       TEXT    NOT NULL,
    granted_by TEXT    NOT NULL,
    granted_at INTEGER NOT NULL,
    PRIMARY KEY (actor, role)
);`

// SQLiteStore persists role grants in a SQLite database, typically the same
// handle used by the ledger's SQLite backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore ensures the role_grants table exists and returns a store over db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("ensure role_grants table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Grant implements Store.
func (s *SQLiteStore) Grant(ctx context.Context, actor string, role Role, grantedBy string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO role_grants (actor, role, granted_by, granted_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (actor, role) DO NOTHING`,
		actor, role.String(), grantedBy, time.Now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert role grant: %w", err)
	}
	return nil
}

// Revoke implements Store.
func (s *SQLiteStore) Revoke(ctx context.Context, actor string, role Role) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM role_grants WHERE actor = ? AND role = ?`, actor, role.String(),
	); err != nil {
		return fmt.Errorf("delete role grant: %w", err)
	}
	return nil
}

// HasRole implements Store.
func (s *SQLiteStore) HasRole(ctx context.Context, actor string, role Role) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM role_grants WHERE actor = ? AND role = ?`, actor, role.String(),
	).Scan(&n); err != nil {
		return false, fmt.Errorf("query role grant: %w", err)
	}
	return n > 0, nil
}

// Roles implements Store.
func (s *SQLiteStore) Roles(ctx context.Context, actor string) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role FROM role_grants WHERE actor = ?`, actor)
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
		if r, err := ParseRole(tag); err == nil {
			roles = append(roles, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortRoles(roles)
	return roles, nil
}
