// Package backend opens the ledger and role stores selected by configuration.
package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fedegimenez/inmate-state-ledger/internal/access"
	"github.com/fedegimenez/inmate-state-ledger/internal/config"
	"github.com/fedegimenez/inmate-state-ledger/internal/ledger"
)

// Backend holds the opened stores and releases them on Close.
type Backend struct {
	Ledger ledger.Store
	Roles  access.Store
	close  func()
}

// Close releases the underlying connections.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// Open connects the storage backend named by cfg.Storage.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory ledger; state is lost on restart")
		return &Backend{Ledger: ledger.NewMemoryStore(), Roles: access.NewMemoryStore()}, nil

	case config.StoragePostgres:
		db, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		return &Backend{
			Ledger: ledger.NewPostgresStore(db, logger),
			Roles:  access.NewPostgresStore(db, logger),
			close:  db.Close,
		}, nil

	case config.StorageSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		store, err := ledger.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		roles, err := access.NewSQLiteStore(store.DB())
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.Info("opened sqlite ledger", zap.String("path", cfg.SQLitePath))
		return &Backend{
			Ledger: store,
			Roles:  roles,
			close:  func() { _ = store.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
}

// Bootstrap grants the configured roles without a caller check.
func Bootstrap(ctx context.Context, ctl *access.Controller, grants map[string][]string) error {
	for actor, tags := range grants {
		roles := make([]access.Role, 0, len(tags))
		for _, tag := range tags {
			r, err := access.ParseRole(tag)
			if err != nil {
				return fmt.Errorf("access.bootstrap[%s]: %w", actor, err)
			}
			roles = append(roles, r)
		}
		if err := ctl.Bootstrap(ctx, actor, roles...); err != nil {
			return fmt.Errorf("access.bootstrap[%s]: %w", actor, err)
		}
	}
	return nil
}
