package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/fedegimenez/inmate-state-ledger/internal/fault"
	"go.uber.org/zap"
)

// Controller is the authorization gate. It answers role queries for the
// transition engine and restricts grant management to ADMIN callers.
type Controller struct {
	store  Store
	logger *zap.Logger
}

// NewController creates a Controller over store.
func NewController(store Store, logger *zap.Logger) *Controller {
	return &Controller{store: store, logger: logger}
}

// NormalizeActor returns the canonical form of an actor id. Actor ids are
// compared case-insensitively, so grants made from configuration keys (which
// arrive lower-cased) match the ids callers present.
func NormalizeActor(actor string) string {
	return strings.ToLower(strings.TrimSpace(actor))
}

// HasRole reports whether actor holds role. Blank actors hold nothing.
func (c *Controller) HasRole(ctx context.Context, actor string, role Role) (bool, error) {
	actor = NormalizeActor(actor)
	if actor == "" || !role.Valid() {
		return false, nil
	}
	ok, err := c.store.HasRole(ctx, actor, role)
	if err != nil {
		return false, fmt.Errorf("check role: %w", err)
	}
	return ok, nil
}

// Require returns a PermissionDenied error unless actor holds role.
func (c *Controller) Require(ctx context.Context, actor string, role Role) error {
	ok, err := c.HasRole(ctx, actor, role)
	if err != nil {
		return err
	}
	if !ok {
		return fault.Denied(actor, role.String())
	}
	return nil
}

// Grant gives role to actor. caller must hold ADMIN.
func (c *Controller) Grant(ctx context.Context, caller, actor string, role Role) error {
	caller, actor = NormalizeActor(caller), NormalizeActor(actor)
	if err := c.validate(actor, role); err != nil {
		return err
	}
	if err := c.Require(ctx, caller, RoleAdmin); err != nil {
		return err
	}
	if err := c.store.Grant(ctx, actor, role, caller); err != nil {
		return err
	}
	c.logger.Info("role granted",
		zap.String("actor", actor),
		zap.Stringer("role", role),
		zap.String("granted_by", caller),
	)
	return nil
}

// Revoke removes role from actor. caller must hold ADMIN.
func (c *Controller) Revoke(ctx context.Context, caller, actor string, role Role) error {
	caller, actor = NormalizeActor(caller), NormalizeActor(actor)
	if err := c.validate(actor, role); err != nil {
		return err
	}
	if err := c.Require(ctx, caller, RoleAdmin); err != nil {
		return err
	}
	if err := c.store.Revoke(ctx, actor, role); err != nil {
		return err
	}
	c.logger.Info("role revoked",
		zap.String("actor", actor),
		zap.Stringer("role", role),
		zap.String("revoked_by", caller),
	)
	return nil
}

// Bootstrap grants roles without a caller check. It is meant for startup
// wiring only, to seed the first administrators from configuration.
func (c *Controller) Bootstrap(ctx context.Context, actor string, roles ...Role) error {
	actor = NormalizeActor(actor)
	for _, r := range roles {
		if err := c.validate(actor, r); err != nil {
			return err
		}
		if err := c.store.Grant(ctx, actor, r, "bootstrap"); err != nil {
			return err
		}
	}
	c.logger.Info("bootstrap grants applied", zap.String("actor", actor), zap.Int("roles", len(roles)))
	return nil
}

// Roles lists the roles held by actor.
func (c *Controller) Roles(ctx context.Context, actor string) ([]Role, error) {
	actor = NormalizeActor(actor)
	if actor == "" {
		return nil, fault.Malformed("actor is required")
	}
	return c.store.Roles(ctx, actor)
}

func (c *Controller) validate(actor string, role Role) error {
	if actor == "" {
		return fault.Malformed("actor is required")
	}
	if !role.Valid() {
		return fault.Malformed("unknown role %d", role)
	}
	return nil
}
