package access_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fedegimenez/inmate-state-ledger/internal/access"
	"github.com/fedegimenez/inmate-state-ledger/internal/fault"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var ctx = context.Background()

func TestParseRole(t *testing.T) {
	cases := map[string]access.Role{
		"ADMIN":      access.RoleAdmin,
		"guard":      access.RoleGuard,
		" Medical ":  access.RoleMedical,
		"SOCIAL":     access.RoleSocial,
		"judge":      access.RoleJudge,
		"GUARDIA":    access.RoleGuard,
		"ROL_MEDICO": access.RoleMedical,
		"rol_juez":   access.RoleJudge,
	}
	for in, want := range cases {
		got, err := access.ParseRole(in)
		if err != nil {
			t.Errorf("ParseRole(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseRole(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseRole_unknown(t *testing.T) {
	for _, in := range []string{"", "WARDEN", "ROL_"} {
		if _, err := access.ParseRole(in); !errors.Is(err, fault.ErrMalformedInput) {
			t.Errorf("ParseRole(%q): expected MalformedInput, got %v", in, err)
		}
	}
}

func newController(t *testing.T) *access.Controller {
	t.Helper()
	c := access.NewController(access.NewMemoryStore(), zap.NewNop())
	if err := c.Bootstrap(ctx, "admin-1", access.RoleAdmin); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return c
}

func TestController_zeroGrantsAuthorizeNothing(t *testing.T) {
	c := newController(t)
	for _, r := range access.Roles {
		ok, err := c.HasRole(ctx, "nobody", r)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Errorf("actor with no grants holds %s", r)
		}
	}
}

func TestController_GrantByAdmin(t *testing.T) {
	c := newController(t)

	if err := c.Grant(ctx, "admin-1", "guard-1", access.RoleGuard); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	ok, _ := c.HasRole(ctx, "guard-1", access.RoleGuard)
	if !ok {
		t.Error("expected guard-1 to hold GUARD")
	}
	ok, _ = c.HasRole(ctx, "guard-1", access.RoleAdmin)
	if ok {
		t.Error("GUARD grant must not imply ADMIN")
	}
}

func TestController_GrantByNonAdminDenied(t *testing.T) {
	c := newController(t)
	_ = c.Grant(ctx, "admin-1", "guard-1", access.RoleGuard)

	err := c.Grant(ctx, "guard-1", "guard-2", access.RoleGuard)
	if !errors.Is(err, fault.ErrPermissionDenied) {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	ok, _ := c.HasRole(ctx, "guard-2", access.RoleGuard)
	if ok {
		t.Error("denied grant must not be recorded")
	}
}

func TestController_Revoke(t *testing.T) {
	c := newController(t)
	_ = c.Grant(ctx, "admin-1", "judge-1", access.RoleJudge)

	if err := c.Revoke(ctx, "admin-1", "judge-1", access.RoleJudge); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	ok, _ := c.HasRole(ctx, "judge-1", access.RoleJudge)
	if ok {
		t.Error("revoked role still held")
	}
	// Revoking again is a no-op.
	if err := c.Revoke(ctx, "admin-1", "judge-1", access.RoleJudge); err != nil {
		t.Errorf("second Revoke: %v", err)
	}
}

func TestController_malformed(t *testing.T) {
	c := newController(t)
	if err := c.Grant(ctx, "admin-1", " ", access.RoleGuard); !errors.Is(err, fault.ErrMalformedInput) {
		t.Errorf("blank actor: expected MalformedInput, got %v", err)
	}
	if err := c.Grant(ctx, "admin-1", "x", access.Role(42)); !errors.Is(err, fault.ErrMalformedInput) {
		t.Errorf("unknown role: expected MalformedInput, got %v", err)
	}
}

func TestController_Roles(t *testing.T) {
	c := newController(t)
	_ = c.Grant(ctx, "admin-1", "multi", access.RoleSocial)
	_ = c.Grant(ctx, "admin-1", "multi", access.RoleGuard)

	roles, err := c.Roles(ctx, "multi")
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 2 || roles[0] != access.RoleGuard || roles[1] != access.RoleSocial {
		t.Errorf("Roles: got %v, want [GUARD SOCIAL]", roles)
	}
}

func TestController_actorsAreCaseInsensitive(t *testing.T) {
	c := newController(t)
	if err := c.Grant(ctx, "ADMIN-1", " Medico-2 ", access.RoleMedical); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	for _, actor := range []string{"medico-2", "MEDICO-2", "Medico-2"} {
		if err := c.Require(ctx, actor, access.RoleMedical); err != nil {
			t.Errorf("Require(%q): %v", actor, err)
		}
	}
	if err := c.Revoke(ctx, "Admin-1", "MEDICO-2", access.RoleMedical); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if ok, _ := c.HasRole(ctx, "medico-2", access.RoleMedical); ok {
		t.Error("revoke must match the grant regardless of case")
	}
}

func TestSQLiteStore(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "grants.db"))
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := access.NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}

	if err := s.Grant(ctx, "m-1", access.RoleMedical, "admin"); err != nil {
		t.Fatal(err)
	}
	if err := s.Grant(ctx, "m-1", access.RoleMedical, "admin"); err != nil {
		t.Fatalf("duplicate grant should be a no-op: %v", err)
	}
	ok, err := s.HasRole(ctx, "m-1", access.RoleMedical)
	if err != nil || !ok {
		t.Fatalf("HasRole: ok=%v err=%v", ok, err)
	}
	roles, _ := s.Roles(ctx, "m-1")
	if len(roles) != 1 {
		t.Errorf("Roles: got %v", roles)
	}
	if err := s.Revoke(ctx, "m-1", access.RoleMedical); err != nil {
		t.Fatal(err)
	}
	ok, _ = s.HasRole(ctx, "m-1", access.RoleMedical)
	if ok {
		t.Error("role still held after revoke")
	}
}
