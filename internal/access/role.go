package access

import (
	"strings"

	"github.com/fedegimenez/inmate-state-ledger/internal/fault"
)

// Role is one of the closed set of role tags that gate transitions.
type Role uint8

const (
	RoleAdmin Role = iota + 1
	RoleGuard
	RoleMedical
	RoleSocial
	RoleJudge
)

// Roles lists every valid role in declaration order.
var Roles = []Role{RoleAdmin, RoleGuard, RoleMedical, RoleSocial, RoleJudge}

var roleNames = map[Role]string{
	RoleAdmin:   "ADMIN",
	RoleGuard:   "GUARD",
	RoleMedical: "MEDICAL",
	RoleSocial:  "SOCIAL",
	RoleJudge:   "JUDGE",
}

// roleAliases maps legacy Spanish role tags onto the canonical set.
var roleAliases = map[string]Role{
	"GUARDIA": RoleGuard,
	"MEDICO":  RoleMedical,
	"JUEZ":    RoleJudge,
}

func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return "UNKNOWN"
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// ParseRole converts a role tag into a Role. It is case-insensitive and
// accepts an optional "ROL_" prefix. Unknown tags yield a MalformedInput error.
func ParseRole(s string) (Role, error) {
	tag := strings.ToUpper(strings.TrimSpace(s))
	tag = strings.TrimPrefix(tag, "ROL_")
	for r, n := range roleNames {
		if n == tag {
			return r, nil
		}
	}
	if r, ok := roleAliases[tag]; ok {
		return r, nil
	}
	return 0, fault.Malformed("unknown role %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fault.Malformed("unknown role %d", r)
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
