package service

import (
	"slices"

	"github.com/fedegimenez/inmate-state-ledger/internal/access"
	"github.com/fedegimenez/inmate-state-ledger/internal/ledger"
)

// rule is one row of the custody state machine.
type rule struct {
	role access.Role
	// create marks the transition that brings a record into existence.
	create bool
	// from lists valid source states; nil means any existing state.
	from []ledger.State
	to   ledger.State
	// preserve keeps the current state instead of moving to to.
	preserve bool
	// setsLocation marks transitions that carry a location field.
	setsLocation bool
}

var rules = map[ledger.Kind]rule{
	ledger.KindIntake: {
		role: access.RoleGuard, create: true,
		to: ledger.StateIngresado, setsLocation: true,
	},
	ledger.KindOrderTransfer: {
		role: access.RoleAdmin,
		from: []ledger.State{ledger.StateIngresado, ledger.StateSancionado, ledger.StateEnRehabilitacion},
		to:   ledger.StateEnTraslado, setsLocation: true,
	},
	ledger.KindArriveAtDestination: {
		role: access.RoleGuard,
		from: []ledger.State{ledger.StateEnTraslado},
		to:   ledger.StateIngresado, setsLocation: true,
	},
	ledger.KindApplySanction: {
		role: access.RoleAdmin,
		from: []ledger.State{ledger.StateIngresado},
		to:   ledger.StateSancionado,
	},
	ledger.KindFulfillSanction: {
		role: access.RoleAdmin,
		from: []ledger.State{ledger.StateSancionado},
		to:   ledger.StateIngresado,
	},
	ledger.KindStartProgram: {
		role: access.RoleSocial,
		from: []ledger.State{ledger.StateIngresado},
		to:   ledger.StateEnRehabilitacion,
	},
	ledger.KindEndProgram: {
		role: access.RoleSocial,
		from: []ledger.State{ledger.StateEnRehabilitacion},
		to:   ledger.StateIngresado,
	},
	ledger.KindRelease: {
		role: access.RoleJudge,
		from: []ledger.State{ledger.StateEnRehabilitacion},
		to:   ledger.StateLiberado,
	},
	ledger.KindMedicalReport: {
		role:     access.RoleMedical,
		preserve: true,
	},
}

func (r rule) allows(s ledger.State) bool {
	return r.from == nil || slices.Contains(r.from, s)
}

func (r rule) expected() []string {
	names := make([]string, len(r.from))
	for i, s := range r.from {
		names[i] = s.String()
	}
	return names
}

func (r rule) next(current ledger.State) ledger.State {
	if r.preserve {
		return current
	}
	return r.to
}

// RequiredRole returns the role an actor must hold to apply kind.
func RequiredRole(kind ledger.Kind) (access.Role, bool) {
	r, ok := rules[kind]
	return r.role, ok
}

// Next folds one transition over the state machine: it returns the state a
// record in current ends up in after kind, and whether the edge exists.
// current is StateNone for a record that does not exist yet.
func Next(current ledger.State, kind ledger.Kind) (ledger.State, bool) {
	r, ok := rules[kind]
	if !ok {
		return current, false
	}
	if r.create {
		return r.to, current == ledger.StateNone
	}
	if current == ledger.StateNone || !r.allows(current) {
		return current, false
	}
	return r.next(current), true
}
