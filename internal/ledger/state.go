package ledger

import "fmt"

// State is the custody state of a record.
type State uint8

const (
	StateNone State = iota
	StateIngresado
	StateEnTraslado
	StateSancionado
	StateEnRehabilitacion
	StateLiberado
)

var stateNames = [...]string{
	StateNone:             "NONE",
	StateIngresado:        "INGRESADO",
	StateEnTraslado:       "EN_TRASLADO",
	StateSancionado:       "SANCIONADO",
	StateEnRehabilitacion: "EN_REHABILITACION",
	StateLiberado:         "LIBERADO",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Valid reports whether s is a defined state.
func (s State) Valid() bool {
	return int(s) < len(stateNames)
}

// Kind is the type of a committed transition.
type Kind uint8

const (
	KindIntake Kind = iota
	KindOrderTransfer
	KindArriveAtDestination
	KindApplySanction
	KindFulfillSanction
	KindStartProgram
	KindEndProgram
	KindRelease
	KindMedicalReport
)

// Kinds lists every transition kind.
var Kinds = []Kind{
	KindIntake, KindOrderTransfer, KindArriveAtDestination,
	KindApplySanction, KindFulfillSanction,
	KindStartProgram, KindEndProgram,
	KindRelease, KindMedicalReport,
}

var kindNames = [...]string{
	KindIntake:              "Intake",
	KindOrderTransfer:       "OrderTransfer",
	KindArriveAtDestination: "ArriveAtDestination",
	KindApplySanction:       "ApplySanction",
	KindFulfillSanction:     "FulfillSanction",
	KindStartProgram:        "StartProgram",
	KindEndProgram:          "EndProgram",
	KindRelease:             "Release",
	KindMedicalReport:       "MedicalReport",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether k is a defined transition kind.
func (k Kind) Valid() bool {
	return int(k) < len(kindNames)
}
