package ledger

import (
	"time"

	"github.com/fedegimenez/inmate-state-ledger/internal/digest"
	"github.com/fedegimenez/inmate-state-ledger/internal/fault"
)

// Record is the authoritative custody entry of one individual.
// The raw human-readable identifier is never stored, only its digest.
type Record struct {
	IDDigest    digest.Digest `json:"id_digest"`
	Name        string        `json:"name"`
	State       State         `json:"state"`
	LastUpdated time.Time     `json:"last_updated"`
	LastActor   string        `json:"last_actor"`
	Location    string        `json:"location"`
	EventIDs    []uint64      `json:"event_ids"`
	CaseDigest  digest.Digest `json:"case_digest"`
	ChainHead   digest.Digest `json:"chain_head"`
	Exists      bool          `json:"exists"`
}

// Version is the number of events committed for the record.
func (r *Record) Version() int {
	return len(r.EventIDs)
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	cp := *r
	cp.EventIDs = append([]uint64(nil), r.EventIDs...)
	return &cp
}

// Mutation is a prepared, already-validated transition handed to Store.Commit.
type Mutation struct {
	Subject digest.Digest
	Kind    Kind
	// Create is set for intake only.
	Create bool
	// Version is the record version the transition was validated against.
	Version int

	Name        string // intake only
	State       State  // resulting state
	SetLocation bool
	Location    string

	Actor       string
	At          time.Time
	Description string
	EventDigest digest.Digest
}

// check enforces the commit preconditions against the stored record (nil if absent).
func (m *Mutation) check(prev *Record) error {
	switch {
	case m.Create && prev != nil:
		return fault.New(fault.DuplicateRecord, "record %s already exists", m.Subject)
	case !m.Create && prev == nil:
		return fault.New(fault.NotFound, "record %s not found", m.Subject)
	case prev != nil && prev.Version() != m.Version:
		return fault.New(fault.Conflict, "record %s advanced from version %d to %d", m.Subject, m.Version, prev.Version())
	}
	return nil
}

// seal builds the committed record and event for m on top of prev, using id as
// the newly assigned event id.
func (m *Mutation) seal(prev *Record, id uint64) (*Record, *Event) {
	var rec *Record
	if prev == nil {
		rec = &Record{IDDigest: m.Subject, Name: m.Name, Exists: true}
	} else {
		rec = prev.Clone()
	}

	ev := &Event{
		ID:             id,
		Subject:        m.Subject,
		Kind:           m.Kind,
		Description:    m.Description,
		Timestamp:      m.At.UTC().Truncate(time.Microsecond),
		Issuer:         m.Actor,
		EventDigest:    m.EventDigest,
		ResultingState: m.State,
		PrevHash:       rec.ChainHead,
	}
	ev.Hash = ev.ComputeHash()

	rec.State = m.State
	rec.LastUpdated = ev.Timestamp
	rec.LastActor = m.Actor
	if m.SetLocation {
		rec.Location = m.Location
	}
	rec.EventIDs = append(rec.EventIDs, id)
	rec.CaseDigest = ev.EventDigest
	rec.ChainHead = ev.Hash
	return rec, ev
}

// View is a record snapshot with its event timeline resolved in order.
type View struct {
	Exists   bool     `json:"exists"`
	Record   *Record  `json:"record,omitempty"`
	Timeline []*Event `json:"timeline,omitempty"`
}
