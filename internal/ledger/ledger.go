// Package ledger holds the authoritative custody state and its tamper-evident
// event history.
//
// A Record is keyed by the digest of a human-readable identifier and carries the
// current FSM state. Every committed transition appends one immutable Event to
// the registry; events of the same record are hash-linked (PrevHash → Hash), and
// the record's ChainHead and CaseDigest anchor the tip of that chain. Records
// and events are only ever written together, through Store.Commit.
//
// Three implementations of the Store interface are provided:
//   - MemoryStore: in-process, for tests and development.
//   - PostgresStore: durable, for production use.
//   - SQLiteStore: durable, single-node deployments.
package ledger

import (
	"context"

	"github.com/fedegimenez/inmate-state-ledger/internal/digest"
)

// StateLedger is the authoritative mapping from identifier digest to Record.
type StateLedger interface {
	// Record returns the record for subject, or a NotFound fault.
	Record(ctx context.Context, subject digest.Digest) (*Record, error)
}

// EventRegistry is the append-only, monotonically indexed event log.
// It has no update or delete operation.
type EventRegistry interface {
	// Event returns the event with the given id, or a NotFound fault.
	Event(ctx context.Context, id uint64) (*Event, error)

	// Events resolves ids in the given order.
	Events(ctx context.Context, ids []uint64) ([]*Event, error)

	// Len returns the number of events ever appended.
	Len(ctx context.Context) (int, error)
}

// Store combines both collections behind a single transactional commit.
type Store interface {
	StateLedger
	EventRegistry

	// Commit applies a validated mutation: it assigns the next event id, seals
	// the record's hash chain, appends the event and writes the record as one
	// atomic unit. Either both become visible or neither does.
	Commit(ctx context.Context, m Mutation) (*Record, *Event, error)

	// Subjects returns the digests of all records in intake order.
	Subjects(ctx context.Context) ([]digest.Digest, error)

	// Snapshot returns every record and event as of a single committed point.
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Snapshot is the whole ledger as one consistent read: records in intake
// order and the registry in id order.
type Snapshot struct {
	Records []*Record
	Events  []*Event
}
