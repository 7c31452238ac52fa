package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/fedegimenez/inmate-state-ledger/internal/digest"
)

// ErrTampered is wrapped by every integrity failure reported by VerifyRecord
// and Verify.
var ErrTampered = errors.New("ledger integrity violated")

// Report summarizes a successful full-ledger verification.
type Report struct {
	Records int `json:"records"`
	Events  int `json:"events"`
	// Root is the Keccak-256 over every record's chain head in intake order.
	Root digest.Digest `json:"root"`
}

// VerifyRecord walks the hash chain of one record. events must be the
// record's timeline, resolved in EventIDs order.
func VerifyRecord(rec *Record, events []*Event) error {
	if len(events) != len(rec.EventIDs) {
		return fmt.Errorf("%w: record %s lists %d events, %d resolved", ErrTampered, rec.IDDigest, len(rec.EventIDs), len(events))
	}
	if len(events) == 0 {
		return fmt.Errorf("%w: record %s has no events", ErrTampered, rec.IDDigest)
	}

	prev := digest.Zero
	var lastID uint64
	for i, ev := range events {
		switch {
		case ev.ID != rec.EventIDs[i]:
			return fmt.Errorf("%w: record %s position %d holds event %d, want %d", ErrTampered, rec.IDDigest, i, ev.ID, rec.EventIDs[i])
		case ev.ID <= lastID:
			return fmt.Errorf("%w: event %d is out of order", ErrTampered, ev.ID)
		case ev.Subject != rec.IDDigest:
			return fmt.Errorf("%w: event %d belongs to %s", ErrTampered, ev.ID, ev.Subject)
		case digest.OfString(ev.Description) != ev.EventDigest:
			return fmt.Errorf("%w: event %d description does not match its digest", ErrTampered, ev.ID)
		case ev.PrevHash != prev:
			return fmt.Errorf("%w: hash chain broken at event %d", ErrTampered, ev.ID)
		case ev.ComputeHash() != ev.Hash:
			return fmt.Errorf("%w: event %d has invalid hash", ErrTampered, ev.ID)
		}
		prev = ev.Hash
		lastID = ev.ID
	}

	last := events[len(events)-1]
	switch {
	case rec.ChainHead != last.Hash:
		return fmt.Errorf("%w: record %s chain head does not match its last event", ErrTampered, rec.IDDigest)
	case rec.CaseDigest != last.EventDigest:
		return fmt.Errorf("%w: record %s case digest does not match its last event", ErrTampered, rec.IDDigest)
	case rec.State != last.ResultingState:
		return fmt.Errorf("%w: record %s state %s disagrees with last event %s", ErrTampered, rec.IDDigest, rec.State, last.ResultingState)
	}
	return nil
}

// Verify checks the whole ledger as of one consistent snapshot, so commits
// landing during the walk are either fully included or not seen at all.
func Verify(ctx context.Context, store Store) (*Report, error) {
	snap, err := store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Verify()
}

// Verify checks every record's chain and that no event exists outside a
// record's timeline.
func (s *Snapshot) Verify() (*Report, error) {
	byID := make(map[uint64]*Event, len(s.Events))
	for _, ev := range s.Events {
		byID[ev.ID] = ev
	}

	root := digest.New()
	report := &Report{}
	for _, rec := range s.Records {
		events := make([]*Event, 0, len(rec.EventIDs))
		for _, id := range rec.EventIDs {
			ev, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("%w: record %s references missing event %d", ErrTampered, rec.IDDigest, id)
			}
			events = append(events, ev)
		}
		if err := VerifyRecord(rec, events); err != nil {
			return nil, err
		}
		report.Records++
		report.Events += len(events)
		root.Write(rec.ChainHead[:])
	}

	if len(s.Events) != report.Events {
		return nil, fmt.Errorf("%w: registry holds %d events, records reference %d", ErrTampered, len(s.Events), report.Events)
	}
	report.Root = digest.FromHash(root)
	return report, nil
}
