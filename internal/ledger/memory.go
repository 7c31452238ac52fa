package ledger

import (
	"context"
	"sync"

	"github.com/fedegimenez/inmate-state-ledger/internal/digest"
	"github.com/fedegimenez/inmate-state-ledger/internal/fault"
)

// MemoryStore is an in-memory, thread-safe Store.
// Events live in an arena indexed by id-1; records are keyed by digest.
// Useful for testing and for single-process deployments that do not require
// durable persistence across restarts.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[digest.Digest]*Record
	subjects []digest.Digest
	events   []*Event
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[digest.Digest]*Record)}
}

// Record implements StateLedger.
func (s *MemoryStore) Record(_ context.Context, subject digest.Digest) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[subject]
	if !ok {
		return nil, fault.New(fault.NotFound, "record %s not found", subject)
	}
	return rec.Clone(), nil
}

// Event implements EventRegistry.
func (s *MemoryStore) Event(_ context.Context, id uint64) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eventLocked(id)
}

func (s *MemoryStore) eventLocked(id uint64) (*Event, error) {
	if id == 0 || id > uint64(len(s.events)) {
		return nil, fault.New(fault.NotFound, "event %d not found", id)
	}
	cp := *s.events[id-1]
	return &cp, nil
}

// Events implements EventRegistry.
func (s *MemoryStore) Events(_ context.Context, ids []uint64) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Event, 0, len(ids))
	for _, id := range ids {
		ev, err := s.eventLocked(id)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Len implements EventRegistry.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events), nil
}

// Subjects implements Store.
func (s *MemoryStore) Subjects(_ context.Context) ([]digest.Digest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]digest.Digest(nil), s.subjects...), nil
}

// Snapshot implements Store.
func (s *MemoryStore) Snapshot(_ context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &Snapshot{
		Records: make([]*Record, 0, len(s.subjects)),
		Events:  make([]*Event, 0, len(s.events)),
	}
	for _, subject := range s.subjects {
		snap.Records = append(snap.Records, s.records[subject].Clone())
	}
	for _, ev := range s.events {
		cp := *ev
		snap.Events = append(snap.Events, &cp)
	}
	return snap, nil
}

// Commit implements Store. The append and the record write happen inside one
// critical section, so readers observe both or neither.
func (s *MemoryStore) Commit(ctx context.Context, m Mutation) (*Record, *Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.records[m.Subject]
	if err := m.check(prev); err != nil {
		return nil, nil, err
	}

	rec, ev := m.seal(prev, uint64(len(s.events))+1)
	s.events = append(s.events, ev)
	if prev == nil {
		s.subjects = append(s.subjects, m.Subject)
	}
	s.records[m.Subject] = rec

	evCopy := *ev
	return rec.Clone(), &evCopy, nil
}
