// Package access implements the role-based access-control gate of the ledger.
//
// Grants map an actor identity to a set of roles from the closed set
// {ADMIN, GUARD, MEDICAL, SOCIAL, JUDGE}. There are no implicit roles: an actor
// with zero grants is authorized for nothing. Grants are held in an explicit
// Store passed to the transition engine, never in process-wide state.
//
// Three Store implementations are provided:
//   - MemoryStore: in-process, for tests and the memory ledger backend.
//   - PostgresStore: durable, shares the ledger's PostgreSQL database.
//   - SQLiteStore: durable, shares the ledger's SQLite file.
package access

import (
	"context"
	"sort"
	"sync"
)

// Store persists role grants. Implementations must be safe for concurrent use.
type Store interface {
	// Grant records that actor holds role. Granting an existing grant is a no-op.
	Grant(ctx context.Context, actor string, role Role, grantedBy string) error

	// Revoke removes a grant. Revoking an absent grant is a no-op.
	Revoke(ctx context.Context, actor string, role Role) error

	// HasRole reports whether actor currently holds role.
	HasRole(ctx context.Context, actor string, role Role) (bool, error)

	// Roles returns the roles held by actor in declaration order.
	Roles(ctx context.Context, actor string) ([]Role, error)
}

// MemoryStore is an in-memory, thread-safe Store.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[string]map[Role]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grants: make(map[string]map[Role]struct{})}
}

// Grant implements Store.
func (s *MemoryStore) Grant(_ context.Context, actor string, role Role, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.grants[actor]
	if !ok {
		set = make(map[Role]struct{})
		s.grants[actor] = set
	}
	set[role] = struct{}{}
	return nil
}

// Revoke implements Store.
func (s *MemoryStore) Revoke(_ context.Context, actor string, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.grants[actor]; ok {
		delete(set, role)
		if len(set) == 0 {
			delete(s.grants, actor)
		}
	}
	return nil
}

// HasRole implements Store.
func (s *MemoryStore) HasRole(_ context.Context, actor string, role Role) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grants[actor][role]
	return ok, nil
}

// Roles implements Store.
func (s *MemoryStore) Roles(_ context.Context, actor string) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roles := make([]Role, 0, len(s.grants[actor]))
	for r := range s.grants[actor] {
		roles = append(roles, r)
	}
	sortRoles(roles)
	return roles, nil
}

func sortRoles(roles []Role) {
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
}
