package state

import (
	"sync/atomic"

	"github.com/alejandrodnm/holderpot/internal/domain"
)

// Store holds the last published state. Publish is called by a single
// writer; Read is lock-free and always returns a complete snapshot.
type Store struct {
	current atomic.Pointer[domain.PublishedState]
}

// NewStore creates a Store seeded with initial.
func NewStore(initial domain.PublishedState) *Store {
	s := &Store{}
	s.Publish(initial)
	return s
}

// Publish replaces the current snapshot as a whole. The store keeps its own
// copy, so later changes to st by the caller are not visible to readers.
func (s *Store) Publish(st domain.PublishedState) {
	snap := st.Clone()
	s.current.Store(&snap)
}

// Read returns the current snapshot. The returned value is a copy.
func (s *Store) Read() domain.PublishedState {
	p := s.current.Load()
	if p == nil {
		return domain.PublishedState{}
	}
	return p.Clone()
}
