package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/quartzmem/quartz/internal/store"
)

// CrystalStore holds promoted entries and clusters. Append-only:
// crystals are never mutated or removed once added. When the backing
// adapter can persist crystals, every insert is written through.
type CrystalStore struct {
	mu        sync.Mutex
	byID      map[string]*store.Crystal
	order     []*store.Crystal
	persister store.CrystalPersister
}

// NewCrystalStore creates a CrystalStore. persister may be nil.
func NewCrystalStore(persister store.CrystalPersister) *CrystalStore {
	return &CrystalStore{
		byID:      make(map[string]*store.Crystal),
		persister: persister,
	}
}

// Add records a crystal, assigning its id. Persistence failures
// propagate to the caller; the in-memory record is kept regardless so a
// flaky backend cannot un-crystallize an entry.
func (s *CrystalStore) Add(ctx context.Context, c *store.Crystal) error {
	s.mu.Lock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.byID[c.ID] = c
	s.order = append(s.order, c)
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.SaveCrystal(ctx, c); err != nil {
			return fmt.Errorf("persist crystal %s: %w", c.ID, err)
		}
	}
	return nil
}

// Load pulls previously persisted crystals into memory. ListCrystals
// returns newest first; insertion order is restored by reversing.
func (s *CrystalStore) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	crystals, err := s.persister.ListCrystals(ctx)
	if err != nil {
		return fmt.Errorf("load crystals: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(crystals) - 1; i >= 0; i-- {
		c := crystals[i]
		if _, ok := s.byID[c.ID]; ok {
			continue
		}
		s.byID[c.ID] = c
		s.order = append(s.order, c)
	}
	return nil
}

// Get returns a crystal by id, or nil.
func (s *CrystalStore) Get(id string) *store.Crystal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

// All returns crystals in insertion order.
func (s *CrystalStore) All() []*store.Crystal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.Crystal, len(s.order))
	copy(out, s.order)
	return out
}

// Count returns the number of crystals.
func (s *CrystalStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
