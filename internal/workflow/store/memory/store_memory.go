package memory

import (
	"context"
	"fmt"
	"sync"

	"transferdesk/internal/workflow/models"
	id "transferdesk/pkg/domain"
	"transferdesk/pkg/platform/sentinel"
)

// InMemoryCaseStore keeps cases in process memory. A single mutex makes each
// Commit an atomic compare-and-set on the case version.
type InMemoryCaseStore struct {
	mu    sync.RWMutex
	cases map[id.CaseID]*models.Snapshot
}

func NewInMemoryCaseStore() *InMemoryCaseStore {
	return &InMemoryCaseStore{cases: make(map[id.CaseID]*models.Snapshot)}
}

func (s *InMemoryCaseStore) CreateCase(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cases[c.ID]; exists {
		return fmt.Errorf("case %s: %w", c.ID, sentinel.ErrAlreadyExists)
	}
	s.cases[c.ID] = &models.Snapshot{Case: *c}
	return nil
}

func (s *InMemoryCaseStore) LoadSnapshot(_ context.Context, caseID id.CaseID) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("case %s: %w", caseID, sentinel.ErrNotFound)
	}
	return snap.Clone(), nil
}

func (s *InMemoryCaseStore) Commit(_ context.Context, caseID id.CaseID, expectedVersion int64, change models.Change) (*models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("case %s: %w", caseID, sentinel.ErrNotFound)
	}
	if snap.Case.Version != expectedVersion {
		return nil, fmt.Errorf("case %s at version %d, expected %d: %w", caseID, snap.Case.Version, expectedVersion, sentinel.ErrConflict)
	}
	snap.Apply(change)
	c := snap.Case
	return &c, nil
}

// Count returns the number of stored cases.
func (s *InMemoryCaseStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cases)
}
