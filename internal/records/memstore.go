package records

import (
	"context"
	"sync"

	"github.com/medaid/consent-trail/pkg/interfaces"
	"github.com/medaid/consent-trail/pkg/types"
)

// MemoryStore is an in-process RecordEventStore for development mode
// and tests
type MemoryStore struct {
	mu     sync.RWMutex
	events []*types.RecordEvent
	byID   map[string]*types.RecordEvent
}

// NewMemoryStore creates an empty in-memory record event store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]*types.RecordEvent),
	}
}

// Append adds one event to the log
func (s *MemoryStore) Append(ctx context.Context, event *types.RecordEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[event.EventID]; exists {
		return types.NewAlreadyExistsError("event already exists: " + event.EventID)
	}

	copied := *event
	s.events = append(s.events, &copied)
	s.byID[event.EventID] = &copied
	return nil
}

// GetByRecord returns the event history of a record in append order
func (s *MemoryStore) GetByRecord(ctx context.Context, recordID string) ([]*types.RecordEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*types.RecordEvent
	for _, event := range s.events {
		if event.RecordID == recordID {
			copied := *event
			events = append(events, &copied)
		}
	}
	return events, nil
}

// CountViews returns the internal view counter for a record
func (s *MemoryStore) CountViews(ctx context.Context, recordID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count uint64
	for _, event := range s.events {
		if event.RecordID == recordID && event.Kind == types.RecordEventView {
			count++
		}
	}
	return count, nil
}

// AttachLedgerRef records a mirror proof on the event, first writer wins
func (s *MemoryStore) AttachLedgerRef(ctx context.Context, eventID string, proof *types.LedgerProof) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, exists := s.byID[eventID]
	if !exists {
		return types.NewNotFoundError("event not found: " + eventID)
	}
	if event.LedgerRef == nil {
		copied := *proof
		event.LedgerRef = &copied
	}
	return nil
}

var _ interfaces.RecordEventStore = (*MemoryStore)(nil)
