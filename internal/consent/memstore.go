package consent

import (
	"context"
	"sync"
	"time"

	"github.com/medaid/consent-trail/pkg/interfaces"
	"github.com/medaid/consent-trail/pkg/types"
)

// MemoryStore is an in-process ConsentStore for development mode and
// tests. It honors the same contract as the Postgres store,
// including the conditional revocation update.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[string]*types.ConsentGrant
}

// NewMemoryStore creates an empty in-memory consent store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		grants: make(map[string]*types.ConsentGrant),
	}
}

// Put creates a grant. Create-only.
func (s *MemoryStore) Put(ctx context.Context, grant *types.ConsentGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.grants[grant.ConsentID]; exists {
		return types.NewAlreadyExistsError("consent already exists: " + grant.ConsentID)
	}

	copied := *grant
	s.grants[grant.ConsentID] = &copied
	return nil
}

// MarkRevoked flips the grant into its terminal state under the store
// lock, so two concurrent revocations yield exactly one success
func (s *MemoryStore) MarkRevoked(ctx context.Context, consentID, reason string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, exists := s.grants[consentID]
	if !exists {
		return types.NewNotFoundError("consent not found: " + consentID)
	}
	if grant.Revoked {
		return types.NewAlreadyRevokedError(consentID)
	}

	at := revokedAt
	grant.Revoked = true
	grant.RevokedAt = &at
	grant.RevocationReason = reason
	return nil
}

// Get looks up a grant by id
func (s *MemoryStore) Get(ctx context.Context, consentID string) (*types.ConsentGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, exists := s.grants[consentID]
	if !exists {
		return nil, types.NewNotFoundError("consent not found: " + consentID)
	}

	copied := *grant
	return &copied, nil
}

// FindActive returns the non-revoked grants for a patient and scope
func (s *MemoryStore) FindActive(ctx context.Context, patientID, scope string) ([]*types.ConsentGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var grants []*types.ConsentGrant
	for _, grant := range s.grants {
		if grant.PatientID == patientID && grant.Scope == scope && !grant.Revoked {
			copied := *grant
			grants = append(grants, &copied)
		}
	}
	return grants, nil
}

// AttachLedgerRef records a mirror proof on the grant, first writer wins
func (s *MemoryStore) AttachLedgerRef(ctx context.Context, consentID string, proof *types.LedgerProof) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, exists := s.grants[consentID]
	if !exists {
		return types.NewNotFoundError("consent not found: " + consentID)
	}
	if grant.LedgerRef == nil {
		copied := *proof
		grant.LedgerRef = &copied
	}
	return nil
}

var _ interfaces.ConsentStore = (*MemoryStore)(nil)
