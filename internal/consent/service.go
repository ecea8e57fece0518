package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medaid/consent-trail/internal/ledger"
	"github.com/medaid/consent-trail/pkg/hashing"
	"github.com/medaid/consent-trail/pkg/interfaces"
	"github.com/medaid/consent-trail/pkg/logger"
	"github.com/medaid/consent-trail/pkg/monitoring"
	"github.com/medaid/consent-trail/pkg/types"
)

// Manager orchestrates the consent lifecycle: Active on grant,
// Revoked terminal, nothing else. The internal store write is the
// durability point; the ledger mirror is best-effort and its failure
// surfaces only in the notarization outcome, never as an operation
// failure.
type Manager struct {
	store      interfaces.ConsentStore
	ledger     interfaces.LedgerClient
	reconciler *ledger.Reconciler
	gateway    *hashing.Gateway
	logger     *logger.Logger
}

// NewManager creates a consent manager. reconciler may be nil, in
// which case failed mirrors are not retried in the background.
func NewManager(store interfaces.ConsentStore, ledgerClient interfaces.LedgerClient, reconciler *ledger.Reconciler, gateway *hashing.Gateway, log *logger.Logger) *Manager {
	return &Manager{
		store:      store,
		ledger:     ledgerClient,
		reconciler: reconciler,
		gateway:    gateway,
		logger:     log,
	}
}

// Grant validates the request, mints a consent id, persists the grant
// and then best-effort mirrors a hashed summary to the ledger
func (m *Manager) Grant(ctx context.Context, req *types.GrantRequest) (*types.GrantResult, error) {
	if err := validateGrantRequest(req); err != nil {
		return nil, err
	}

	grant := &types.ConsentGrant{
		ConsentID: mintConsentID(req.PatientID, req.DoctorID),
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		RecordID:  req.RecordID,
		Scope:     req.Scope,
		Purpose:   req.Purpose,
		GrantedAt: time.Now().UTC(),
	}

	// Durability point: if this fails the whole operation fails and
	// nothing is returned to the caller
	if err := m.store.Put(ctx, grant); err != nil {
		monitoring.RecordConsentOperation("grant", "error")
		return nil, err
	}

	outcome := m.mirrorGrant(ctx, grant)
	if outcome.Status == types.NotarizationSuccess {
		grant.LedgerRef = outcome.Proof
	}

	monitoring.RecordConsentOperation("grant", "success")
	m.logger.Audit(req.PatientID, "consent_grant", grant.ConsentID, true, map[string]interface{}{
		"doctor_id":    req.DoctorID,
		"scope":        req.Scope,
		"notarization": string(outcome.Status),
	})

	return &types.GrantResult{Grant: grant, Notarization: outcome}, nil
}

// Revoke moves a grant into its terminal state and mirrors the
// revocation keyed by the same consent handle used at grant time
func (m *Manager) Revoke(ctx context.Context, consentID, reason string) (*types.RevokeResult, error) {
	if consentID == "" {
		return nil, types.NewInvalidArgumentError("consent id must not be empty", nil)
	}
	if reason == "" {
		reason = types.DefaultRevocationReason
	}

	revokedAt := time.Now().UTC()
	if err := m.store.MarkRevoked(ctx, consentID, reason, revokedAt); err != nil {
		monitoring.RecordConsentOperation("revoke", "error")
		return nil, err
	}

	outcome := m.mirrorRevocation(ctx, consentID)

	monitoring.RecordConsentOperation("revoke", "success")
	m.logger.Audit("", "consent_revoke", consentID, true, map[string]interface{}{
		"reason":       reason,
		"notarization": string(outcome.Status),
	})

	return &types.RevokeResult{
		ConsentID:    consentID,
		RevokedAt:    revokedAt,
		Notarization: outcome,
	}, nil
}

// IsValid is the fast authorization path: true iff the store has the
// grant and it is not revoked. The ledger is never consulted here;
// VerificationService covers the notarized cross-check.
func (m *Manager) IsValid(ctx context.Context, consentID string) (bool, error) {
	grant, err := m.store.Get(ctx, consentID)
	if err != nil {
		if types.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return !grant.Revoked, nil
}

// GetGrant returns the stored grant by id
func (m *Manager) GetGrant(ctx context.Context, consentID string) (*types.ConsentGrant, error) {
	return m.store.Get(ctx, consentID)
}

// FindActive returns the non-revoked grants for a patient and scope
func (m *Manager) FindActive(ctx context.Context, patientID, scope string) ([]*types.ConsentGrant, error) {
	return m.store.FindActive(ctx, patientID, scope)
}

// mirrorGrant attempts the best-effort ledger write for a new grant
func (m *Manager) mirrorGrant(ctx context.Context, grant *types.ConsentGrant) types.NotarizationOutcome {
	if !m.ledger.IsAvailable() {
		return types.SkippedNotarization()
	}

	sub := &interfaces.ConsentSubmission{
		ConsentHandle: m.gateway.Hash(grant.ConsentID),
		PatientHandle: m.gateway.Hash(grant.PatientID),
		DoctorHandle:  m.gateway.Hash(grant.DoctorID),
		RecordHandle:  m.gateway.HashOptional(grant.RecordID),
	}

	proof, err := m.ledger.SubmitConsent(ctx, sub)
	if err != nil {
		m.queueRetry(types.EventConsentGrant, sub.ConsentHandle, grant.ConsentID,
			func(ctx context.Context) (*types.LedgerProof, error) {
				return m.ledger.SubmitConsent(ctx, sub)
			})
		return m.failedOutcome(types.EventConsentGrant, sub.ConsentHandle, err)
	}

	if err := m.store.AttachLedgerRef(ctx, grant.ConsentID, proof); err != nil {
		m.logger.WithError(err).WithField("consent_id", grant.ConsentID).Warn("Failed to attach ledger reference")
	}

	monitoring.RecordNotarization(string(types.EventConsentGrant), "success")
	m.logger.Notarization(string(types.EventConsentGrant), sub.ConsentHandle.Hex(), "success", "")
	return types.SuccessfulNotarization(proof)
}

// mirrorRevocation attempts the best-effort ledger write for a revocation
func (m *Manager) mirrorRevocation(ctx context.Context, consentID string) types.NotarizationOutcome {
	if !m.ledger.IsAvailable() {
		return types.SkippedNotarization()
	}

	handle := m.gateway.Hash(consentID)
	proof, err := m.ledger.SubmitRevocation(ctx, handle)
	if err != nil {
		m.queueRetry(types.EventConsentRevoke, handle, consentID,
			func(ctx context.Context) (*types.LedgerProof, error) {
				return m.ledger.SubmitRevocation(ctx, handle)
			})
		return m.failedOutcome(types.EventConsentRevoke, handle, err)
	}

	monitoring.RecordNotarization(string(types.EventConsentRevoke), "success")
	m.logger.Notarization(string(types.EventConsentRevoke), handle.Hex(), "success", "")
	return types.SuccessfulNotarization(proof)
}

// queueRetry hands a failed mirror to the background reconciler
func (m *Manager) queueRetry(kind types.EventKind, handle hashing.Handle, consentID string, submit func(context.Context) (*types.LedgerProof, error)) {
	if m.reconciler == nil {
		return
	}
	m.reconciler.Enqueue(&ledger.MirrorTask{
		Kind:   kind,
		Handle: handle.Hex(),
		Submit: submit,
		OnSuccess: func(ctx context.Context, proof *types.LedgerProof) {
			if kind != types.EventConsentGrant {
				return
			}
			if err := m.store.AttachLedgerRef(ctx, consentID, proof); err != nil {
				m.logger.WithError(err).WithField("consent_id", consentID).Warn("Failed to attach ledger reference after retry")
			}
		},
	})
}

// failedOutcome downgrades a ledger error to a non-fatal outcome field
func (m *Manager) failedOutcome(kind types.EventKind, handle hashing.Handle, err error) types.NotarizationOutcome {
	reason := notarizationReason(err)
	monitoring.RecordNotarization(string(kind), "failed")
	m.logger.Notarization(string(kind), handle.Hex(), "failed", reason)
	return types.FailedNotarization(reason)
}

// notarizationReason maps a ledger error onto the outcome reason tag
func notarizationReason(err error) string {
	var ae *types.AuditError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return types.ErrCodeLedgerUnavailable
}

// validateGrantRequest enforces the input shape for a grant
func validateGrantRequest(req *types.GrantRequest) error {
	missing := map[string]interface{}{}
	if req.PatientID == "" {
		missing["patient_id"] = "required"
	}
	if req.DoctorID == "" {
		missing["doctor_id"] = "required"
	}
	if req.Scope == "" {
		missing["scope"] = "required"
	}
	if req.Purpose == "" {
		missing["purpose"] = "required"
	}
	if len(missing) > 0 {
		return types.NewInvalidArgumentError("missing required consent fields", missing)
	}
	return nil
}

// mintConsentID composes the patient/doctor pair with the grant
// instant and a random suffix. The suffix is the disambiguator: two
// grants for the same pair in the same millisecond must still never
// collide.
func mintConsentID(patientID, doctorID string) string {
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("consent_%s_%s_%d_%s", patientID, doctorID, time.Now().UnixMilli(), suffix)
}

var _ interfaces.ConsentManager = (*Manager)(nil)
