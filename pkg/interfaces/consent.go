package interfaces

import (
	"context"
	"time"

	"github.com/medaid/consent-trail/pkg/types"
)

// ConsentStore defines the authoritative internal persistence layer
// for consent grants. All authorization decisions consult this store,
// never the ledger: the ledger is a notarization layer whose
// availability is outside this system's control.
type ConsentStore interface {
	// Put creates a grant. Fails with ALREADY_EXISTS on consent-id collision.
	Put(ctx context.Context, grant *types.ConsentGrant) error

	// MarkRevoked flips the grant into its terminal state. Fails with
	// NOT_FOUND if absent, ALREADY_REVOKED if already terminal. The
	// update is conditional on the revoked flag so that two concurrent
	// revocations yield exactly one success.
	MarkRevoked(ctx context.Context, consentID, reason string, revokedAt time.Time) error

	// Get looks up a grant by id. Fails with NOT_FOUND if absent.
	Get(ctx context.Context, consentID string) (*types.ConsentGrant, error)

	// FindActive returns the non-revoked grants for a patient and scope
	FindActive(ctx context.Context, patientID, scope string) ([]*types.ConsentGrant, error)

	// AttachLedgerRef records a successful mirror's proof on the grant.
	// Best-effort bookkeeping: it never mutates revocation state.
	AttachLedgerRef(ctx context.Context, consentID string, proof *types.LedgerProof) error
}

// RecordEventStore defines the append-only internal event log for
// record uploads and views. Entries are created once and never
// mutated or deleted.
type RecordEventStore interface {
	Append(ctx context.Context, event *types.RecordEvent) error
	GetByRecord(ctx context.Context, recordID string) ([]*types.RecordEvent, error)
	CountViews(ctx context.Context, recordID string) (uint64, error)
	AttachLedgerRef(ctx context.Context, eventID string, proof *types.LedgerProof) error
}

// ConsentManager orchestrates the consent lifecycle
type ConsentManager interface {
	Grant(ctx context.Context, req *types.GrantRequest) (*types.GrantResult, error)
	Revoke(ctx context.Context, consentID, reason string) (*types.RevokeResult, error)
	IsValid(ctx context.Context, consentID string) (bool, error)
	GetGrant(ctx context.Context, consentID string) (*types.ConsentGrant, error)
}

// RecordAccessLogger records upload and view events and mirrors them
// to the ledger
type RecordAccessLogger interface {
	LogUpload(ctx context.Context, recordID string, uploaderRole types.RoleKind, uploaderID string) (*types.UploadResult, error)
	LogView(ctx context.Context, viewerID, recordID, accessReason string) (*types.ViewResult, error)
}

// VerificationService answers read-only proof queries against the
// ledger. It never mutates either storage tier.
type VerificationService interface {
	IsConsentValid(ctx context.Context, consentID string) (*types.ConsentProofResult, error)
	GetConsentProof(ctx context.Context, consentID string) (*types.ConsentProofResult, error)
	GetRecordProof(ctx context.Context, recordID string) (*types.RecordProofResult, error)
	GetViewCount(ctx context.Context, recordID string) (uint64, bool, error)
	GetAggregateStats(ctx context.Context) (*types.StatsResult, error)
}
