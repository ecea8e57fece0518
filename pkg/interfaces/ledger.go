package interfaces

import (
	"context"

	"github.com/medaid/consent-trail/pkg/hashing"
	"github.com/medaid/consent-trail/pkg/types"
)

// ConsentSubmission is the ledger write payload for a consent grant.
// It carries only fixed-width hash handles: raw identifiers, scope and
// purpose never reach the ledger.
type ConsentSubmission struct {
	ConsentHandle hashing.Handle
	PatientHandle hashing.Handle
	DoctorHandle  hashing.Handle
	RecordHandle  hashing.Handle
}

// RecordSubmission is the ledger write payload for a record upload.
// UploaderRole is the one non-handle field the ledger accepts; it is
// an enumerated tag, not PII.
type RecordSubmission struct {
	RecordHandle   hashing.Handle
	UploaderRole   types.RoleKind
	UploaderHandle hashing.Handle
}

// ViewSubmission is the ledger write payload for a record view. The
// free-text access reason stays in the internal event store; only the
// two handles cross to the ledger.
type ViewSubmission struct {
	ViewerHandle hashing.Handle
	RecordHandle hashing.Handle
}

// LedgerClient abstracts the external append-only ledger. Any
// hash-keyed notarization service satisfies this contract: a smart
// contract, a write-once log, or the embedded hash-chained store.
//
// Submissions are slow (network round-trip plus confirmation latency)
// and must be issued with a context deadline. Every submission is
// safe to retry: ledger entries are idempotent per handle tuple, and
// view counts are additive.
type LedgerClient interface {
	// IsAvailable is a cheap check so callers can short-circuit when
	// mirroring is disabled or the endpoint is known-dead
	IsAvailable() bool

	// SubmitConsent notarizes a consent grant
	SubmitConsent(ctx context.Context, sub *ConsentSubmission) (*types.LedgerProof, error)

	// SubmitRevocation marks the ledger-side consent entry revoked,
	// keyed by the same consent handle used at grant time
	SubmitRevocation(ctx context.Context, consentHandle hashing.Handle) (*types.LedgerProof, error)

	// SubmitRecord notarizes a record upload
	SubmitRecord(ctx context.Context, sub *RecordSubmission) (*types.LedgerProof, error)

	// SubmitView notarizes a record view and increments the
	// ledger-side view counter
	SubmitView(ctx context.Context, sub *ViewSubmission) (*types.LedgerProof, error)

	// GetConsent reads a notarized consent entry by handle
	GetConsent(ctx context.Context, consentHandle hashing.Handle) (*types.ConsentEntry, bool, error)

	// IsConsentValid is the ledger's validity predicate: present and
	// not revoked
	IsConsentValid(ctx context.Context, consentHandle hashing.Handle) (bool, error)

	// GetRecord reads a notarized record entry by handle
	GetRecord(ctx context.Context, recordHandle hashing.Handle) (*types.RecordEntry, bool, error)

	// GetViewCount returns the notarized view count for a record
	GetViewCount(ctx context.Context, recordHandle hashing.Handle) (uint64, error)

	// GetStats returns the ledger's aggregate counters
	GetStats(ctx context.Context) (*types.LedgerStats, error)

	// Close releases any resources held by the client
	Close() error
}
