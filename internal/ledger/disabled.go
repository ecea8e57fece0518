package ledger

import (
	"context"

	"github.com/medaid/consent-trail/pkg/hashing"
	"github.com/medaid/consent-trail/pkg/interfaces"
	"github.com/medaid/consent-trail/pkg/types"
)

// DisabledClient is the LedgerClient used when mirroring is turned
// off. Every call is a cheap no-op: IsAvailable reports false so
// callers short-circuit to a skipped notarization outcome, and the
// system runs on the internal audit trail alone.
type DisabledClient struct{}

// NewDisabledClient creates the no-op ledger client
func NewDisabledClient() *DisabledClient {
	return &DisabledClient{}
}

// IsAvailable always reports false
func (c *DisabledClient) IsAvailable() bool { return false }

// SubmitConsent reports the ledger as unavailable
func (c *DisabledClient) SubmitConsent(ctx context.Context, sub *interfaces.ConsentSubmission) (*types.LedgerProof, error) {
	return nil, types.NewLedgerUnavailableError("ledger mirroring disabled", nil)
}

// SubmitRevocation reports the ledger as unavailable
func (c *DisabledClient) SubmitRevocation(ctx context.Context, consentHandle hashing.Handle) (*types.LedgerProof, error) {
	return nil, types.NewLedgerUnavailableError("ledger mirroring disabled", nil)
}

// SubmitRecord reports the ledger as unavailable
func (c *DisabledClient) SubmitRecord(ctx context.Context, sub *interfaces.RecordSubmission) (*types.LedgerProof, error) {
	return nil, types.NewLedgerUnavailableError("ledger mirroring disabled", nil)
}

// SubmitView reports the ledger as unavailable
func (c *DisabledClient) SubmitView(ctx context.Context, sub *interfaces.ViewSubmission) (*types.LedgerProof, error) {
	return nil, types.NewLedgerUnavailableError("ledger mirroring disabled", nil)
}

// GetConsent reports the ledger as unavailable
func (c *DisabledClient) GetConsent(ctx context.Context, consentHandle hashing.Handle) (*types.ConsentEntry, bool, error) {
	return nil, false, types.NewLedgerUnavailableError("ledger mirroring disabled", nil)
}

// IsConsentValid reports the ledger as unavailable
func (c *DisabledClient) IsConsentValid(ctx context.Context, consentHandle hashing.Handle) (bool, error) {
	return false, types.NewLedgerUnavailableError("ledger mirroring disabled", nil)
}

// GetRecord reports the ledger as unavailable
func (c *DisabledClient) GetRecord(ctx context.Context, recordHandle hashing.Handle) (*types.RecordEntry, bool, error) {
	return nil, false, types.NewLedgerUnavailableError("ledger mirroring disabled", nil)
}

// GetViewCount reports the ledger as unavailable
func (c *DisabledClient) GetViewCount(ctx context.Context, recordHandle hashing.Handle) (uint64, error) {
	return 0, types.NewLedgerUnavailableError("ledger mirroring disabled", nil)
}

// GetStats reports the ledger as unavailable
func (c *DisabledClient) GetStats(ctx context.Context) (*types.LedgerStats, error) {
	return nil, types.NewLedgerUnavailableError("ledger mirroring disabled", nil)
}

// Close is a no-op
func (c *DisabledClient) Close() error { return nil }
