package verify

import (
	"context"

	"github.com/medaid/consent-trail/pkg/hashing"
	"github.com/medaid/consent-trail/pkg/interfaces"
	"github.com/medaid/consent-trail/pkg/logger"
	"github.com/medaid/consent-trail/pkg/monitoring"
	"github.com/medaid/consent-trail/pkg/types"
)

// Service answers proof queries against the ledger tier. Read-only:
// it mutates neither storage tier. Every answer is tri-state; a dead
// ledger yields Unavailable, never a bare "invalid", because callers
// that treat the two alike would deny access during every ledger
// outage.
type Service struct {
	ledger  interfaces.LedgerClient
	events  interfaces.RecordEventStore
	gateway *hashing.Gateway
	logger  *logger.Logger
}

// NewService creates a verification service. events backs the
// degraded view-count path and may be nil when no internal event
// store exists.
func NewService(ledgerClient interfaces.LedgerClient, events interfaces.RecordEventStore, gateway *hashing.Gateway, log *logger.Logger) *Service {
	return &Service{
		ledger:  ledgerClient,
		events:  events,
		gateway: gateway,
		logger:  log,
	}
}

// IsConsentValid asks the ledger whether the notarized consent exists
// and is unrevoked. Backed by the full entry read so a never-notarized
// consent answers not-found rather than masquerading as revoked.
func (s *Service) IsConsentValid(ctx context.Context, consentID string) (*types.ConsentProofResult, error) {
	result := &types.ConsentProofResult{ConsentID: consentID}
	if consentID == "" {
		return nil, types.NewInvalidArgumentError("consent id must not be empty", nil)
	}

	if !s.ledger.IsAvailable() {
		result.Unavailable = true
		monitoring.RecordVerification("consent_valid", "unavailable")
		return result, nil
	}

	handle := s.gateway.Hash(consentID)
	entry, found, err := s.ledger.GetConsent(ctx, handle)
	if err != nil {
		return s.degradedConsent(result, "consent_valid", err)
	}
	if !found {
		monitoring.RecordVerification("consent_valid", "not_found")
		return result, nil
	}

	result.Found = true
	result.Valid = !entry.Revoked
	monitoring.RecordVerification("consent_valid", "success")
	return result, nil
}

// GetConsentProof returns the full notarized consent entry
func (s *Service) GetConsentProof(ctx context.Context, consentID string) (*types.ConsentProofResult, error) {
	result := &types.ConsentProofResult{ConsentID: consentID}
	if consentID == "" {
		return nil, types.NewInvalidArgumentError("consent id must not be empty", nil)
	}

	if !s.ledger.IsAvailable() {
		result.Unavailable = true
		monitoring.RecordVerification("consent_proof", "unavailable")
		return result, nil
	}

	handle := s.gateway.Hash(consentID)
	entry, found, err := s.ledger.GetConsent(ctx, handle)
	if err != nil {
		return s.degradedConsent(result, "consent_proof", err)
	}
	if !found {
		monitoring.RecordVerification("consent_proof", "not_found")
		return result, nil
	}

	result.Found = true
	result.Valid = !entry.Revoked
	result.Entry = entry
	monitoring.RecordVerification("consent_proof", "success")
	return result, nil
}

// GetRecordProof returns the notarized record entry plus its view count
func (s *Service) GetRecordProof(ctx context.Context, recordID string) (*types.RecordProofResult, error) {
	result := &types.RecordProofResult{RecordID: recordID}
	if recordID == "" {
		return nil, types.NewInvalidArgumentError("record id must not be empty", nil)
	}

	if !s.ledger.IsAvailable() {
		result.Unavailable = true
		monitoring.RecordVerification("record_proof", "unavailable")
		return result, nil
	}

	handle := s.gateway.Hash(recordID)
	entry, found, err := s.ledger.GetRecord(ctx, handle)
	if err != nil {
		if types.IsLedgerError(err) {
			result.Unavailable = true
			monitoring.RecordVerification("record_proof", "unavailable")
			s.logger.WithError(err).Warn("Ledger unreachable during record verification")
			return result, nil
		}
		return nil, err
	}
	if !found {
		monitoring.RecordVerification("record_proof", "not_found")
		return result, nil
	}

	result.Found = true
	result.Entry = entry
	if count, err := s.ledger.GetViewCount(ctx, handle); err == nil {
		result.ViewCount = count
	}
	monitoring.RecordVerification("record_proof", "success")
	return result, nil
}

// GetViewCount returns the view count for a record. The second result
// reports whether the count is notarized: when the ledger is
// unreachable it falls back to the internal event log and returns
// false.
func (s *Service) GetViewCount(ctx context.Context, recordID string) (uint64, bool, error) {
	if recordID == "" {
		return 0, false, types.NewInvalidArgumentError("record id must not be empty", nil)
	}

	if s.ledger.IsAvailable() {
		count, err := s.ledger.GetViewCount(ctx, s.gateway.Hash(recordID))
		if err == nil {
			monitoring.RecordVerification("view_count", "success")
			return count, true, nil
		}
		if !types.IsLedgerError(err) {
			return 0, false, err
		}
		s.logger.WithError(err).Warn("Ledger unreachable, falling back to internal view count")
	}

	if s.events == nil {
		monitoring.RecordVerification("view_count", "unavailable")
		return 0, false, types.NewLedgerUnavailableError("no view count source available", nil)
	}

	count, err := s.events.CountViews(ctx, recordID)
	if err != nil {
		return 0, false, err
	}
	monitoring.RecordVerification("view_count", "degraded")
	return count, false, nil
}

// GetAggregateStats returns the ledger's totals
func (s *Service) GetAggregateStats(ctx context.Context) (*types.StatsResult, error) {
	if !s.ledger.IsAvailable() {
		monitoring.RecordVerification("stats", "unavailable")
		return &types.StatsResult{Unavailable: true}, nil
	}

	stats, err := s.ledger.GetStats(ctx)
	if err != nil {
		if types.IsLedgerError(err) {
			monitoring.RecordVerification("stats", "unavailable")
			s.logger.WithError(err).Warn("Ledger unreachable during stats query")
			return &types.StatsResult{Unavailable: true}, nil
		}
		return nil, err
	}

	monitoring.RecordVerification("stats", "success")
	return &types.StatsResult{Stats: stats}, nil
}

func (s *Service) degradedConsent(result *types.ConsentProofResult, op string, err error) (*types.ConsentProofResult, error) {
	if types.IsLedgerError(err) {
		result.Unavailable = true
		monitoring.RecordVerification(op, "unavailable")
		s.logger.WithError(err).Warn("Ledger unreachable during consent verification")
		return result, nil
	}
	return nil, err
}

var _ interfaces.VerificationService = (*Service)(nil)
