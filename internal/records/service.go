package records

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medaid/consent-trail/internal/ledger"
	"github.com/medaid/consent-trail/pkg/hashing"
	"github.com/medaid/consent-trail/pkg/interfaces"
	"github.com/medaid/consent-trail/pkg/logger"
	"github.com/medaid/consent-trail/pkg/monitoring"
	"github.com/medaid/consent-trail/pkg/types"
)

// Service records upload and view events. The internal append is the
// durability point; the ledger mirror never fails the operation. A
// view is always recorded even when the viewer's authorization is
// questionable elsewhere, because an unauthorized view is exactly the
// event an audit trail must not lose.
type Service struct {
	store      interfaces.RecordEventStore
	ledger     interfaces.LedgerClient
	reconciler *ledger.Reconciler
	gateway    *hashing.Gateway
	logger     *logger.Logger
}

// NewService creates a record access logger. reconciler may be nil.
func NewService(store interfaces.RecordEventStore, ledgerClient interfaces.LedgerClient, reconciler *ledger.Reconciler, gateway *hashing.Gateway, log *logger.Logger) *Service {
	return &Service{
		store:      store,
		ledger:     ledgerClient,
		reconciler: reconciler,
		gateway:    gateway,
		logger:     log,
	}
}

// LogUpload appends an upload event. The uploader role is the one
// enumerated field that crosses to the ledger in the clear, so it is
// validated strictly here.
func (s *Service) LogUpload(ctx context.Context, recordID string, uploaderRole types.RoleKind, uploaderID string) (*types.UploadResult, error) {
	if recordID == "" || uploaderID == "" {
		return nil, types.NewInvalidArgumentError("record id and uploader id must not be empty", nil)
	}
	if !types.ValidRole(uploaderRole) {
		return nil, types.NewInvalidRoleError(string(uploaderRole))
	}

	event := &types.RecordEvent{
		EventID:   uuid.New().String(),
		RecordID:  recordID,
		Kind:      types.RecordEventUpload,
		ActorID:   uploaderID,
		ActorRole: uploaderRole,
		Timestamp: time.Now().UTC(),
	}

	if err := s.store.Append(ctx, event); err != nil {
		monitoring.RecordRecordEvent("upload", "error")
		return nil, err
	}

	outcome := s.mirrorUpload(ctx, event)
	if outcome.Status == types.NotarizationSuccess {
		event.LedgerRef = outcome.Proof
	}

	monitoring.RecordRecordEvent("upload", "success")
	s.logger.Audit(uploaderID, "record_upload", recordID, true, map[string]interface{}{
		"role":         string(uploaderRole),
		"notarization": string(outcome.Status),
	})

	return &types.UploadResult{Event: event, Notarization: outcome}, nil
}

// LogView appends a view event. An empty access reason falls back to
// the default rather than failing: refusing to log a view because the
// caller skipped a free-text field would punch a hole in the trail.
func (s *Service) LogView(ctx context.Context, viewerID, recordID, accessReason string) (*types.ViewResult, error) {
	if viewerID == "" || recordID == "" {
		return nil, types.NewInvalidArgumentError("viewer id and record id must not be empty", nil)
	}
	if accessReason == "" {
		accessReason = types.DefaultAccessReason
	}

	event := &types.RecordEvent{
		EventID:      uuid.New().String(),
		RecordID:     recordID,
		Kind:         types.RecordEventView,
		ActorID:      viewerID,
		AccessReason: accessReason,
		Timestamp:    time.Now().UTC(),
	}

	if err := s.store.Append(ctx, event); err != nil {
		monitoring.RecordRecordEvent("view", "error")
		return nil, err
	}

	result := &types.ViewResult{Event: event}
	result.Notarization = s.mirrorView(ctx, event, result)
	if result.Notarization.Status == types.NotarizationSuccess {
		event.LedgerRef = result.Notarization.Proof
	}

	monitoring.RecordRecordEvent("view", "success")
	s.logger.Audit(viewerID, "record_view", recordID, true, map[string]interface{}{
		"access_reason": accessReason,
		"notarization":  string(result.Notarization.Status),
	})

	return result, nil
}

// GetHistory returns the internal event log of a record
func (s *Service) GetHistory(ctx context.Context, recordID string) ([]*types.RecordEvent, error) {
	return s.store.GetByRecord(ctx, recordID)
}

func (s *Service) mirrorUpload(ctx context.Context, event *types.RecordEvent) types.NotarizationOutcome {
	if !s.ledger.IsAvailable() {
		return types.SkippedNotarization()
	}

	sub := &interfaces.RecordSubmission{
		RecordHandle:   s.gateway.Hash(event.RecordID),
		UploaderRole:   event.ActorRole,
		UploaderHandle: s.gateway.Hash(event.ActorID),
	}

	proof, err := s.ledger.SubmitRecord(ctx, sub)
	if err != nil {
		s.queueRetry(types.EventRecordUpload, sub.RecordHandle, event.EventID,
			func(ctx context.Context) (*types.LedgerProof, error) {
				return s.ledger.SubmitRecord(ctx, sub)
			})
		return s.failedOutcome(types.EventRecordUpload, sub.RecordHandle, err)
	}

	if err := s.store.AttachLedgerRef(ctx, event.EventID, proof); err != nil {
		s.logger.WithError(err).WithField("event_id", event.EventID).Warn("Failed to attach ledger reference")
	}

	monitoring.RecordNotarization(string(types.EventRecordUpload), "success")
	s.logger.Notarization(string(types.EventRecordUpload), sub.RecordHandle.Hex(), "success", "")
	return types.SuccessfulNotarization(proof)
}

// mirrorView submits the view and, on success, fills the notarized
// view counter into the result
func (s *Service) mirrorView(ctx context.Context, event *types.RecordEvent, result *types.ViewResult) types.NotarizationOutcome {
	if !s.ledger.IsAvailable() {
		return types.SkippedNotarization()
	}

	sub := &interfaces.ViewSubmission{
		ViewerHandle: s.gateway.Hash(event.ActorID),
		RecordHandle: s.gateway.Hash(event.RecordID),
	}

	proof, err := s.ledger.SubmitView(ctx, sub)
	if err != nil {
		s.queueRetry(types.EventRecordView, sub.RecordHandle, event.EventID,
			func(ctx context.Context) (*types.LedgerProof, error) {
				return s.ledger.SubmitView(ctx, sub)
			})
		return s.failedOutcome(types.EventRecordView, sub.RecordHandle, err)
	}

	if count, err := s.ledger.GetViewCount(ctx, sub.RecordHandle); err == nil {
		result.ViewCount = &count
	}

	if err := s.store.AttachLedgerRef(ctx, event.EventID, proof); err != nil {
		s.logger.WithError(err).WithField("event_id", event.EventID).Warn("Failed to attach ledger reference")
	}

	monitoring.RecordNotarization(string(types.EventRecordView), "success")
	s.logger.Notarization(string(types.EventRecordView), sub.RecordHandle.Hex(), "success", "")
	return types.SuccessfulNotarization(proof)
}

func (s *Service) queueRetry(kind types.EventKind, handle hashing.Handle, eventID string, submit func(context.Context) (*types.LedgerProof, error)) {
	if s.reconciler == nil {
		return
	}
	s.reconciler.Enqueue(&ledger.MirrorTask{
		Kind:   kind,
		Handle: handle.Hex(),
		Submit: submit,
		OnSuccess: func(ctx context.Context, proof *types.LedgerProof) {
			if err := s.store.AttachLedgerRef(ctx, eventID, proof); err != nil {
				s.logger.WithError(err).WithField("event_id", eventID).Warn("Failed to attach ledger reference after retry")
			}
		},
	})
}

func (s *Service) failedOutcome(kind types.EventKind, handle hashing.Handle, err error) types.NotarizationOutcome {
	reason := notarizationReason(err)
	monitoring.RecordNotarization(string(kind), "failed")
	s.logger.Notarization(string(kind), handle.Hex(), "failed", reason)
	return types.FailedNotarization(reason)
}

func notarizationReason(err error) string {
	var ae *types.AuditError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return types.ErrCodeLedgerUnavailable
}

var _ interfaces.RecordAccessLogger = (*Service)(nil)
