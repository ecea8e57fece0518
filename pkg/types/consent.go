package types

import "time"

// RoleKind enumerates who may upload a health record
type RoleKind string

const (
	RolePatient               RoleKind = "patient"
	RoleDoctor                RoleKind = "doctor"
	RoleCommunityHealthWorker RoleKind = "community_health_worker"
)

// ValidRole reports whether r is one of the accepted uploader roles
func ValidRole(r RoleKind) bool {
	switch r {
	case RolePatient, RoleDoctor, RoleCommunityHealthWorker:
		return true
	}
	return false
}

// EventKind enumerates the event tags mirrored to the ledger
type EventKind string

const (
	EventConsentGrant  EventKind = "consent-grant"
	EventConsentRevoke EventKind = "consent-revoke"
	EventRecordUpload  EventKind = "record-upload"
	EventRecordView    EventKind = "record-view"
)

// RecordEventKind enumerates the internal record event log entry kinds
type RecordEventKind string

const (
	RecordEventUpload RecordEventKind = "upload"
	RecordEventView   RecordEventKind = "view"
)

// DefaultAccessReason is recorded for view events when the caller does
// not supply a reason
const DefaultAccessReason = "consultation"

// DefaultRevocationReason is recorded when a revocation carries no reason
const DefaultRevocationReason = "patient requested"

// ConsentGrant is the authoritative internal record of a consent.
// Once Revoked is set the grant is terminal and no field changes again.
type ConsentGrant struct {
	ConsentID        string       `json:"consent_id"`
	PatientID        string       `json:"patient_id"`
	DoctorID         string       `json:"doctor_id"`
	RecordID         string       `json:"record_id,omitempty"`
	Scope            string       `json:"scope"`
	Purpose          string       `json:"purpose"`
	GrantedAt        time.Time    `json:"granted_at"`
	Revoked          bool         `json:"revoked"`
	RevokedAt        *time.Time   `json:"revoked_at,omitempty"`
	RevocationReason string       `json:"revocation_reason,omitempty"`
	LedgerRef        *LedgerProof `json:"ledger_ref,omitempty"`
}

// RecordEvent is one append-only entry in the record access log
type RecordEvent struct {
	EventID      string          `json:"event_id"`
	RecordID     string          `json:"record_id"`
	Kind         RecordEventKind `json:"kind"`
	ActorID      string          `json:"actor_id"`
	ActorRole    RoleKind        `json:"actor_role,omitempty"`
	AccessReason string          `json:"access_reason,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	LedgerRef    *LedgerProof    `json:"ledger_ref,omitempty"`
}

// LedgerProof is the confirmation reference returned by a successful
// ledger submission
type LedgerProof struct {
	TxRef       string    `json:"tx_ref"`
	ChainHeight uint64    `json:"chain_height,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NotarizationStatus describes the outcome of the best-effort ledger
// mirror attached to a primary operation
type NotarizationStatus string

const (
	NotarizationSuccess NotarizationStatus = "success"
	NotarizationSkipped NotarizationStatus = "skipped"
	NotarizationFailed  NotarizationStatus = "failed"
)

// NotarizationOutcome carries the secondary result of the ledger
// mirror. A failed outcome never fails the primary operation.
type NotarizationOutcome struct {
	Status NotarizationStatus `json:"status"`
	Proof  *LedgerProof       `json:"proof,omitempty"`
	Reason string             `json:"reason,omitempty"`
}

// SkippedNotarization returns the outcome used when ledger mirroring
// is disabled
func SkippedNotarization() NotarizationOutcome {
	return NotarizationOutcome{Status: NotarizationSkipped}
}

// FailedNotarization returns a failed outcome with a reason string
func FailedNotarization(reason string) NotarizationOutcome {
	return NotarizationOutcome{Status: NotarizationFailed, Reason: reason}
}

// SuccessfulNotarization returns a success outcome carrying the proof
func SuccessfulNotarization(proof *LedgerProof) NotarizationOutcome {
	return NotarizationOutcome{Status: NotarizationSuccess, Proof: proof}
}

// GrantRequest carries the caller-supplied fields of a consent grant.
// PatientID and DoctorID are opaque; their existence is checked by an
// external collaborator, not here.
type GrantRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	RecordID  string `json:"record_id,omitempty"`
	Scope     string `json:"scope"`
	Purpose   string `json:"purpose"`
}

// GrantResult is what ConsentManager.Grant returns: the stored grant
// plus the mirror outcome
type GrantResult struct {
	Grant        *ConsentGrant       `json:"grant"`
	Notarization NotarizationOutcome `json:"notarization"`
}

// RevokeResult is what ConsentManager.Revoke returns
type RevokeResult struct {
	ConsentID    string              `json:"consent_id"`
	RevokedAt    time.Time           `json:"revoked_at"`
	Notarization NotarizationOutcome `json:"notarization"`
}

// UploadResult is what RecordAccessLogger.LogUpload returns
type UploadResult struct {
	Event        *RecordEvent        `json:"event"`
	Notarization NotarizationOutcome `json:"notarization"`
}

// ViewResult is what RecordAccessLogger.LogView returns. ViewCount is
// nil when the ledger cannot report a notarized count.
type ViewResult struct {
	Event        *RecordEvent        `json:"event"`
	ViewCount    *uint64             `json:"view_count,omitempty"`
	Notarization NotarizationOutcome `json:"notarization"`
}
