package types

import "time"

// Ledger read shapes. These are fixed structs validated at the
// LedgerClient boundary; the ledger itself only ever sees hash
// handles, never raw identifiers.

// ConsentEntry is the ledger-side view of a notarized consent
type ConsentEntry struct {
	ConsentHandle string     `json:"consent_handle"`
	PatientHandle string     `json:"patient_handle"`
	DoctorHandle  string     `json:"doctor_handle"`
	RecordHandle  string     `json:"record_handle"`
	Timestamp     time.Time  `json:"timestamp"`
	Revoked       bool       `json:"revoked"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
}

// RecordEntry is the ledger-side view of a notarized record upload
type RecordEntry struct {
	RecordHandle   string    `json:"record_handle"`
	UploaderRole   string    `json:"uploader_role"`
	UploaderHandle string    `json:"uploader_handle"`
	Timestamp      time.Time `json:"timestamp"`
}

// LedgerStats holds the aggregate counters maintained by the ledger
type LedgerStats struct {
	TotalConsents uint64 `json:"total_consents"`
	TotalRecords  uint64 `json:"total_records"`
	TotalViews    uint64 `json:"total_views"`
}

// ConsentProofResult is the tri-state answer to a consent
// verification query. Unavailable distinguishes "ledger unreachable"
// from "consent invalid"; callers must never conflate the two.
type ConsentProofResult struct {
	ConsentID   string        `json:"consent_id"`
	Valid       bool          `json:"valid"`
	Found       bool          `json:"found"`
	Unavailable bool          `json:"unavailable"`
	Entry       *ConsentEntry `json:"entry,omitempty"`
}

// RecordProofResult is the tri-state answer to a record verification
// query
type RecordProofResult struct {
	RecordID    string       `json:"record_id"`
	Found       bool         `json:"found"`
	Unavailable bool         `json:"unavailable"`
	Entry       *RecordEntry `json:"entry,omitempty"`
	ViewCount   uint64       `json:"view_count"`
}

// StatsResult wraps LedgerStats with the availability flag
type StatsResult struct {
	Stats       *LedgerStats `json:"stats,omitempty"`
	Unavailable bool         `json:"unavailable"`
}
