package consentaudit

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// SmartContract notarizes consent and record-access events. Every
// identifier on the ledger is a 32-byte hash handle, hex encoded;
// raw patient, doctor and record ids never reach the chain.
type SmartContract struct {
	contractapi.Contract
}

// ConsentEntry is a notarized consent grant keyed by its handle
type ConsentEntry struct {
	ConsentHandle string     `json:"consent_handle"`
	PatientHandle string     `json:"patient_handle"`
	DoctorHandle  string     `json:"doctor_handle"`
	RecordHandle  string     `json:"record_handle"`
	Timestamp     time.Time  `json:"timestamp"`
	Revoked       bool       `json:"revoked"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	TxID          string     `json:"tx_id"`
	RevokeTxID    string     `json:"revoke_tx_id,omitempty"`
}

// RecordEntry is a notarized record upload keyed by its handle
type RecordEntry struct {
	RecordHandle   string    `json:"record_handle"`
	UploaderRole   string    `json:"uploader_role"`
	UploaderHandle string    `json:"uploader_handle"`
	Timestamp      time.Time `json:"timestamp"`
	TxID           string    `json:"tx_id"`
}

// Stats holds the aggregate counters maintained alongside the entries
type Stats struct {
	TotalConsents uint64 `json:"total_consents"`
	TotalRecords  uint64 `json:"total_records"`
	TotalViews    uint64 `json:"total_views"`
}

const (
	consentKeyPrefix = "consent_"
	recordKeyPrefix  = "record_"
	viewsKeyPrefix   = "views_"
	statsKey         = "stats"
)

var validUploaderRoles = map[string]bool{
	"patient":                 true,
	"doctor":                  true,
	"community_health_worker": true,
}

// LogConsent notarizes a consent grant. Idempotent: re-submitting an
// already notarized handle is a no-op.
func (s *SmartContract) LogConsent(ctx contractapi.TransactionContextInterface, consentHandle, patientHandle, doctorHandle, recordHandle string) error {
	for _, h := range []string{consentHandle, patientHandle, doctorHandle} {
		if err := validateHandle(h); err != nil {
			return err
		}
	}
	if recordHandle != "" {
		if err := validateHandle(recordHandle); err != nil {
			return err
		}
	}

	key := consentKeyPrefix + consentHandle
	existing, err := ctx.GetStub().GetState(key)
	if err != nil {
		return fmt.Errorf("failed to read consent state: %v", err)
	}
	if existing != nil {
		return nil
	}

	entry := ConsentEntry{
		ConsentHandle: consentHandle,
		PatientHandle: patientHandle,
		DoctorHandle:  doctorHandle,
		RecordHandle:  recordHandle,
		Timestamp:     time.Now().UTC(),
		TxID:          ctx.GetStub().GetTxID(),
	}

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := ctx.GetStub().PutState(key, entryJSON); err != nil {
		return err
	}

	return s.bumpStat(ctx, func(st *Stats) { st.TotalConsents++ })
}

// RevokeConsent marks a notarized consent revoked. Fails for unknown
// handles; a second revocation of the same handle is a no-op.
func (s *SmartContract) RevokeConsent(ctx contractapi.TransactionContextInterface, consentHandle string) error {
	if err := validateHandle(consentHandle); err != nil {
		return err
	}

	key := consentKeyPrefix + consentHandle
	data, err := ctx.GetStub().GetState(key)
	if err != nil {
		return fmt.Errorf("failed to read consent state: %v", err)
	}
	if data == nil {
		return fmt.Errorf("consent not found for handle %s", consentHandle)
	}

	var entry ConsentEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return fmt.Errorf("corrupt consent entry: %v", err)
	}
	if entry.Revoked {
		return nil
	}

	now := time.Now().UTC()
	entry.Revoked = true
	entry.RevokedAt = &now
	entry.RevokeTxID = ctx.GetStub().GetTxID()

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return ctx.GetStub().PutState(key, entryJSON)
}

// LogRecord notarizes a record upload. Idempotent per record handle.
func (s *SmartContract) LogRecord(ctx contractapi.TransactionContextInterface, recordHandle, uploaderRole, uploaderHandle string) error {
	if err := validateHandle(recordHandle); err != nil {
		return err
	}
	if err := validateHandle(uploaderHandle); err != nil {
		return err
	}
	if !validUploaderRoles[uploaderRole] {
		return fmt.Errorf("invalid uploader role: %s", uploaderRole)
	}

	key := recordKeyPrefix + recordHandle
	existing, err := ctx.GetStub().GetState(key)
	if err != nil {
		return fmt.Errorf("failed to read record state: %v", err)
	}
	if existing != nil {
		return nil
	}

	entry := RecordEntry{
		RecordHandle:   recordHandle,
		UploaderRole:   uploaderRole,
		UploaderHandle: uploaderHandle,
		Timestamp:      time.Now().UTC(),
		TxID:           ctx.GetStub().GetTxID(),
	}

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := ctx.GetStub().PutState(key, entryJSON); err != nil {
		return err
	}

	return s.bumpStat(ctx, func(st *Stats) { st.TotalRecords++ })
}

// LogView increments the view counter for a record handle. Views are
// additive and never deduplicated: every access is its own event.
func (s *SmartContract) LogView(ctx contractapi.TransactionContextInterface, viewerHandle, recordHandle string) error {
	if err := validateHandle(viewerHandle); err != nil {
		return err
	}
	if err := validateHandle(recordHandle); err != nil {
		return err
	}

	count, err := s.GetViewCount(ctx, recordHandle)
	if err != nil {
		return err
	}

	key := viewsKeyPrefix + recordHandle
	if err := ctx.GetStub().PutState(key, []byte(strconv.FormatUint(count+1, 10))); err != nil {
		return err
	}

	return s.bumpStat(ctx, func(st *Stats) { st.TotalViews++ })
}

// GetConsent reads a notarized consent entry
func (s *SmartContract) GetConsent(ctx contractapi.TransactionContextInterface, consentHandle string) (*ConsentEntry, error) {
	if err := validateHandle(consentHandle); err != nil {
		return nil, err
	}

	data, err := ctx.GetStub().GetState(consentKeyPrefix + consentHandle)
	if err != nil {
		return nil, fmt.Errorf("failed to read consent state: %v", err)
	}
	if data == nil {
		return nil, fmt.Errorf("consent not found for handle %s", consentHandle)
	}

	var entry ConsentEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupt consent entry: %v", err)
	}
	return &entry, nil
}

// IsConsentValid reports whether the handle is notarized and unrevoked.
// Unknown handles are invalid, not an error.
func (s *SmartContract) IsConsentValid(ctx contractapi.TransactionContextInterface, consentHandle string) (bool, error) {
	if err := validateHandle(consentHandle); err != nil {
		return false, err
	}

	data, err := ctx.GetStub().GetState(consentKeyPrefix + consentHandle)
	if err != nil {
		return false, fmt.Errorf("failed to read consent state: %v", err)
	}
	if data == nil {
		return false, nil
	}

	var entry ConsentEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return false, fmt.Errorf("corrupt consent entry: %v", err)
	}
	return !entry.Revoked, nil
}

// GetRecord reads a notarized record entry
func (s *SmartContract) GetRecord(ctx contractapi.TransactionContextInterface, recordHandle string) (*RecordEntry, error) {
	if err := validateHandle(recordHandle); err != nil {
		return nil, err
	}

	data, err := ctx.GetStub().GetState(recordKeyPrefix + recordHandle)
	if err != nil {
		return nil, fmt.Errorf("failed to read record state: %v", err)
	}
	if data == nil {
		return nil, fmt.Errorf("record not found for handle %s", recordHandle)
	}

	var entry RecordEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupt record entry: %v", err)
	}
	return &entry, nil
}

// GetViewCount returns the view counter for a record handle, zero for
// handles never viewed
func (s *SmartContract) GetViewCount(ctx contractapi.TransactionContextInterface, recordHandle string) (uint64, error) {
	if err := validateHandle(recordHandle); err != nil {
		return 0, err
	}

	data, err := ctx.GetStub().GetState(viewsKeyPrefix + recordHandle)
	if err != nil {
		return 0, fmt.Errorf("failed to read view count: %v", err)
	}
	if data == nil {
		return 0, nil
	}

	count, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt view counter: %v", err)
	}
	return count, nil
}

// GetStats returns the aggregate counters
func (s *SmartContract) GetStats(ctx contractapi.TransactionContextInterface) (*Stats, error) {
	data, err := ctx.GetStub().GetState(statsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %v", err)
	}

	stats := &Stats{}
	if data != nil {
		if err := json.Unmarshal(data, stats); err != nil {
			return nil, fmt.Errorf("corrupt stats entry: %v", err)
		}
	}
	return stats, nil
}

func (s *SmartContract) bumpStat(ctx contractapi.TransactionContextInterface, mutate func(*Stats)) error {
	stats, err := s.GetStats(ctx)
	if err != nil {
		return err
	}
	mutate(stats)

	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return ctx.GetStub().PutState(statsKey, statsJSON)
}

// validateHandle enforces the 32-byte hex handle shape at the chain
// boundary, the last place a raw identifier could slip through
func validateHandle(handle string) error {
	if len(handle) != 64 {
		return fmt.Errorf("handle must be 64 hex characters, got %d", len(handle))
	}
	if _, err := hex.DecodeString(handle); err != nil {
		return fmt.Errorf("handle must be hex encoded: %v", err)
	}
	return nil
}
