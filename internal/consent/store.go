package consent

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/medaid/consent-trail/pkg/database"
	"github.com/medaid/consent-trail/pkg/interfaces"
	"github.com/medaid/consent-trail/pkg/logger"
	"github.com/medaid/consent-trail/pkg/types"
)

// Store is the Postgres-backed ConsentStore. It is the authoritative
// tier: a grant exists once Put returns, regardless of what the
// ledger mirror does afterwards.
type Store struct {
	db     *database.DB
	logger *logger.Logger
}

// NewStore creates a new consent store
func NewStore(db *database.DB, log *logger.Logger) interfaces.ConsentStore {
	return &Store{
		db:     db,
		logger: log,
	}
}

// Put creates a grant row. Create-only: a consent-id collision fails
// with ALREADY_EXISTS instead of overwriting.
func (s *Store) Put(ctx context.Context, grant *types.ConsentGrant) error {
	query := `
		INSERT INTO consent_grants (
			consent_id, patient_id, doctor_id, record_id, scope, purpose,
			granted_at, revoked
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)`

	_, err := s.db.ExecContext(ctx, query,
		grant.ConsentID,
		grant.PatientID,
		grant.DoctorID,
		nullableString(grant.RecordID),
		grant.Scope,
		grant.Purpose,
		grant.GrantedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return types.NewAlreadyExistsError("consent already exists: " + grant.ConsentID)
		}
		s.logger.WithError(err).WithField("consent_id", grant.ConsentID).Error("Failed to store consent grant")
		return types.NewStorageError("failed to store consent grant", err)
	}

	return nil
}

// MarkRevoked conditionally flips the revoked flag. The WHERE clause
// is the compare-and-swap: of two concurrent revocations exactly one
// matches the un-revoked row.
func (s *Store) MarkRevoked(ctx context.Context, consentID, reason string, revokedAt time.Time) error {
	query := `
		UPDATE consent_grants
		SET revoked = TRUE, revoked_at = $2, revocation_reason = $3
		WHERE consent_id = $1 AND NOT revoked`

	result, err := s.db.ExecContext(ctx, query, consentID, revokedAt, reason)
	if err != nil {
		s.logger.WithError(err).WithField("consent_id", consentID).Error("Failed to revoke consent")
		return types.NewStorageError("failed to revoke consent", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return types.NewStorageError("failed to inspect revocation result", err)
	}
	if affected > 0 {
		return nil
	}

	// Nothing matched: either the grant is unknown or already terminal
	var revoked bool
	err = s.db.QueryRowContext(ctx, `SELECT revoked FROM consent_grants WHERE consent_id = $1`, consentID).Scan(&revoked)
	if err == sql.ErrNoRows {
		return types.NewNotFoundError("consent not found: " + consentID)
	}
	if err != nil {
		return types.NewStorageError("failed to look up consent", err)
	}
	return types.NewAlreadyRevokedError(consentID)
}

// Get looks up a grant by id
func (s *Store) Get(ctx context.Context, consentID string) (*types.ConsentGrant, error) {
	query := `
		SELECT consent_id, patient_id, doctor_id, record_id, scope, purpose,
			   granted_at, revoked, revoked_at, revocation_reason,
			   ledger_tx_ref, ledger_chain_height, ledger_notarized_at
		FROM consent_grants
		WHERE consent_id = $1`

	grant, err := scanGrant(s.db.QueryRowContext(ctx, query, consentID))
	if err == sql.ErrNoRows {
		return nil, types.NewNotFoundError("consent not found: " + consentID)
	}
	if err != nil {
		s.logger.WithError(err).WithField("consent_id", consentID).Error("Failed to get consent grant")
		return nil, types.NewStorageError("failed to get consent grant", err)
	}

	return grant, nil
}

// FindActive returns the non-revoked grants for a patient and scope
func (s *Store) FindActive(ctx context.Context, patientID, scope string) ([]*types.ConsentGrant, error) {
	query := `
		SELECT consent_id, patient_id, doctor_id, record_id, scope, purpose,
			   granted_at, revoked, revoked_at, revocation_reason,
			   ledger_tx_ref, ledger_chain_height, ledger_notarized_at
		FROM consent_grants
		WHERE patient_id = $1 AND scope = $2 AND NOT revoked
		ORDER BY granted_at DESC`

	rows, err := s.db.QueryContext(ctx, query, patientID, scope)
	if err != nil {
		return nil, types.NewStorageError("failed to query active consents", err)
	}
	defer rows.Close()

	var grants []*types.ConsentGrant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, types.NewStorageError("failed to scan consent grant", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewStorageError("failed to iterate active consents", err)
	}

	return grants, nil
}

// AttachLedgerRef records a successful mirror's proof. Conditional on
// the column being empty so a reconciler retry cannot clobber the
// proof a concurrent attempt already attached.
func (s *Store) AttachLedgerRef(ctx context.Context, consentID string, proof *types.LedgerProof) error {
	query := `
		UPDATE consent_grants
		SET ledger_tx_ref = $2, ledger_chain_height = $3, ledger_notarized_at = $4
		WHERE consent_id = $1 AND ledger_tx_ref IS NULL`

	if _, err := s.db.ExecContext(ctx, query, consentID, proof.TxRef, proof.ChainHeight, proof.Timestamp); err != nil {
		return types.NewStorageError("failed to attach ledger reference", err)
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGrant(row rowScanner) (*types.ConsentGrant, error) {
	grant := &types.ConsentGrant{}
	var recordID, revocationReason, txRef sql.NullString
	var revokedAt, notarizedAt sql.NullTime
	var chainHeight sql.NullInt64

	err := row.Scan(
		&grant.ConsentID,
		&grant.PatientID,
		&grant.DoctorID,
		&recordID,
		&grant.Scope,
		&grant.Purpose,
		&grant.GrantedAt,
		&grant.Revoked,
		&revokedAt,
		&revocationReason,
		&txRef,
		&chainHeight,
		&notarizedAt,
	)
	if err != nil {
		return nil, err
	}

	grant.RecordID = recordID.String
	grant.RevocationReason = revocationReason.String
	if revokedAt.Valid {
		grant.RevokedAt = &revokedAt.Time
	}
	if txRef.Valid {
		grant.LedgerRef = &types.LedgerProof{
			TxRef:       txRef.String,
			ChainHeight: uint64(chainHeight.Int64),
			Timestamp:   notarizedAt.Time,
		}
	}

	return grant, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
