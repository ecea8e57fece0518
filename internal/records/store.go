package records

import (
	"context"
	"database/sql"

	"github.com/medaid/consent-trail/pkg/database"
	"github.com/medaid/consent-trail/pkg/interfaces"
	"github.com/medaid/consent-trail/pkg/logger"
	"github.com/medaid/consent-trail/pkg/types"
)

// Store is the Postgres-backed record event log. Append-only: rows
// are inserted once and only their ledger bookkeeping columns are
// ever updated afterwards.
type Store struct {
	db     *database.DB
	logger *logger.Logger
}

// NewStore creates a new record event store
func NewStore(db *database.DB, log *logger.Logger) interfaces.RecordEventStore {
	return &Store{
		db:     db,
		logger: log,
	}
}

// Append inserts one event row
func (s *Store) Append(ctx context.Context, event *types.RecordEvent) error {
	query := `
		INSERT INTO record_events (
			event_id, record_id, kind, actor_id, actor_role, access_reason, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		event.EventID,
		event.RecordID,
		string(event.Kind),
		event.ActorID,
		nullableString(string(event.ActorRole)),
		nullableString(event.AccessReason),
		event.Timestamp,
	)
	if err != nil {
		s.logger.WithError(err).WithField("record_id", event.RecordID).Error("Failed to append record event")
		return types.NewStorageError("failed to append record event", err)
	}

	return nil
}

// GetByRecord returns the full event history of a record, oldest first
func (s *Store) GetByRecord(ctx context.Context, recordID string) ([]*types.RecordEvent, error) {
	query := `
		SELECT event_id, record_id, kind, actor_id, actor_role, access_reason,
			   occurred_at, ledger_tx_ref, ledger_chain_height, ledger_notarized_at
		FROM record_events
		WHERE record_id = $1
		ORDER BY occurred_at ASC`

	rows, err := s.db.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, types.NewStorageError("failed to query record events", err)
	}
	defer rows.Close()

	var events []*types.RecordEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, types.NewStorageError("failed to scan record event", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewStorageError("failed to iterate record events", err)
	}

	return events, nil
}

// CountViews returns the number of view events stored internally for
// a record. The notarized count lives on the ledger; this one backs
// the degraded path when the ledger is unreachable.
func (s *Store) CountViews(ctx context.Context, recordID string) (uint64, error) {
	var count uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM record_events WHERE record_id = $1 AND kind = $2`,
		recordID, string(types.RecordEventView),
	).Scan(&count)
	if err != nil {
		return 0, types.NewStorageError("failed to count record views", err)
	}
	return count, nil
}

// AttachLedgerRef records a successful mirror's proof on the event
func (s *Store) AttachLedgerRef(ctx context.Context, eventID string, proof *types.LedgerProof) error {
	query := `
		UPDATE record_events
		SET ledger_tx_ref = $2, ledger_chain_height = $3, ledger_notarized_at = $4
		WHERE event_id = $1 AND ledger_tx_ref IS NULL`

	if _, err := s.db.ExecContext(ctx, query, eventID, proof.TxRef, proof.ChainHeight, proof.Timestamp); err != nil {
		return types.NewStorageError("failed to attach ledger reference", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*types.RecordEvent, error) {
	event := &types.RecordEvent{}
	var actorRole, accessReason, txRef sql.NullString
	var chainHeight sql.NullInt64
	var notarizedAt sql.NullTime
	var kind string

	err := row.Scan(
		&event.EventID,
		&event.RecordID,
		&kind,
		&event.ActorID,
		&actorRole,
		&accessReason,
		&event.Timestamp,
		&txRef,
		&chainHeight,
		&notarizedAt,
	)
	if err != nil {
		return nil, err
	}

	event.Kind = types.RecordEventKind(kind)
	event.ActorRole = types.RoleKind(actorRole.String)
	event.AccessReason = accessReason.String
	if txRef.Valid {
		event.LedgerRef = &types.LedgerProof{
			TxRef:       txRef.String,
			ChainHeight: uint64(chainHeight.Int64),
			Timestamp:   notarizedAt.Time,
		}
	}

	return event, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
