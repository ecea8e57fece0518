package records

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medaid/consent-trail/pkg/database"
	"github.com/medaid/consent-trail/pkg/logger"
	"github.com/medaid/consent-trail/pkg/types"
)

func setupTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store := &Store{
		db:     &database.DB{DB: db},
		logger: logger.New("debug"),
	}

	cleanup := func() {
		db.Close()
	}

	return store, mock, cleanup
}

func eventColumns() []string {
	return []string{
		"event_id", "record_id", "kind", "actor_id", "actor_role", "access_reason",
		"occurred_at", "ledger_tx_ref", "ledger_chain_height", "ledger_notarized_at",
	}
}

func TestStore_Append(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	event := &types.RecordEvent{
		EventID:   "e1",
		RecordID:  "rec-1",
		Kind:      types.RecordEventUpload,
		ActorID:   "d1",
		ActorRole: types.RoleDoctor,
		Timestamp: time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO record_events").
		WithArgs(
			event.EventID,
			event.RecordID,
			"upload",
			event.ActorID,
			"doctor",
			nil, // access_reason
			event.Timestamp,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Append(context.Background(), event)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetByRecord(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	occurredAt := time.Now().UTC()

	rows := sqlmock.NewRows(eventColumns()).
		AddRow("e1", "rec-1", "upload", "d1", "doctor", nil, occurredAt,
			"aaaa", int64(3), occurredAt).
		AddRow("e2", "rec-1", "view", "d2", nil, "consultation", occurredAt.Add(time.Minute),
			nil, nil, nil)

	mock.ExpectQuery("SELECT (.+) FROM record_events WHERE record_id = \\$1").
		WithArgs("rec-1").
		WillReturnRows(rows)

	events, err := store.GetByRecord(context.Background(), "rec-1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, types.RecordEventUpload, events[0].Kind)
	assert.Equal(t, types.RoleDoctor, events[0].ActorRole)
	require.NotNil(t, events[0].LedgerRef)
	assert.Equal(t, "aaaa", events[0].LedgerRef.TxRef)

	assert.Equal(t, types.RecordEventView, events[1].Kind)
	assert.Equal(t, "consultation", events[1].AccessReason)
	assert.Nil(t, events[1].LedgerRef)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CountViews(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM record_events").
		WithArgs("rec-1", "view").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := store.CountViews(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AttachLedgerRef(t *testing.T) {
	store, mock, cleanup := setupTestStore(t)
	defer cleanup()

	proof := &types.LedgerProof{TxRef: "bbbb", ChainHeight: 4, Timestamp: time.Now().UTC()}

	mock.ExpectExec("UPDATE record_events").
		WithArgs("e1", proof.TxRef, proof.ChainHeight, proof.Timestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.AttachLedgerRef(context.Background(), "e1", proof)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
