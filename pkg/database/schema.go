package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the consent and record-event tables. Consent
// grants are never deleted: revocation flips a flag, and the row stays
// queryable for audit.
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	tables := []string{
		createConsentGrantsTable,
		createRecordEventsTable,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		createConsentGrantsIndexes,
		createRecordEventsIndexes,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

// SQL DDL statements for table creation
const (
	createConsentGrantsTable = `
		CREATE TABLE IF NOT EXISTS consent_grants (
			consent_id VARCHAR(160) PRIMARY KEY,
			patient_id VARCHAR(120) NOT NULL,
			doctor_id VARCHAR(120) NOT NULL,
			record_id VARCHAR(120),
			scope VARCHAR(200) NOT NULL,
			purpose TEXT NOT NULL,
			granted_at TIMESTAMPTZ NOT NULL,
			revoked BOOLEAN NOT NULL DEFAULT FALSE,
			revoked_at TIMESTAMPTZ,
			revocation_reason TEXT,
			ledger_tx_ref VARCHAR(128),
			ledger_chain_height BIGINT,
			ledger_notarized_at TIMESTAMPTZ
		);`

	createRecordEventsTable = `
		CREATE TABLE IF NOT EXISTS record_events (
			event_id UUID PRIMARY KEY,
			record_id VARCHAR(120) NOT NULL,
			kind VARCHAR(16) NOT NULL,
			actor_id VARCHAR(120) NOT NULL,
			actor_role VARCHAR(40),
			access_reason TEXT,
			occurred_at TIMESTAMPTZ NOT NULL,
			ledger_tx_ref VARCHAR(128),
			ledger_chain_height BIGINT,
			ledger_notarized_at TIMESTAMPTZ
		);`

	createConsentGrantsIndexes = `
		CREATE INDEX IF NOT EXISTS idx_consent_grants_patient ON consent_grants(patient_id);
		CREATE INDEX IF NOT EXISTS idx_consent_grants_patient_scope ON consent_grants(patient_id, scope) WHERE NOT revoked;
		CREATE INDEX IF NOT EXISTS idx_consent_grants_doctor ON consent_grants(doctor_id);`

	createRecordEventsIndexes = `
		CREATE INDEX IF NOT EXISTS idx_record_events_record ON record_events(record_id);
		CREATE INDEX IF NOT EXISTS idx_record_events_record_kind ON record_events(record_id, kind);
		CREATE INDEX IF NOT EXISTS idx_record_events_actor ON record_events(actor_id);`
)
