package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"

	"github.com/medaid/consent-trail/pkg/hashing"
	"github.com/medaid/consent-trail/pkg/interfaces"
	"github.com/medaid/consent-trail/pkg/logger"
	"github.com/medaid/consent-trail/pkg/types"
)

// LevelDB key prefixes and meta keys
const (
	consentKeyPrefix = "consent_"
	recordKeyPrefix  = "record_"
	viewsKeyPrefix   = "views_"
	statsKey         = "stats_totals"
	chainTipKey      = "chain_tip"
	chainHeightKey   = "chain_height"
)

// EmbeddedClient is a LedgerClient backed by a local LevelDB
// hash-chained append-only log. It satisfies the notarization
// contract without an external ledger: every accepted entry is
// chained to its predecessor, so rewriting history invalidates every
// later proof reference.
//
// Entries are keyed by hash handle only; the store never sees a raw
// identifier.
type EmbeddedClient struct {
	db     *leveldb.DB
	logger *logger.Logger

	// serializes writes so counter updates and chain advancement stay
	// consistent across keys
	mu sync.Mutex
}

// storedConsent is the on-disk shape of a notarized consent
type storedConsent struct {
	ConsentHandle string     `json:"consent_handle"`
	PatientHandle string     `json:"patient_handle"`
	DoctorHandle  string     `json:"doctor_handle"`
	RecordHandle  string     `json:"record_handle"`
	Timestamp     time.Time  `json:"timestamp"`
	Revoked       bool       `json:"revoked"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	TxRef         string     `json:"tx_ref"`
	ChainHeight   uint64     `json:"chain_height"`
	RevokeTxRef   string     `json:"revoke_tx_ref,omitempty"`
}

// storedRecord is the on-disk shape of a notarized record upload
type storedRecord struct {
	RecordHandle   string    `json:"record_handle"`
	UploaderRole   string    `json:"uploader_role"`
	UploaderHandle string    `json:"uploader_handle"`
	Timestamp      time.Time `json:"timestamp"`
	TxRef          string    `json:"tx_ref"`
	ChainHeight    uint64    `json:"chain_height"`
}

// chainEntry is what gets hashed into the proof chain
type chainEntry struct {
	Kind      types.EventKind `json:"kind"`
	Handles   []string        `json:"handles"`
	Timestamp time.Time       `json:"timestamp"`
	Height    uint64          `json:"height"`
}

// NewEmbeddedClient opens (or creates) the embedded ledger at path
func NewEmbeddedClient(path string, log *logger.Logger) (*EmbeddedClient, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded ledger: %w", err)
	}

	log.WithField("path", path).Info("Embedded ledger opened")
	return &EmbeddedClient{db: db, logger: log}, nil
}

// IsAvailable reports true while the store is open
func (c *EmbeddedClient) IsAvailable() bool {
	return c.db != nil
}

// SubmitConsent notarizes a consent grant. Resubmitting the same
// consent handle is an idempotent no-op returning the original proof.
func (c *EmbeddedClient) SubmitConsent(ctx context.Context, sub *interfaces.ConsentSubmission) (*types.LedgerProof, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewLedgerTimeoutError("consent submission aborted", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := consentKeyPrefix + sub.ConsentHandle.Hex()
	if existing, found, err := c.getConsentLocked(key); err != nil {
		return nil, err
	} else if found {
		return &types.LedgerProof{TxRef: existing.TxRef, ChainHeight: existing.ChainHeight, Timestamp: existing.Timestamp}, nil
	}

	now := time.Now().UTC()
	txRef, height, err := c.advanceChainLocked(types.EventConsentGrant, now,
		sub.ConsentHandle.Hex(), sub.PatientHandle.Hex(), sub.DoctorHandle.Hex(), sub.RecordHandle.Hex())
	if err != nil {
		return nil, err
	}

	entry := storedConsent{
		ConsentHandle: sub.ConsentHandle.Hex(),
		PatientHandle: sub.PatientHandle.Hex(),
		DoctorHandle:  sub.DoctorHandle.Hex(),
		RecordHandle:  sub.RecordHandle.Hex(),
		Timestamp:     now,
		TxRef:         txRef,
		ChainHeight:   height,
	}
	if err := c.putJSONLocked(key, &entry); err != nil {
		return nil, err
	}
	if err := c.bumpStatLocked(func(s *types.LedgerStats) { s.TotalConsents++ }); err != nil {
		return nil, err
	}

	c.logger.LedgerTransaction(string(types.EventConsentGrant), txRef, true, map[string]interface{}{
		"chain_height": height,
	})
	return &types.LedgerProof{TxRef: txRef, ChainHeight: height, Timestamp: now}, nil
}

// SubmitRevocation flips the notarized consent entry to revoked. The
// entry must exist; revoking twice is an idempotent no-op returning
// the revocation proof already on file.
func (c *EmbeddedClient) SubmitRevocation(ctx context.Context, consentHandle hashing.Handle) (*types.LedgerProof, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewLedgerTimeoutError("revocation submission aborted", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := consentKeyPrefix + consentHandle.Hex()
	entry, found, err := c.getConsentLocked(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, types.NewLedgerRejectedError("cannot revoke unknown consent handle", nil)
	}
	if entry.Revoked {
		return &types.LedgerProof{TxRef: entry.RevokeTxRef, ChainHeight: entry.ChainHeight, Timestamp: *entry.RevokedAt}, nil
	}

	now := time.Now().UTC()
	txRef, height, err := c.advanceChainLocked(types.EventConsentRevoke, now, consentHandle.Hex())
	if err != nil {
		return nil, err
	}

	entry.Revoked = true
	entry.RevokedAt = &now
	entry.RevokeTxRef = txRef
	if err := c.putJSONLocked(key, entry); err != nil {
		return nil, err
	}

	c.logger.LedgerTransaction(string(types.EventConsentRevoke), txRef, true, map[string]interface{}{
		"chain_height": height,
	})
	return &types.LedgerProof{TxRef: txRef, ChainHeight: height, Timestamp: now}, nil
}

// SubmitRecord notarizes a record upload. Idempotent per record handle.
func (c *EmbeddedClient) SubmitRecord(ctx context.Context, sub *interfaces.RecordSubmission) (*types.LedgerProof, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewLedgerTimeoutError("record submission aborted", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := recordKeyPrefix + sub.RecordHandle.Hex()
	data, err := c.db.Get([]byte(key), nil)
	if err == nil {
		var existing storedRecord
		if uerr := json.Unmarshal(data, &existing); uerr != nil {
			return nil, types.NewLedgerRejectedError("corrupt record entry", uerr)
		}
		return &types.LedgerProof{TxRef: existing.TxRef, ChainHeight: existing.ChainHeight, Timestamp: existing.Timestamp}, nil
	}
	if err != ldberrors.ErrNotFound {
		return nil, types.NewLedgerUnavailableError("embedded ledger read failed", err)
	}

	now := time.Now().UTC()
	txRef, height, err := c.advanceChainLocked(types.EventRecordUpload, now,
		sub.RecordHandle.Hex(), sub.UploaderHandle.Hex())
	if err != nil {
		return nil, err
	}

	entry := storedRecord{
		RecordHandle:   sub.RecordHandle.Hex(),
		UploaderRole:   string(sub.UploaderRole),
		UploaderHandle: sub.UploaderHandle.Hex(),
		Timestamp:      now,
		TxRef:          txRef,
		ChainHeight:    height,
	}
	if err := c.putJSONLocked(key, &entry); err != nil {
		return nil, err
	}
	if err := c.bumpStatLocked(func(s *types.LedgerStats) { s.TotalRecords++ }); err != nil {
		return nil, err
	}

	c.logger.LedgerTransaction(string(types.EventRecordUpload), txRef, true, map[string]interface{}{
		"chain_height": height,
	})
	return &types.LedgerProof{TxRef: txRef, ChainHeight: height, Timestamp: now}, nil
}

// SubmitView notarizes a record view. Views are additive: each call
// appends a chain entry and increments the per-record counter.
func (c *EmbeddedClient) SubmitView(ctx context.Context, sub *interfaces.ViewSubmission) (*types.LedgerProof, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewLedgerTimeoutError("view submission aborted", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	txRef, height, err := c.advanceChainLocked(types.EventRecordView, now,
		sub.ViewerHandle.Hex(), sub.RecordHandle.Hex())
	if err != nil {
		return nil, err
	}

	count, err := c.getViewCountLocked(sub.RecordHandle.Hex())
	if err != nil {
		return nil, err
	}
	countKey := viewsKeyPrefix + sub.RecordHandle.Hex()
	if err := c.db.Put([]byte(countKey), []byte(strconv.FormatUint(count+1, 10)), nil); err != nil {
		return nil, types.NewLedgerUnavailableError("embedded ledger write failed", err)
	}
	if err := c.bumpStatLocked(func(s *types.LedgerStats) { s.TotalViews++ }); err != nil {
		return nil, err
	}

	c.logger.LedgerTransaction(string(types.EventRecordView), txRef, true, map[string]interface{}{
		"chain_height": height,
		"view_count":   count + 1,
	})
	return &types.LedgerProof{TxRef: txRef, ChainHeight: height, Timestamp: now}, nil
}

// GetConsent reads a notarized consent entry by handle
func (c *EmbeddedClient) GetConsent(ctx context.Context, consentHandle hashing.Handle) (*types.ConsentEntry, bool, error) {
	c.mu.Lock()
	entry, found, err := c.getConsentLocked(consentKeyPrefix + consentHandle.Hex())
	c.mu.Unlock()
	if err != nil || !found {
		return nil, false, err
	}

	return &types.ConsentEntry{
		ConsentHandle: entry.ConsentHandle,
		PatientHandle: entry.PatientHandle,
		DoctorHandle:  entry.DoctorHandle,
		RecordHandle:  entry.RecordHandle,
		Timestamp:     entry.Timestamp,
		Revoked:       entry.Revoked,
		RevokedAt:     entry.RevokedAt,
	}, true, nil
}

// IsConsentValid reports whether the handle is notarized and not revoked
func (c *EmbeddedClient) IsConsentValid(ctx context.Context, consentHandle hashing.Handle) (bool, error) {
	entry, found, err := c.GetConsent(ctx, consentHandle)
	if err != nil {
		return false, err
	}
	return found && !entry.Revoked, nil
}

// GetRecord reads a notarized record entry by handle
func (c *EmbeddedClient) GetRecord(ctx context.Context, recordHandle hashing.Handle) (*types.RecordEntry, bool, error) {
	data, err := c.db.Get([]byte(recordKeyPrefix+recordHandle.Hex()), nil)
	if err == ldberrors.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.NewLedgerUnavailableError("embedded ledger read failed", err)
	}

	var entry storedRecord
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, types.NewLedgerRejectedError("corrupt record entry", err)
	}

	return &types.RecordEntry{
		RecordHandle:   entry.RecordHandle,
		UploaderRole:   entry.UploaderRole,
		UploaderHandle: entry.UploaderHandle,
		Timestamp:      entry.Timestamp,
	}, true, nil
}

// GetViewCount returns the notarized view count for a record handle
func (c *EmbeddedClient) GetViewCount(ctx context.Context, recordHandle hashing.Handle) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getViewCountLocked(recordHandle.Hex())
}

// GetStats returns the aggregate counters
func (c *EmbeddedClient) GetStats(ctx context.Context) (*types.LedgerStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getStatsLocked()
}

// Close closes the underlying store
func (c *EmbeddedClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// advanceChainLocked appends an entry to the proof chain and returns
// its reference and height. The reference hashes the previous tip
// together with the entry, so any rewrite breaks every later proof.
func (c *EmbeddedClient) advanceChainLocked(kind types.EventKind, ts time.Time, handles ...string) (string, uint64, error) {
	tip := ""
	if data, err := c.db.Get([]byte(chainTipKey), nil); err == nil {
		tip = string(data)
	} else if err != ldberrors.ErrNotFound {
		return "", 0, types.NewLedgerUnavailableError("embedded ledger read failed", err)
	}

	var height uint64
	if data, err := c.db.Get([]byte(chainHeightKey), nil); err == nil {
		h, perr := strconv.ParseUint(string(data), 10, 64)
		if perr != nil {
			return "", 0, types.NewLedgerRejectedError("corrupt chain height", perr)
		}
		height = h
	} else if err != ldberrors.ErrNotFound {
		return "", 0, types.NewLedgerUnavailableError("embedded ledger read failed", err)
	}
	height++

	payload, err := json.Marshal(chainEntry{Kind: kind, Handles: handles, Timestamp: ts, Height: height})
	if err != nil {
		return "", 0, types.NewLedgerRejectedError("failed to encode chain entry", err)
	}

	sum := sha256.Sum256(append([]byte(tip), payload...))
	txRef := hex.EncodeToString(sum[:])

	if err := c.db.Put([]byte(chainTipKey), []byte(txRef), nil); err != nil {
		return "", 0, types.NewLedgerUnavailableError("embedded ledger write failed", err)
	}
	if err := c.db.Put([]byte(chainHeightKey), []byte(strconv.FormatUint(height, 10)), nil); err != nil {
		return "", 0, types.NewLedgerUnavailableError("embedded ledger write failed", err)
	}

	return txRef, height, nil
}

func (c *EmbeddedClient) getConsentLocked(key string) (*storedConsent, bool, error) {
	data, err := c.db.Get([]byte(key), nil)
	if err == ldberrors.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.NewLedgerUnavailableError("embedded ledger read failed", err)
	}

	var entry storedConsent
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, types.NewLedgerRejectedError("corrupt consent entry", err)
	}
	return &entry, true, nil
}

func (c *EmbeddedClient) getViewCountLocked(handleHex string) (uint64, error) {
	data, err := c.db.Get([]byte(viewsKeyPrefix+handleHex), nil)
	if err == ldberrors.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, types.NewLedgerUnavailableError("embedded ledger read failed", err)
	}

	count, perr := strconv.ParseUint(string(data), 10, 64)
	if perr != nil {
		return 0, types.NewLedgerRejectedError("corrupt view counter", perr)
	}
	return count, nil
}

func (c *EmbeddedClient) getStatsLocked() (*types.LedgerStats, error) {
	stats := &types.LedgerStats{}
	data, err := c.db.Get([]byte(statsKey), nil)
	if err == ldberrors.ErrNotFound {
		return stats, nil
	}
	if err != nil {
		return nil, types.NewLedgerUnavailableError("embedded ledger read failed", err)
	}
	if err := json.Unmarshal(data, stats); err != nil {
		return nil, types.NewLedgerRejectedError("corrupt stats entry", err)
	}
	return stats, nil
}

func (c *EmbeddedClient) bumpStatLocked(mutate func(*types.LedgerStats)) error {
	stats, err := c.getStatsLocked()
	if err != nil {
		return err
	}
	mutate(stats)
	return c.putJSONLocked(statsKey, stats)
}

func (c *EmbeddedClient) putJSONLocked(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return types.NewLedgerRejectedError("failed to encode ledger entry", err)
	}
	if err := c.db.Put([]byte(key), data, nil); err != nil {
		return types.NewLedgerUnavailableError("embedded ledger write failed", err)
	}
	return nil
}
