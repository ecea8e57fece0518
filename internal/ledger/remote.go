package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/medaid/consent-trail/pkg/config"
	"github.com/medaid/consent-trail/pkg/hashing"
	"github.com/medaid/consent-trail/pkg/interfaces"
	"github.com/medaid/consent-trail/pkg/logger"
	"github.com/medaid/consent-trail/pkg/monitoring"
	"github.com/medaid/consent-trail/pkg/types"
)

// RemoteClient talks to an external notarization endpoint over HTTP.
// The endpoint only ever receives fixed-width hash handles and the
// enumerated event-kind tag; raw identifiers, scope and purpose stay
// internal.
//
// Submissions run through a circuit breaker so a dead endpoint fails
// fast instead of eating the submit timeout on every request.
type RemoteClient struct {
	endpoint string
	apiKey   string
	http     *http.Client

	submitTimeout time.Duration
	readTimeout   time.Duration

	breaker *gobreaker.CircuitBreaker[*types.LedgerProof]
	logger  *logger.Logger
}

// submitRequest is the wire shape of a ledger write
type submitRequest struct {
	Kind           types.EventKind `json:"kind"`
	ConsentHandle  string          `json:"consent_handle,omitempty"`
	PatientHandle  string          `json:"patient_handle,omitempty"`
	DoctorHandle   string          `json:"doctor_handle,omitempty"`
	RecordHandle   string          `json:"record_handle,omitempty"`
	ViewerHandle   string          `json:"viewer_handle,omitempty"`
	UploaderHandle string          `json:"uploader_handle,omitempty"`
	UploaderRole   string          `json:"uploader_role,omitempty"`
}

// submitResponse is the wire shape of a submission acknowledgment
type submitResponse struct {
	TxRef       string    `json:"tx_ref"`
	ChainHeight uint64    `json:"chain_height"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRemoteClient creates a ledger client for an HTTP notarization endpoint
func NewRemoteClient(cfg *config.LedgerConfig, log *logger.Logger) *RemoteClient {
	c := &RemoteClient{
		endpoint:      cfg.Endpoint,
		apiKey:        cfg.APIKey,
		http:          &http.Client{},
		submitTimeout: time.Duration(cfg.SubmitTimeout) * time.Second,
		readTimeout:   time.Duration(cfg.ReadTimeout) * time.Second,
		logger:        log,
	}

	maxFails := cfg.BreakerMaxFails
	if maxFails == 0 {
		maxFails = 5
	}
	cooldown := time.Duration(cfg.BreakerCooldown) * time.Second
	if cooldown == 0 {
		cooldown = 30 * time.Second
	}

	c.breaker = gobreaker.NewCircuitBreaker[*types.LedgerProof](gobreaker.Settings{
		Name:        "ledger-submit",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Ledger circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			// Rejections are the ledger answering; only availability
			// failures count against the breaker.
			return err == nil || types.HasCode(err, types.ErrCodeLedgerRejected)
		},
	})

	return c
}

// IsAvailable reports whether submissions currently stand a chance:
// false while the breaker is open
func (c *RemoteClient) IsAvailable() bool {
	return c.breaker.State() != gobreaker.StateOpen
}

// SubmitConsent notarizes a consent grant
func (c *RemoteClient) SubmitConsent(ctx context.Context, sub *interfaces.ConsentSubmission) (*types.LedgerProof, error) {
	return c.submit(ctx, &submitRequest{
		Kind:          types.EventConsentGrant,
		ConsentHandle: sub.ConsentHandle.Hex(),
		PatientHandle: sub.PatientHandle.Hex(),
		DoctorHandle:  sub.DoctorHandle.Hex(),
		RecordHandle:  sub.RecordHandle.Hex(),
	})
}

// SubmitRevocation marks the ledger-side consent entry revoked
func (c *RemoteClient) SubmitRevocation(ctx context.Context, consentHandle hashing.Handle) (*types.LedgerProof, error) {
	return c.submit(ctx, &submitRequest{
		Kind:          types.EventConsentRevoke,
		ConsentHandle: consentHandle.Hex(),
	})
}

// SubmitRecord notarizes a record upload
func (c *RemoteClient) SubmitRecord(ctx context.Context, sub *interfaces.RecordSubmission) (*types.LedgerProof, error) {
	return c.submit(ctx, &submitRequest{
		Kind:           types.EventRecordUpload,
		RecordHandle:   sub.RecordHandle.Hex(),
		UploaderRole:   string(sub.UploaderRole),
		UploaderHandle: sub.UploaderHandle.Hex(),
	})
}

// SubmitView notarizes a record view
func (c *RemoteClient) SubmitView(ctx context.Context, sub *interfaces.ViewSubmission) (*types.LedgerProof, error) {
	return c.submit(ctx, &submitRequest{
		Kind:         types.EventRecordView,
		ViewerHandle: sub.ViewerHandle.Hex(),
		RecordHandle: sub.RecordHandle.Hex(),
	})
}

// GetConsent reads a notarized consent entry by handle
func (c *RemoteClient) GetConsent(ctx context.Context, consentHandle hashing.Handle) (*types.ConsentEntry, bool, error) {
	var entry types.ConsentEntry
	found, err := c.get(ctx, fmt.Sprintf("/api/v1/consents/%s", consentHandle.Hex()), &entry)
	if err != nil || !found {
		return nil, false, err
	}
	return &entry, true, nil
}

// IsConsentValid queries the ledger's validity predicate
func (c *RemoteClient) IsConsentValid(ctx context.Context, consentHandle hashing.Handle) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	found, err := c.get(ctx, fmt.Sprintf("/api/v1/consents/%s/valid", consentHandle.Hex()), &resp)
	if err != nil {
		return false, err
	}
	return found && resp.Valid, nil
}

// GetRecord reads a notarized record entry by handle
func (c *RemoteClient) GetRecord(ctx context.Context, recordHandle hashing.Handle) (*types.RecordEntry, bool, error) {
	var entry types.RecordEntry
	found, err := c.get(ctx, fmt.Sprintf("/api/v1/records/%s", recordHandle.Hex()), &entry)
	if err != nil || !found {
		return nil, false, err
	}
	return &entry, true, nil
}

// GetViewCount returns the notarized view count for a record handle
func (c *RemoteClient) GetViewCount(ctx context.Context, recordHandle hashing.Handle) (uint64, error) {
	var resp struct {
		Count uint64 `json:"count"`
	}
	if _, err := c.get(ctx, fmt.Sprintf("/api/v1/records/%s/views", recordHandle.Hex()), &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// GetStats returns the ledger's aggregate counters
func (c *RemoteClient) GetStats(ctx context.Context) (*types.LedgerStats, error) {
	var stats types.LedgerStats
	found, err := c.get(ctx, "/api/v1/stats", &stats)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, types.NewLedgerRejectedError("ledger stats endpoint missing", nil)
	}
	return &stats, nil
}

// Close releases the client's resources
func (c *RemoteClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// submit posts a write request through the circuit breaker with the
// configured submission timeout
func (c *RemoteClient) submit(ctx context.Context, req *submitRequest) (*types.LedgerProof, error) {
	start := time.Now()
	proof, err := c.breaker.Execute(func() (*types.LedgerProof, error) {
		return c.doSubmit(ctx, req)
	})
	monitoring.ObserveLedgerSubmit(string(req.Kind), time.Since(start))
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, types.NewLedgerUnavailableError("ledger circuit open", err)
		}
		return nil, err
	}
	return proof, nil
}

func (c *RemoteClient) doSubmit(ctx context.Context, req *submitRequest) (*types.LedgerProof, error) {
	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewLedgerRejectedError("failed to encode submission", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/v1/entries", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewLedgerRejectedError("failed to build submission request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, types.NewLedgerTimeoutError("ledger submission timed out", err)
		}
		return nil, types.NewLedgerUnavailableError("ledger endpoint unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, types.NewLedgerRejectedError("ledger rejected credentials", nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, types.NewLedgerRejectedError(fmt.Sprintf("ledger rejected submission: %s", resp.Status), nil)
	default:
		return nil, types.NewLedgerUnavailableError(fmt.Sprintf("ledger submission failed: %s", resp.Status), nil)
	}

	var ack submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, types.NewLedgerRejectedError("failed to parse submission acknowledgment", err)
	}
	if ack.TxRef == "" {
		return nil, types.NewLedgerRejectedError("submission acknowledgment missing tx reference", nil)
	}
	if ack.Timestamp.IsZero() {
		ack.Timestamp = time.Now().UTC()
	}

	c.logger.LedgerTransaction(string(req.Kind), ack.TxRef, true, map[string]interface{}{
		"chain_height": ack.ChainHeight,
	})

	return &types.LedgerProof{TxRef: ack.TxRef, ChainHeight: ack.ChainHeight, Timestamp: ack.Timestamp}, nil
}

// get issues a read with the configured read timeout. It returns
// found=false on 404 rather than an error: absence is an answer.
func (c *RemoteClient) get(ctx context.Context, path string, out interface{}) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return false, types.NewLedgerRejectedError("failed to build read request", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return false, types.NewLedgerTimeoutError("ledger read timed out", err)
		}
		return false, types.NewLedgerUnavailableError("ledger endpoint unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return false, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, types.NewLedgerRejectedError(fmt.Sprintf("ledger rejected read: %s", resp.Status), nil)
	default:
		return false, types.NewLedgerUnavailableError(fmt.Sprintf("ledger read failed: %s", resp.Status), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, types.NewLedgerRejectedError("failed to parse ledger response", err)
	}
	return true, nil
}
