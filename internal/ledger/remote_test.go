package ledger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medaid/consent-trail/pkg/config"
	"github.com/medaid/consent-trail/pkg/hashing"
	"github.com/medaid/consent-trail/pkg/interfaces"
	"github.com/medaid/consent-trail/pkg/logger"
	"github.com/medaid/consent-trail/pkg/types"
)

func newRemote(t *testing.T, endpoint string) *RemoteClient {
	t.Helper()

	client := NewRemoteClient(&config.LedgerConfig{
		Mode:            config.LedgerModeRemote,
		Endpoint:        endpoint,
		SubmitTimeout:   2,
		ReadTimeout:     2,
		BreakerMaxFails: 3,
		BreakerCooldown: 1,
	}, logger.New("error"))
	t.Cleanup(func() { client.Close() })

	return client
}

func TestRemote_SubmitConsent(t *testing.T) {
	gateway := hashing.NewGateway()
	var received submitRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/entries", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(submitResponse{
			TxRef:       "tx-abc",
			ChainHeight: 7,
			Timestamp:   time.Now().UTC(),
		})
	}))
	defer server.Close()

	client := newRemote(t, server.URL)
	proof, err := client.SubmitConsent(context.Background(), &interfaces.ConsentSubmission{
		ConsentHandle: gateway.Hash("consent-1"),
		PatientHandle: gateway.Hash("p1"),
		DoctorHandle:  gateway.Hash("d1"),
		RecordHandle:  hashing.ZeroHandle,
	})

	require.NoError(t, err)
	assert.Equal(t, "tx-abc", proof.TxRef)
	assert.Equal(t, uint64(7), proof.ChainHeight)

	// Only handles cross the wire, never raw identifiers
	assert.Equal(t, types.EventConsentGrant, received.Kind)
	assert.Equal(t, gateway.Hash("consent-1").Hex(), received.ConsentHandle)
	assert.Equal(t, gateway.Hash("p1").Hex(), received.PatientHandle)
	assert.NotContains(t, received.PatientHandle, "p1")
}

func TestRemote_SubmitView(t *testing.T) {
	gateway := hashing.NewGateway()
	var rawBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		rawBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(submitResponse{
			TxRef:     "tx-view",
			Timestamp: time.Now().UTC(),
		})
	}))
	defer server.Close()

	client := newRemote(t, server.URL)
	proof, err := client.SubmitView(context.Background(), &interfaces.ViewSubmission{
		ViewerHandle: gateway.Hash("d1"),
		RecordHandle: gateway.Hash("rec-1"),
	})

	require.NoError(t, err)
	assert.Equal(t, "tx-view", proof.TxRef)

	// The view payload is the event kind plus two handles. No raw
	// identifiers and no free-text access reason ever cross the wire.
	var received map[string]string
	require.NoError(t, json.Unmarshal(rawBody, &received))
	assert.Equal(t, map[string]string{
		"kind":          string(types.EventRecordView),
		"viewer_handle": gateway.Hash("d1").Hex(),
		"record_handle": gateway.Hash("rec-1").Hex(),
	}, received)
	assert.NotContains(t, string(rawBody), "access_reason")
	assert.NotContains(t, string(rawBody), "rec-1")
}

func TestRemote_SubmitRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := newRemote(t, server.URL)
	_, err := client.SubmitRevocation(context.Background(), hashing.NewGateway().Hash("consent-1"))

	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeLedgerRejected))
}

func TestRemote_SubmitUnreachable(t *testing.T) {
	// Endpoint that never existed
	client := newRemote(t, "http://127.0.0.1:1")

	_, err := client.SubmitRevocation(context.Background(), hashing.NewGateway().Hash("consent-1"))
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeLedgerUnavailable))
}

func TestRemote_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client := newRemote(t, "http://127.0.0.1:1")
	gateway := hashing.NewGateway()

	for i := 0; i < 3; i++ {
		_, err := client.SubmitRevocation(context.Background(), gateway.Hash("consent-1"))
		require.Error(t, err)
	}

	assert.False(t, client.IsAvailable())

	// While open, submissions fail fast as unavailable
	_, err := client.SubmitRevocation(context.Background(), gateway.Hash("consent-1"))
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeLedgerUnavailable))
}

func TestRemote_GetConsentNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newRemote(t, server.URL)
	_, found, err := client.GetConsent(context.Background(), hashing.NewGateway().Hash("missing"))

	require.NoError(t, err)
	assert.False(t, found)
}

func TestRemote_ValidityAndCounts(t *testing.T) {
	gateway := hashing.NewGateway()
	handle := gateway.Hash("r1")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/consents/" + handle.Hex() + "/valid":
			json.NewEncoder(w).Encode(map[string]bool{"valid": true})
		case "/api/v1/records/" + handle.Hex() + "/views":
			json.NewEncoder(w).Encode(map[string]uint64{"count": 3})
		case "/api/v1/stats":
			json.NewEncoder(w).Encode(types.LedgerStats{TotalConsents: 2, TotalRecords: 1, TotalViews: 3})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newRemote(t, server.URL)
	ctx := context.Background()

	valid, err := client.IsConsentValid(ctx, handle)
	require.NoError(t, err)
	assert.True(t, valid)

	count, err := client.GetViewCount(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	stats, err := client.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.TotalConsents)
}

func TestRemote_MissingTxRefRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(submitResponse{})
	}))
	defer server.Close()

	client := newRemote(t, server.URL)
	_, err := client.SubmitRevocation(context.Background(), hashing.NewGateway().Hash("consent-1"))

	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeLedgerRejected))
}
