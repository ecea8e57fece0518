package verify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medaid/consent-trail/internal/ledger"
	"github.com/medaid/consent-trail/internal/records"
	"github.com/medaid/consent-trail/pkg/hashing"
	"github.com/medaid/consent-trail/pkg/interfaces"
	"github.com/medaid/consent-trail/pkg/logger"
	"github.com/medaid/consent-trail/pkg/types"
)

// brokenLedger reports itself available but fails every read, like an
// endpoint that went dark mid-session
type brokenLedger struct {
	*ledger.DisabledClient
}

func (b *brokenLedger) IsAvailable() bool { return true }

func setupEmbedded(t *testing.T) (*Service, *ledger.EmbeddedClient, *hashing.Gateway) {
	t.Helper()
	client, err := ledger.NewEmbeddedClient(t.TempDir(), logger.New("debug"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	gateway := hashing.NewGateway()
	svc := NewService(client, nil, gateway, logger.New("debug"))
	return svc, client, gateway
}

func notarizeConsent(t *testing.T, client *ledger.EmbeddedClient, gateway *hashing.Gateway, consentID string) hashing.Handle {
	t.Helper()
	handle := gateway.Hash(consentID)
	_, err := client.SubmitConsent(context.Background(), &interfaces.ConsentSubmission{
		ConsentHandle: handle,
		PatientHandle: gateway.Hash("p1"),
		DoctorHandle:  gateway.Hash("d1"),
	})
	require.NoError(t, err)
	return handle
}

func TestService_IsConsentValid(t *testing.T) {
	svc, client, gateway := setupEmbedded(t)
	ctx := context.Background()

	handle := notarizeConsent(t, client, gateway, "consent-1")

	result, err := svc.IsConsentValid(ctx, "consent-1")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.True(t, result.Found)
	assert.False(t, result.Unavailable)

	_, err = client.SubmitRevocation(ctx, handle)
	require.NoError(t, err)

	result, err = svc.IsConsentValid(ctx, "consent-1")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, result.Found)
	assert.False(t, result.Unavailable)
}

func TestService_IsConsentValid_UnknownConsent(t *testing.T) {
	// A consent the ledger never saw answers not-found with the
	// ledger healthy. Reporting it found-but-invalid would make it
	// indistinguishable from a revocation.
	svc, _, _ := setupEmbedded(t)

	result, err := svc.IsConsentValid(context.Background(), "consent-nobody-granted")
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.False(t, result.Valid)
	assert.False(t, result.Unavailable)
}

func TestService_IsConsentValid_Unavailable(t *testing.T) {
	// A dead ledger answers "unavailable", which is not the same
	// answer as "revoked"
	svc := NewService(ledger.NewDisabledClient(), nil, hashing.NewGateway(), logger.New("debug"))

	result, err := svc.IsConsentValid(context.Background(), "consent-1")
	require.NoError(t, err)
	assert.True(t, result.Unavailable)
	assert.False(t, result.Valid)
	assert.False(t, result.Found)
}

func TestService_IsConsentValid_BrokenEndpoint(t *testing.T) {
	svc := NewService(&brokenLedger{ledger.NewDisabledClient()}, nil, hashing.NewGateway(), logger.New("debug"))

	result, err := svc.IsConsentValid(context.Background(), "consent-1")
	require.NoError(t, err)
	assert.True(t, result.Unavailable)
}

func TestService_GetConsentProof(t *testing.T) {
	svc, client, gateway := setupEmbedded(t)
	ctx := context.Background()

	handle := notarizeConsent(t, client, gateway, "consent-1")

	result, err := svc.GetConsentProof(ctx, "consent-1")
	require.NoError(t, err)
	assert.True(t, result.Found)
	require.NotNil(t, result.Entry)
	assert.Equal(t, handle.Hex(), result.Entry.ConsentHandle)

	// Unknown consent is a clean not-found, not an error
	result, err = svc.GetConsentProof(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.False(t, result.Unavailable)
	assert.Nil(t, result.Entry)
}

func TestService_GetRecordProof(t *testing.T) {
	svc, client, gateway := setupEmbedded(t)
	ctx := context.Background()

	recordHandle := gateway.Hash("rec-1")
	_, err := client.SubmitRecord(ctx, &interfaces.RecordSubmission{
		RecordHandle:   recordHandle,
		UploaderRole:   types.RoleDoctor,
		UploaderHandle: gateway.Hash("d1"),
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = client.SubmitView(ctx, &interfaces.ViewSubmission{
			ViewerHandle: gateway.Hash("d1"),
			RecordHandle: recordHandle,
		})
		require.NoError(t, err)
	}

	result, err := svc.GetRecordProof(ctx, "rec-1")
	require.NoError(t, err)
	assert.True(t, result.Found)
	require.NotNil(t, result.Entry)
	assert.Equal(t, "doctor", result.Entry.UploaderRole)
	assert.Equal(t, uint64(2), result.ViewCount)
}

func TestService_GetViewCount_Fallback(t *testing.T) {
	// With the ledger down, the count comes from the internal event
	// log and is reported as non-notarized
	events := records.NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, events.Append(ctx, &types.RecordEvent{
			EventID:  string(rune('a' + i)),
			RecordID: "rec-1",
			Kind:     types.RecordEventView,
			ActorID:  "d1",
		}))
	}

	svc := NewService(ledger.NewDisabledClient(), events, hashing.NewGateway(), logger.New("debug"))

	count, notarized, err := svc.GetViewCount(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
	assert.False(t, notarized)
}

func TestService_GetViewCount_Notarized(t *testing.T) {
	svc, client, gateway := setupEmbedded(t)
	ctx := context.Background()

	recordHandle := gateway.Hash("rec-1")
	_, err := client.SubmitView(ctx, &interfaces.ViewSubmission{
		ViewerHandle: gateway.Hash("d1"),
		RecordHandle: recordHandle,
	})
	require.NoError(t, err)

	count, notarized, err := svc.GetViewCount(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
	assert.True(t, notarized)
}

func TestService_GetAggregateStats(t *testing.T) {
	svc, client, gateway := setupEmbedded(t)
	ctx := context.Background()

	notarizeConsent(t, client, gateway, "consent-1")
	_, err := client.SubmitRecord(ctx, &interfaces.RecordSubmission{
		RecordHandle:   gateway.Hash("rec-1"),
		UploaderRole:   types.RoleDoctor,
		UploaderHandle: gateway.Hash("d1"),
	})
	require.NoError(t, err)

	result, err := svc.GetAggregateStats(ctx)
	require.NoError(t, err)
	assert.False(t, result.Unavailable)
	require.NotNil(t, result.Stats)
	assert.Equal(t, uint64(1), result.Stats.TotalConsents)
	assert.Equal(t, uint64(1), result.Stats.TotalRecords)
	assert.Equal(t, uint64(0), result.Stats.TotalViews)
}

func TestService_GetAggregateStats_Unavailable(t *testing.T) {
	svc := NewService(ledger.NewDisabledClient(), nil, hashing.NewGateway(), logger.New("debug"))

	result, err := svc.GetAggregateStats(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Unavailable)
	assert.Nil(t, result.Stats)
}
