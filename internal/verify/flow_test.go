package verify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medaid/consent-trail/internal/consent"
	"github.com/medaid/consent-trail/internal/ledger"
	"github.com/medaid/consent-trail/internal/records"
	"github.com/medaid/consent-trail/pkg/hashing"
	"github.com/medaid/consent-trail/pkg/logger"
	"github.com/medaid/consent-trail/pkg/types"
)

// fixture wires all three tiers the way the service binary does:
// memory stores, one shared embedded ledger, one hash gateway
type fixture struct {
	consents *consent.Manager
	records  *records.Service
	verify   *Service
	ledger   *ledger.EmbeddedClient
}

func setupFlow(t *testing.T) *fixture {
	t.Helper()
	log := logger.New("debug")
	client, err := ledger.NewEmbeddedClient(t.TempDir(), log)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	gateway := hashing.NewGateway()
	eventStore := records.NewMemoryStore()

	return &fixture{
		consents: consent.NewManager(consent.NewMemoryStore(), client, nil, gateway, log),
		records:  records.NewService(eventStore, client, nil, gateway, log),
		verify:   NewService(client, eventStore, gateway, log),
		ledger:   client,
	}
}

func TestFlow_GrantRevokeVerify(t *testing.T) {
	f := setupFlow(t)
	ctx := context.Background()

	granted, err := f.consents.Grant(ctx, &types.GrantRequest{
		PatientID: "p1", DoctorID: "d1", Scope: "lab-results", Purpose: "consultation",
	})
	require.NoError(t, err)
	require.Equal(t, types.NotarizationSuccess, granted.Notarization.Status)

	// Both tiers answer valid
	internal, err := f.consents.IsValid(ctx, granted.Grant.ConsentID)
	require.NoError(t, err)
	assert.True(t, internal)

	proof, err := f.verify.IsConsentValid(ctx, granted.Grant.ConsentID)
	require.NoError(t, err)
	assert.True(t, proof.Valid)
	assert.False(t, proof.Unavailable)

	// After revocation both tiers answer invalid
	_, err = f.consents.Revoke(ctx, granted.Grant.ConsentID, "")
	require.NoError(t, err)

	internal, err = f.consents.IsValid(ctx, granted.Grant.ConsentID)
	require.NoError(t, err)
	assert.False(t, internal)

	proof, err = f.verify.IsConsentValid(ctx, granted.Grant.ConsentID)
	require.NoError(t, err)
	assert.False(t, proof.Valid)
	assert.True(t, proof.Found)
	assert.False(t, proof.Unavailable)
}

func TestFlow_UploadViewsAndProof(t *testing.T) {
	f := setupFlow(t)
	ctx := context.Background()

	_, err := f.records.LogUpload(ctx, "rec-1", types.RoleCommunityHealthWorker, "w1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.records.LogView(ctx, "d1", "rec-1", "")
		require.NoError(t, err)
	}

	proof, err := f.verify.GetRecordProof(ctx, "rec-1")
	require.NoError(t, err)
	assert.True(t, proof.Found)
	assert.Equal(t, "community_health_worker", proof.Entry.UploaderRole)
	assert.Equal(t, uint64(3), proof.ViewCount)

	count, notarized, err := f.verify.GetViewCount(ctx, "rec-1")
	require.NoError(t, err)
	assert.True(t, notarized)
	assert.Equal(t, uint64(3), count)

	// The default reason was recorded internally
	history, err := f.records.GetHistory(ctx, "rec-1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, types.DefaultAccessReason, history[1].AccessReason)
}

func TestFlow_RawIdentifiersNeverReachLedger(t *testing.T) {
	f := setupFlow(t)
	ctx := context.Background()
	gateway := hashing.NewGateway()

	granted, err := f.consents.Grant(ctx, &types.GrantRequest{
		PatientID: "patient-secret-42", DoctorID: "doctor-secret-7",
		Scope: "lab-results", Purpose: "consultation",
	})
	require.NoError(t, err)

	entry, found, err := f.ledger.GetConsent(ctx, gateway.Hash(granted.Grant.ConsentID))
	require.NoError(t, err)
	require.True(t, found)

	// Only deterministic handles are on the ledger
	assert.Equal(t, gateway.Hash("patient-secret-42").Hex(), entry.PatientHandle)
	assert.Equal(t, gateway.Hash("doctor-secret-7").Hex(), entry.DoctorHandle)
	assert.NotContains(t, entry.PatientHandle, "patient-secret-42")
	assert.NotContains(t, entry.DoctorHandle, "doctor-secret-7")
}

func TestFlow_StatsAccumulate(t *testing.T) {
	f := setupFlow(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.consents.Grant(ctx, &types.GrantRequest{
			PatientID: "p1", DoctorID: "d1", Scope: "lab-results", Purpose: "consultation",
		})
		require.NoError(t, err)
	}
	_, err := f.records.LogUpload(ctx, "rec-1", types.RoleDoctor, "d1")
	require.NoError(t, err)
	_, err = f.records.LogView(ctx, "d1", "rec-1", "consultation")
	require.NoError(t, err)

	result, err := f.verify.GetAggregateStats(ctx)
	require.NoError(t, err)
	require.False(t, result.Unavailable)
	assert.Equal(t, uint64(2), result.Stats.TotalConsents)
	assert.Equal(t, uint64(1), result.Stats.TotalRecords)
	assert.Equal(t, uint64(1), result.Stats.TotalViews)
}
