package consent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medaid/consent-trail/internal/ledger"
	"github.com/medaid/consent-trail/pkg/hashing"
	"github.com/medaid/consent-trail/pkg/interfaces"
	"github.com/medaid/consent-trail/pkg/logger"
	"github.com/medaid/consent-trail/pkg/types"
)

// downLedger reports itself available but fails every submission,
// which is how a reachable-then-crashed ledger endpoint behaves
type downLedger struct {
	*ledger.DisabledClient
}

func (d *downLedger) IsAvailable() bool { return true }

func (d *downLedger) SubmitConsent(ctx context.Context, sub *interfaces.ConsentSubmission) (*types.LedgerProof, error) {
	return nil, types.NewLedgerUnavailableError("ledger endpoint unreachable", nil)
}

func (d *downLedger) SubmitRevocation(ctx context.Context, consentHandle hashing.Handle) (*types.LedgerProof, error) {
	return nil, types.NewLedgerUnavailableError("ledger endpoint unreachable", nil)
}

func setupManager(t *testing.T, client interfaces.LedgerClient) (*Manager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	mgr := NewManager(store, client, nil, hashing.NewGateway(), logger.New("debug"))
	return mgr, store
}

func setupEmbeddedManager(t *testing.T) (*Manager, *MemoryStore, *ledger.EmbeddedClient) {
	t.Helper()
	client, err := ledger.NewEmbeddedClient(t.TempDir(), logger.New("debug"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	mgr, store := setupManager(t, client)
	return mgr, store, client
}

func TestManager_GrantAndIsValid(t *testing.T) {
	mgr, _, _ := setupEmbeddedManager(t)
	ctx := context.Background()

	result, err := mgr.Grant(ctx, &types.GrantRequest{
		PatientID: "p1",
		DoctorID:  "d1",
		Scope:     "lab-results",
		Purpose:   "consultation",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Grant)

	assert.True(t, strings.HasPrefix(result.Grant.ConsentID, "consent_p1_d1_"))
	assert.Equal(t, types.NotarizationSuccess, result.Notarization.Status)
	require.NotNil(t, result.Grant.LedgerRef)
	assert.NotEmpty(t, result.Grant.LedgerRef.TxRef)

	valid, err := mgr.IsValid(ctx, result.Grant.ConsentID)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestManager_GrantValidation(t *testing.T) {
	mgr, _ := setupManager(t, ledger.NewDisabledClient())
	ctx := context.Background()

	_, err := mgr.Grant(ctx, &types.GrantRequest{PatientID: "p1"})
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeInvalidArgument))

	ae, ok := err.(*types.AuditError)
	require.True(t, ok)
	assert.Contains(t, ae.Details, "doctor_id")
	assert.Contains(t, ae.Details, "scope")
	assert.Contains(t, ae.Details, "purpose")
}

func TestManager_ConsentIDsNeverCollide(t *testing.T) {
	mgr, _ := setupManager(t, ledger.NewDisabledClient())
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		result, err := mgr.Grant(ctx, &types.GrantRequest{
			PatientID: "p1",
			DoctorID:  "d1",
			Scope:     "lab-results",
			Purpose:   "consultation",
		})
		require.NoError(t, err)
		assert.False(t, seen[result.Grant.ConsentID])
		seen[result.Grant.ConsentID] = true
	}
}

func TestManager_Revoke(t *testing.T) {
	mgr, _, client := setupEmbeddedManager(t)
	ctx := context.Background()

	granted, err := mgr.Grant(ctx, &types.GrantRequest{
		PatientID: "p1", DoctorID: "d1", Scope: "lab-results", Purpose: "consultation",
	})
	require.NoError(t, err)

	result, err := mgr.Revoke(ctx, granted.Grant.ConsentID, "")
	require.NoError(t, err)
	assert.Equal(t, types.NotarizationSuccess, result.Notarization.Status)

	valid, err := mgr.IsValid(ctx, granted.Grant.ConsentID)
	require.NoError(t, err)
	assert.False(t, valid)

	// The default reason was applied
	grant, err := mgr.GetGrant(ctx, granted.Grant.ConsentID)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultRevocationReason, grant.RevocationReason)

	// The ledger mirror agrees, keyed by the same consent handle
	handle := hashing.NewGateway().Hash(granted.Grant.ConsentID)
	ledgerValid, err := client.IsConsentValid(ctx, handle)
	require.NoError(t, err)
	assert.False(t, ledgerValid)
}

func TestManager_RevokeTerminal(t *testing.T) {
	mgr, _, _ := setupEmbeddedManager(t)
	ctx := context.Background()

	granted, err := mgr.Grant(ctx, &types.GrantRequest{
		PatientID: "p1", DoctorID: "d1", Scope: "lab-results", Purpose: "consultation",
	})
	require.NoError(t, err)

	first, err := mgr.Revoke(ctx, granted.Grant.ConsentID, "patient requested")
	require.NoError(t, err)

	_, err = mgr.Revoke(ctx, granted.Grant.ConsentID, "again")
	assert.True(t, types.IsAlreadyRevoked(err))

	// The original revocation timestamp and reason survive
	grant, err := mgr.GetGrant(ctx, granted.Grant.ConsentID)
	require.NoError(t, err)
	require.NotNil(t, grant.RevokedAt)
	assert.Equal(t, first.RevokedAt, *grant.RevokedAt)
	assert.Equal(t, "patient requested", grant.RevocationReason)
}

func TestManager_RevokeUnknown(t *testing.T) {
	mgr, store := setupManager(t, ledger.NewDisabledClient())
	ctx := context.Background()

	_, err := mgr.Revoke(ctx, "ghost", "patient requested")
	assert.True(t, types.IsNotFound(err))

	// Nothing was created as a side effect
	_, err = store.Get(ctx, "ghost")
	assert.True(t, types.IsNotFound(err))
}

func TestManager_LedgerDisabled(t *testing.T) {
	mgr, _ := setupManager(t, ledger.NewDisabledClient())
	ctx := context.Background()

	result, err := mgr.Grant(ctx, &types.GrantRequest{
		PatientID: "p1", DoctorID: "d1", Scope: "lab-results", Purpose: "consultation",
	})
	require.NoError(t, err)
	assert.Equal(t, types.NotarizationSkipped, result.Notarization.Status)
	assert.Nil(t, result.Grant.LedgerRef)

	// Lifecycle behaves identically with mirroring off
	valid, err := mgr.IsValid(ctx, result.Grant.ConsentID)
	require.NoError(t, err)
	assert.True(t, valid)

	revoked, err := mgr.Revoke(ctx, result.Grant.ConsentID, "")
	require.NoError(t, err)
	assert.Equal(t, types.NotarizationSkipped, revoked.Notarization.Status)

	valid, err = mgr.IsValid(ctx, result.Grant.ConsentID)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestManager_LedgerDown(t *testing.T) {
	mgr, store := setupManager(t, &downLedger{ledger.NewDisabledClient()})
	ctx := context.Background()

	// The grant still succeeds, the mirror failure shows up only in
	// the notarization outcome
	result, err := mgr.Grant(ctx, &types.GrantRequest{
		PatientID: "p1", DoctorID: "d1", Scope: "lab-results", Purpose: "consultation",
	})
	require.NoError(t, err)
	assert.Equal(t, types.NotarizationFailed, result.Notarization.Status)
	assert.Equal(t, types.ErrCodeLedgerUnavailable, result.Notarization.Reason)

	grant, err := store.Get(ctx, result.Grant.ConsentID)
	require.NoError(t, err)
	assert.False(t, grant.Revoked)

	revoked, err := mgr.Revoke(ctx, result.Grant.ConsentID, "")
	require.NoError(t, err)
	assert.Equal(t, types.NotarizationFailed, revoked.Notarization.Status)

	valid, err := mgr.IsValid(ctx, result.Grant.ConsentID)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestManager_IsValidUnknown(t *testing.T) {
	mgr, _ := setupManager(t, ledger.NewDisabledClient())

	valid, err := mgr.IsValid(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestManager_FindActive(t *testing.T) {
	mgr, _ := setupManager(t, ledger.NewDisabledClient())
	ctx := context.Background()

	first, err := mgr.Grant(ctx, &types.GrantRequest{
		PatientID: "p1", DoctorID: "d1", Scope: "lab-results", Purpose: "consultation",
	})
	require.NoError(t, err)
	second, err := mgr.Grant(ctx, &types.GrantRequest{
		PatientID: "p1", DoctorID: "d2", Scope: "lab-results", Purpose: "consultation",
	})
	require.NoError(t, err)

	_, err = mgr.Revoke(ctx, first.Grant.ConsentID, "")
	require.NoError(t, err)

	active, err := mgr.FindActive(ctx, "p1", "lab-results")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.Grant.ConsentID, active[0].ConsentID)
}
