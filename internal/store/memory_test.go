package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_TenantLookup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	tenant := &Tenant{Name: "acme", APIKey: "key-1"}
	require.NoError(t, m.CreateTenant(ctx, tenant))
	require.NotEmpty(t, tenant.ID)

	got, err := m.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Name)

	byKey, err := m.TenantByAPIKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, byKey.ID)

	_, err = m.TenantByAPIKey(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_FirstAgentForTenant(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.FirstAgentForTenant(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)

	first := &Agent{TenantID: "t1", Name: "first"}
	require.NoError(t, m.CreateAgent(ctx, first))
	require.NoError(t, m.CreateAgent(ctx, &Agent{TenantID: "t1", Name: "second"}))
	require.NoError(t, m.CreateAgent(ctx, &Agent{TenantID: "t2", Name: "other"}))

	got, err := m.FirstAgentForTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestMemory_ActivePolicyContract(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	old := &Policy{TenantID: "t1", Content: "deny: [a]", IsActive: true}
	require.NoError(t, m.CreatePolicy(ctx, old))

	newer := &Policy{TenantID: "t1", Content: "deny: [b]", IsActive: true}
	require.NoError(t, m.CreatePolicy(ctx, newer))

	active, err := m.ActivePolicy(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, active.ID, "creating an active policy deactivates the previous one")
}

func TestMemory_MessageDecision(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	msg := &Message{TenantID: "t1", AgentID: "a1", Direction: DirectionIn, Content: "hi", Decision: "allow"}
	require.NoError(t, m.CreateMessage(ctx, msg))
	require.NoError(t, m.SetMessageDecision(ctx, msg.ID, "block"))

	got, ok := m.GetMessage(msg.ID)
	require.True(t, ok)
	assert.Equal(t, "block", got.Decision)

	assert.ErrorIs(t, m.SetMessageDecision(ctx, "nope", "allow"), ErrNotFound)
}

func TestMemory_IncidentResolve(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	inc := &Incident{TenantID: "t1", AgentID: "a1", Severity: "high", Classification: ClassPolicyViolation, TranscriptRef: "x"}
	require.NoError(t, m.CreateIncident(ctx, inc))
	assert.Equal(t, IncidentOpen, inc.Status)

	require.NoError(t, m.ResolveIncident(ctx, inc.ID))
	got, err := m.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, IncidentResolved, got.Status)

	// Resolving again is idempotent.
	require.NoError(t, m.ResolveIncident(ctx, inc.ID))
}

func TestMemory_CampaignTerminalTransition(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	c := &Campaign{TenantID: "t1"}
	require.NoError(t, m.CreateCampaign(ctx, c))
	assert.Equal(t, CampaignRunning, c.Status)

	require.NoError(t, m.FinishCampaign(ctx, c.ID, CampaignCompleted))

	got, err := m.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, CampaignCompleted, got.Status)
	require.NotNil(t, got.FinishedAt)

	// A second terminal transition is rejected.
	assert.ErrorIs(t, m.FinishCampaign(ctx, c.ID, CampaignFailed), ErrNotFound)
}
