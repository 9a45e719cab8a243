package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a referenced entity does not exist. Callers
// surface it as a not-found condition fatal only to that operation.
var ErrNotFound = errors.New("not found")

// Store is the persistence surface consumed by the pipeline, the campaign
// runner, and the HTTP API. Each method is a single transactional operation;
// the pipeline sequences them so that incidents are committed before a block
// verdict is returned.
type Store interface {
	// Tenants
	CreateTenant(ctx context.Context, t *Tenant) error
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	TenantByAPIKey(ctx context.Context, apiKey string) (*Tenant, error)

	// Agents
	CreateAgent(ctx context.Context, a *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	FirstAgentForTenant(ctx context.Context, tenantID string) (*Agent, error)
	TouchAgent(ctx context.Context, id string) error

	// Policies
	CreatePolicy(ctx context.Context, p *Policy) error
	ActivePolicy(ctx context.Context, tenantID string) (*Policy, error)

	// Messages
	CreateMessage(ctx context.Context, m *Message) error
	SetMessageDecision(ctx context.Context, id, decision string) error

	// Tool events
	AppendToolEvent(ctx context.Context, e *ToolEvent) error

	// Incidents
	CreateIncident(ctx context.Context, i *Incident) error
	GetIncident(ctx context.Context, id string) (*Incident, error)
	ResolveIncident(ctx context.Context, id string) error
	IncidentsByCampaign(ctx context.Context, campaignID string) ([]*Incident, error)

	// Campaigns
	CreateCampaign(ctx context.Context, c *Campaign) error
	GetCampaign(ctx context.Context, id string) (*Campaign, error)
	FinishCampaign(ctx context.Context, id, status string) error
}
