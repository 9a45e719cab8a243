package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewPostgres connects to databaseURL and verifies the connection.
func NewPostgres(ctx context.Context, databaseURL string, log *logrus.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool, log: log}, nil
}

// Close releases the underlying pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Migrate creates the schema if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			api_key TEXT UNIQUE,
			notification JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS agents (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			name TEXT NOT NULL,
			model_info TEXT NOT NULL DEFAULT '',
			target_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_seen TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS policies (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			name TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			agent_id UUID NOT NULL,
			direction TEXT NOT NULL,
			content TEXT NOT NULL,
			decision TEXT NOT NULL DEFAULT 'allow',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS tool_events (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			agent_id UUID NOT NULL,
			tool TEXT NOT NULL,
			args TEXT NOT NULL,
			allowed BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS incidents (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			agent_id UUID NOT NULL,
			campaign_id UUID,
			severity TEXT NOT NULL,
			classification TEXT NOT NULL,
			transcript_ref TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'open',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS campaigns (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			agent_id UUID,
			name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			config JSONB NOT NULL DEFAULT '{}',
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			finished_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_campaign ON incidents(campaign_id)`,
		`CREATE INDEX IF NOT EXISTS idx_policies_tenant_active ON policies(tenant_id, is_active)`,
	}

	for _, stmt := range ddl {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *Postgres) CreateTenant(ctx context.Context, t *Tenant) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	notif, _ := json.Marshal(t.Notification)

	err := p.pool.QueryRow(ctx, `
		INSERT INTO tenants (id, name, api_key, notification)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		RETURNING created_at`,
		t.ID, t.Name, t.APIKey, notif,
	).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (p *Postgres) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	return p.scanTenant(ctx, `SELECT id, name, COALESCE(api_key, ''), notification, created_at
		FROM tenants WHERE id = $1`, id)
}

func (p *Postgres) TenantByAPIKey(ctx context.Context, apiKey string) (*Tenant, error) {
	return p.scanTenant(ctx, `SELECT id, name, COALESCE(api_key, ''), notification, created_at
		FROM tenants WHERE api_key = $1`, apiKey)
}

func (p *Postgres) scanTenant(ctx context.Context, query string, arg any) (*Tenant, error) {
	t := &Tenant{}
	var notif []byte
	err := p.pool.QueryRow(ctx, query, arg).Scan(&t.ID, &t.Name, &t.APIKey, &notif, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if len(notif) > 0 {
		if err := json.Unmarshal(notif, &t.Notification); err != nil {
			p.log.WithError(err).WithField("tenant_id", t.ID).Warn("bad notification config, ignoring")
		}
	}
	return t, nil
}

func (p *Postgres) CreateAgent(ctx context.Context, a *Agent) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO agents (id, tenant_id, name, model_info, target_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		a.ID, a.TenantID, a.Name, a.ModelInfo, a.TargetURL,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (p *Postgres) GetAgent(ctx context.Context, id string) (*Agent, error) {
	return p.scanAgent(ctx, `SELECT id, tenant_id, name, model_info, target_url, created_at, COALESCE(last_seen, 'epoch')
		FROM agents WHERE id = $1`, id)
}

func (p *Postgres) FirstAgentForTenant(ctx context.Context, tenantID string) (*Agent, error) {
	return p.scanAgent(ctx, `SELECT id, tenant_id, name, model_info, target_url, created_at, COALESCE(last_seen, 'epoch')
		FROM agents WHERE tenant_id = $1 ORDER BY created_at LIMIT 1`, tenantID)
}

func (p *Postgres) scanAgent(ctx context.Context, query string, arg any) (*Agent, error) {
	a := &Agent{}
	err := p.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID, &a.TenantID, &a.Name, &a.ModelInfo, &a.TargetURL, &a.CreatedAt, &a.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func (p *Postgres) TouchAgent(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE agents SET last_seen = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreatePolicy(ctx context.Context, pol *Policy) error {
	if pol.ID == "" {
		pol.ID = uuid.NewString()
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("create policy: %w", err)
	}
	defer tx.Rollback(ctx)

	if pol.IsActive {
		if _, err := tx.Exec(ctx,
			`UPDATE policies SET is_active = false WHERE tenant_id = $1 AND is_active`,
			pol.TenantID); err != nil {
			return fmt.Errorf("deactivate policies: %w", err)
		}
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO policies (id, tenant_id, name, content, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		pol.ID, pol.TenantID, pol.Name, pol.Content, pol.IsActive,
	).Scan(&pol.CreatedAt)
	if err != nil {
		return fmt.Errorf("create policy: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) ActivePolicy(ctx context.Context, tenantID string) (*Policy, error) {
	pol := &Policy{}
	err := p.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, content, is_active, created_at
		FROM policies WHERE tenant_id = $1 AND is_active
		ORDER BY created_at DESC LIMIT 1`, tenantID,
	).Scan(&pol.ID, &pol.TenantID, &pol.Name, &pol.Content, &pol.IsActive, &pol.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active policy: %w", err)
	}
	return pol, nil
}

func (p *Postgres) CreateMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO messages (id, tenant_id, agent_id, direction, content, decision)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		m.ID, m.TenantID, m.AgentID, string(m.Direction), m.Content, m.Decision,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (p *Postgres) SetMessageDecision(ctx context.Context, id, decision string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE messages SET decision = $2 WHERE id = $1`, id, decision)
	if err != nil {
		return fmt.Errorf("set message decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AppendToolEvent(ctx context.Context, e *ToolEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO tool_events (id, tenant_id, agent_id, tool, args, allowed)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		e.ID, e.TenantID, e.AgentID, e.Tool, e.Args, e.Allowed,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append tool event: %w", err)
	}
	return nil
}

func (p *Postgres) CreateIncident(ctx context.Context, i *Incident) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Status == "" {
		i.Status = IncidentOpen
	}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO incidents (id, tenant_id, agent_id, campaign_id, severity, classification, transcript_ref, status)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, $8)
		RETURNING created_at`,
		i.ID, i.TenantID, i.AgentID, i.CampaignID, i.Severity, i.Classification, i.TranscriptRef, i.Status,
	).Scan(&i.CreatedAt)
	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

func (p *Postgres) GetIncident(ctx context.Context, id string) (*Incident, error) {
	i := &Incident{}
	err := p.pool.QueryRow(ctx, `
		SELECT id, tenant_id, agent_id, COALESCE(campaign_id::text, ''), severity, classification, transcript_ref, status, created_at
		FROM incidents WHERE id = $1`, id,
	).Scan(&i.ID, &i.TenantID, &i.AgentID, &i.CampaignID, &i.Severity, &i.Classification, &i.TranscriptRef, &i.Status, &i.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return i, nil
}

func (p *Postgres) ResolveIncident(ctx context.Context, id string) error {
	// Idempotent: resolving a resolved incident is a no-op.
	tag, err := p.pool.Exec(ctx,
		`UPDATE incidents SET status = $2 WHERE id = $1`, id, IncidentResolved)
	if err != nil {
		return fmt.Errorf("resolve incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) IncidentsByCampaign(ctx context.Context, campaignID string) ([]*Incident, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, tenant_id, agent_id, COALESCE(campaign_id::text, ''), severity, classification, transcript_ref, status, created_at
		FROM incidents WHERE campaign_id = $1 ORDER BY created_at`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("incidents by campaign: %w", err)
	}
	defer rows.Close()

	var out []*Incident
	for rows.Next() {
		i := &Incident{}
		if err := rows.Scan(&i.ID, &i.TenantID, &i.AgentID, &i.CampaignID, &i.Severity,
			&i.Classification, &i.TranscriptRef, &i.Status, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateCampaign(ctx context.Context, c *Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CampaignRunning
	}
	cfg, _ := json.Marshal(c.Config)

	err := p.pool.QueryRow(ctx, `
		INSERT INTO campaigns (id, tenant_id, agent_id, name, status, config)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6)
		RETURNING started_at`,
		c.ID, c.TenantID, c.AgentID, c.Name, c.Status, cfg,
	).Scan(&c.StartedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (p *Postgres) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	c := &Campaign{}
	var cfg []byte
	err := p.pool.QueryRow(ctx, `
		SELECT id, tenant_id, COALESCE(agent_id::text, ''), name, status, config, started_at, finished_at
		FROM campaigns WHERE id = $1`, id,
	).Scan(&c.ID, &c.TenantID, &c.AgentID, &c.Name, &c.Status, &cfg, &c.StartedAt, &c.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &c.Config); err != nil {
			p.log.WithError(err).WithField("campaign_id", c.ID).Warn("bad campaign config")
		}
	}
	return c, nil
}

func (p *Postgres) FinishCampaign(ctx context.Context, id, status string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE campaigns SET status = $2, finished_at = now()
		WHERE id = $1 AND status = $3`, id, status, CampaignRunning)
	if err != nil {
		return fmt.Errorf("finish campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
