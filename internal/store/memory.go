package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory Store used by tests and the one-shot CLI. All
// methods are safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	tenants   map[string]*Tenant
	agents    map[string]*Agent
	policies  map[string]*Policy
	messages  map[string]*Message
	events    []*ToolEvent
	incidents map[string]*Incident
	campaigns map[string]*Campaign

	// agentOrder preserves insertion order so FirstAgentForTenant is
	// deterministic. messageOrder does the same for the Messages snapshot.
	agentOrder   []string
	messageOrder []string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tenants:   make(map[string]*Tenant),
		agents:    make(map[string]*Agent),
		policies:  make(map[string]*Policy),
		messages:  make(map[string]*Message),
		incidents: make(map[string]*Incident),
		campaigns: make(map[string]*Campaign),
	}
}

func (m *Memory) CreateTenant(_ context.Context, t *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *Memory) GetTenant(_ context.Context, id string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) TenantByAPIKey(_ context.Context, apiKey string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tenants {
		if t.APIKey != "" && t.APIKey == apiKey {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateAgent(_ context.Context, a *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	m.agents[a.ID] = &cp
	m.agentOrder = append(m.agentOrder, a.ID)
	return nil
}

func (m *Memory) GetAgent(_ context.Context, id string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) FirstAgentForTenant(_ context.Context, tenantID string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.agentOrder {
		if a := m.agents[id]; a != nil && a.TenantID == tenantID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) TouchAgent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return ErrNotFound
	}
	a.LastSeen = time.Now().UTC()
	return nil
}

func (m *Memory) CreatePolicy(_ context.Context, p *Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.IsActive {
		// Preserve the one-active-policy-per-tenant contract.
		for _, existing := range m.policies {
			if existing.TenantID == p.TenantID {
				existing.IsActive = false
			}
		}
	}
	cp := *p
	m.policies[p.ID] = &cp
	return nil
}

func (m *Memory) ActivePolicy(_ context.Context, tenantID string) (*Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.policies {
		if p.TenantID == tenantID && p.IsActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateMessage(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	cp := *msg
	m.messages[msg.ID] = &cp
	m.messageOrder = append(m.messageOrder, msg.ID)
	return nil
}

// Messages returns all messages in insertion order, for tests.
func (m *Memory) Messages() []*Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Message, 0, len(m.messageOrder))
	for _, id := range m.messageOrder {
		cp := *m.messages[id]
		out = append(out, &cp)
	}
	return out
}

func (m *Memory) SetMessageDecision(_ context.Context, id, decision string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return ErrNotFound
	}
	msg.Decision = decision
	return nil
}

// GetMessage is a test helper, not part of the Store interface.
func (m *Memory) GetMessage(id string) (*Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, false
	}
	cp := *msg
	return &cp, true
}

func (m *Memory) AppendToolEvent(_ context.Context, e *ToolEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	cp := *e
	m.events = append(m.events, &cp)
	return nil
}

// ToolEvents returns a snapshot of the append-only tool event log.
func (m *Memory) ToolEvents() []*ToolEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ToolEvent, len(m.events))
	for i, e := range m.events {
		cp := *e
		out[i] = &cp
	}
	return out
}

func (m *Memory) CreateIncident(_ context.Context, i *Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}
	if i.Status == "" {
		i.Status = IncidentOpen
	}
	cp := *i
	m.incidents[i.ID] = &cp
	return nil
}

func (m *Memory) GetIncident(_ context.Context, id string) (*Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (m *Memory) ResolveIncident(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.incidents[id]
	if !ok {
		return ErrNotFound
	}
	i.Status = IncidentResolved
	return nil
}

func (m *Memory) IncidentsByCampaign(_ context.Context, campaignID string) ([]*Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Incident
	for _, i := range m.incidents {
		if i.CampaignID == campaignID {
			cp := *i
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Incidents returns a snapshot of all incidents, for tests.
func (m *Memory) Incidents() []*Incident {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Incident
	for _, i := range m.incidents {
		cp := *i
		out = append(out, &cp)
	}
	return out
}

func (m *Memory) CreateCampaign(_ context.Context, c *Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = CampaignRunning
	}
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *Memory) GetCampaign(_ context.Context, id string) (*Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) FinishCampaign(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != CampaignRunning {
		// A campaign leaves the running state exactly once.
		return ErrNotFound
	}
	now := time.Now().UTC()
	c.Status = status
	c.FinishedAt = &now
	return nil
}
