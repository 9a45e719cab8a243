// Package store defines the persistent entities and the storage interface
// the pipeline and campaign runner depend on. Two implementations ship: a
// Postgres store backed by pgx for production and an in-memory store for
// tests and the one-shot CLI.
package store

import "time"

// Direction of a monitored message relative to the protected agent.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Incident lifecycle states.
const (
	IncidentOpen     = "open"
	IncidentResolved = "resolved"
)

// Campaign lifecycle states. A campaign transitions from running to exactly
// one of completed or failed.
const (
	CampaignRunning   = "running"
	CampaignCompleted = "completed"
	CampaignFailed    = "failed"
)

// Incident classifications produced by the pipeline and campaign runner.
const (
	ClassPolicyViolation        = "policy_violation"
	ClassJailbreakAttempt       = "jailbreak_attempt"
	ClassUnsafeOutput           = "unsafe_output"
	ClassUnsafeToolUse          = "unsafe_tool_use"
	ClassVulnerabilityFound     = "vulnerability_found"
	ClassPotentialVulnerability = "potential_vulnerability"
	ClassAttackAttempt          = "attack_attempt"
)

// Tenant is the isolation boundary owning agents, policies, incidents, and
// campaigns.
type Tenant struct {
	ID           string
	Name         string
	APIKey       string
	Notification NotificationConfig
	CreatedAt    time.Time
}

// NotificationConfig is the tenant-scoped alert routing.
type NotificationConfig struct {
	EmailRecipients []string `json:"email_recipients"`
	WebhookURL      string   `json:"webhook_url"`
}

// Agent is a monitored downstream AI agent.
type Agent struct {
	ID        string
	TenantID  string
	Name      string
	ModelInfo string
	// TargetURL, when set, is the real probe endpoint used by red-team
	// campaigns instead of a simulated target.
	TargetURL string
	CreatedAt time.Time
	LastSeen  time.Time
}

// Policy is a tenant rule document. One active policy per tenant is the
// contract the pipeline relies on; inactive historical versions may coexist.
type Policy struct {
	ID        string
	TenantID  string
	Name      string
	Content   string // YAML rule document
	IsActive  bool
	CreatedAt time.Time
}

// Message is one monitored inbound or outbound message. Immutable once its
// decision is set; never deleted by the pipeline.
type Message struct {
	ID        string
	TenantID  string
	AgentID   string
	Direction Direction
	Content   string
	Decision  string // allow, flag, block
	CreatedAt time.Time
}

// ToolEvent is one tool-call evaluation. Append-only, independent of
// incidents.
type ToolEvent struct {
	ID        string
	TenantID  string
	AgentID   string
	Tool      string
	Args      string
	Allowed   bool
	CreatedAt time.Time
}

// Incident is a recorded safety violation requiring review.
type Incident struct {
	ID             string
	TenantID       string
	AgentID        string
	CampaignID     string // empty unless created by a campaign
	Severity       string // low, medium, high, critical
	Classification string
	TranscriptRef  string
	Status         string // open, resolved
	CreatedAt      time.Time
}

// Campaign is one red-team run against a tenant's agent.
type Campaign struct {
	ID         string
	TenantID   string
	AgentID    string
	Name       string
	Status     string
	Config     CampaignConfig
	StartedAt  time.Time
	FinishedAt *time.Time
}

// CampaignConfig drives attack generation and probing.
type CampaignConfig struct {
	UserIntent        string            `json:"user_intent"`
	TargetDescription string            `json:"target_description"`
	TargetURL         string            `json:"target_url,omitempty"`
	TargetMethod      string            `json:"target_method,omitempty"`
	TargetHeaders     map[string]string `json:"target_headers,omitempty"`
	// TargetBodyTemplate is the probe request body; "{{prompt}}" is
	// substituted with the generated attack.
	TargetBodyTemplate string `json:"target_body_template,omitempty"`
}
