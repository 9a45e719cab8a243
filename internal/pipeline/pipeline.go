// Package pipeline orchestrates the per-message and per-action safety
// decision: policy check first, then the content evaluators, then incident
// materialization and alerting.
//
// Every message walks the state machine received -> policy_checked ->
// content_checked -> decided; decided is terminal and every message reaches
// it with a decision value. Policy violations short-circuit past the
// evaluators. Incidents are committed before the verdict is returned, so a
// caller observing a block can immediately read the incident. Evaluator and
// judge failures never abort a request; persistence failures do.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/aegisguard/aegis/internal/alert"
	"github.com/aegisguard/aegis/internal/audit"
	"github.com/aegisguard/aegis/internal/evaluator"
	"github.com/aegisguard/aegis/internal/policy"
	"github.com/aegisguard/aegis/internal/store"
)

// Pipeline states.
const (
	StateReceived       = "received"
	StatePolicyChecked  = "policy_checked"
	StateContentChecked = "content_checked"
	StateDecided        = "decided"
)

// MessageInput is one inbound or outbound message to evaluate.
type MessageInput struct {
	TenantID  string
	AgentID   string
	Direction store.Direction
	Content   string
}

// ToolCallInput is one tool-call request to evaluate.
type ToolCallInput struct {
	TenantID string
	AgentID  string
	Tool     string
	Args     string
}

// Result is the produced interface per message/action.
type Result struct {
	Allowed    bool
	Reason     string
	IncidentID string
}

// Pipeline wires the policy engine, the evaluators, persistence, alerting,
// and the audit trail.
type Pipeline struct {
	store    store.Store
	policies *policy.Engine
	pre      *evaluator.PromptRisk
	ose      *evaluator.OutputSafety
	aim      *evaluator.ActionIntent
	alerts   *alert.Dispatcher
	trail    *audit.Trail
	log      *logrus.Logger
}

// New creates a pipeline. The alert dispatcher and audit trail may be nil;
// both are then skipped.
func New(st store.Store, pol *policy.Engine, pre *evaluator.PromptRisk,
	ose *evaluator.OutputSafety, aim *evaluator.ActionIntent,
	alerts *alert.Dispatcher, trail *audit.Trail, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		store:    st,
		policies: pol,
		pre:      pre,
		ose:      ose,
		aim:      aim,
		alerts:   alerts,
		trail:    trail,
		log:      log,
	}
}

// HandleMessage runs one message through the decision state machine.
func (p *Pipeline) HandleMessage(ctx context.Context, in MessageInput) (Result, error) {
	// received: persist the message shell with a tentative allow.
	msg := &store.Message{
		TenantID:  in.TenantID,
		AgentID:   in.AgentID,
		Direction: in.Direction,
		Content:   in.Content,
		Decision:  string(evaluator.DecisionAllow),
	}
	if err := p.store.CreateMessage(ctx, msg); err != nil {
		return Result{}, fmt.Errorf("persist message: %w", err)
	}

	// Heartbeat; a missing agent record does not fail the evaluation.
	if err := p.store.TouchAgent(ctx, in.AgentID); err != nil && !errors.Is(err, store.ErrNotFound) {
		p.log.WithError(err).Warn("agent heartbeat update failed")
	}

	// policy_checked: violations short-circuit past the evaluators.
	polResult := p.checkPolicy(ctx, in)
	if !polResult.Allowed {
		incident := &store.Incident{
			TenantID:       in.TenantID,
			AgentID:        in.AgentID,
			Severity:       "high",
			Classification: store.ClassPolicyViolation,
			TranscriptRef:  in.Content,
			Status:         store.IncidentOpen,
		}
		return p.block(ctx, msg, incident, polResult.Reason, StatePolicyChecked, nil)
	}

	// content_checked: direction selects the evaluator.
	if in.Direction == store.DirectionIn {
		verdict := p.pre.EvaluatePrompt(ctx, in.Content)
		if verdict.RiskLevel != evaluator.RiskLow {
			severity := "high"
			if verdict.RiskLevel == evaluator.RiskCritical {
				severity = "critical"
			}
			incident := &store.Incident{
				TenantID:       in.TenantID,
				AgentID:        in.AgentID,
				Severity:       severity,
				Classification: store.ClassJailbreakAttempt,
				TranscriptRef:  in.Content,
				Status:         store.IncidentOpen,
			}
			reason := fmt.Sprintf("blocked by prompt evaluator: %s risk detected", verdict.RiskLevel)
			if verdict.Remediation != "" {
				reason += "; suggested rewrite: " + verdict.Remediation
			}
			return p.block(ctx, msg, incident, reason, StateContentChecked, &verdict)
		}
	} else {
		// The paired prompt is not available on this path; the judge
		// evaluates the output on its own.
		verdict := p.ose.EvaluateOutput(ctx, "[unknown prompt]", in.Content)
		if verdict.Decision != evaluator.DecisionAllow {
			incident := &store.Incident{
				TenantID:       in.TenantID,
				AgentID:        in.AgentID,
				Severity:       "high",
				Classification: store.ClassUnsafeOutput,
				TranscriptRef:  in.Content,
				Status:         store.IncidentOpen,
			}
			return p.block(ctx, msg, incident, "blocked by output evaluator: unsafe content detected", StateContentChecked, &verdict)
		}
	}

	// decided: no block occurred, finalize as allow.
	if err := p.store.SetMessageDecision(ctx, msg.ID, string(evaluator.DecisionAllow)); err != nil {
		return Result{}, fmt.Errorf("finalize decision: %w", err)
	}
	p.audit(audit.Event{
		TenantID:  in.TenantID,
		AgentID:   in.AgentID,
		Kind:      "message",
		Direction: string(in.Direction),
		Content:   in.Content,
		Decision:  string(evaluator.DecisionAllow),
		State:     StateDecided,
	})
	return Result{Allowed: true}, nil
}

// HandleToolCall evaluates a tool-call request. A ToolEvent is always
// appended; a non-allow verdict additionally creates a critical incident and
// triggers alerting. Callers treat flag as the deny signal.
func (p *Pipeline) HandleToolCall(ctx context.Context, in ToolCallInput) (Result, error) {
	verdict := p.aim.EvaluateAction(ctx, evaluator.Action{Tool: in.Tool, Args: in.Args})
	allowed := verdict.Decision == evaluator.DecisionAllow

	event := &store.ToolEvent{
		TenantID: in.TenantID,
		AgentID:  in.AgentID,
		Tool:     in.Tool,
		Args:     in.Args,
		Allowed:  allowed,
	}
	if err := p.store.AppendToolEvent(ctx, event); err != nil {
		return Result{}, fmt.Errorf("append tool event: %w", err)
	}

	result := Result{Allowed: allowed}
	if !allowed {
		incident := &store.Incident{
			TenantID:       in.TenantID,
			AgentID:        in.AgentID,
			Severity:       "critical",
			Classification: store.ClassUnsafeToolUse,
			TranscriptRef:  fmt.Sprintf("tool: %s | args: %s | reason: %s", in.Tool, in.Args, firstReason(verdict)),
			Status:         store.IncidentOpen,
		}
		if err := p.store.CreateIncident(ctx, incident); err != nil {
			return Result{}, fmt.Errorf("persist incident: %w", err)
		}
		result.Reason = firstReason(verdict)
		result.IncidentID = incident.ID
		p.notify(ctx, incident)
	}

	p.audit(audit.Event{
		TenantID:   in.TenantID,
		AgentID:    in.AgentID,
		Kind:       "tool_call",
		Content:    fmt.Sprintf("%s %s", in.Tool, in.Args),
		Decision:   string(verdict.Decision),
		RiskLevel:  string(verdict.RiskLevel),
		Reasons:    verdict.Reasons,
		IncidentID: result.IncidentID,
		State:      StateDecided,
	})
	return result, nil
}

// checkPolicy loads the tenant's active policy and evaluates it. A missing
// policy fails open.
func (p *Pipeline) checkPolicy(ctx context.Context, in MessageInput) policy.Result {
	pol, err := p.store.ActivePolicy(ctx, in.TenantID)
	if errors.Is(err, store.ErrNotFound) {
		return policy.Result{Allowed: true}
	}
	if err != nil {
		// Store read failed; the policy layer fails open and the
		// content evaluators still run.
		p.log.WithError(err).Warn("active policy lookup failed, continuing without policy")
		return policy.Result{Allowed: true}
	}
	return p.policies.Evaluate(in.Content, pol.Content)
}

// block finalizes a blocked message: incident first, then the message
// decision, then alerting and audit. The incident commit precedes the return
// so the caller can immediately look it up.
func (p *Pipeline) block(ctx context.Context, msg *store.Message, incident *store.Incident,
	reason, state string, verdict *evaluator.Verdict) (Result, error) {
	if err := p.store.CreateIncident(ctx, incident); err != nil {
		return Result{}, fmt.Errorf("persist incident: %w", err)
	}
	if err := p.store.SetMessageDecision(ctx, msg.ID, string(evaluator.DecisionBlock)); err != nil {
		return Result{}, fmt.Errorf("finalize decision: %w", err)
	}

	p.notify(ctx, incident)

	event := audit.Event{
		TenantID:   msg.TenantID,
		AgentID:    msg.AgentID,
		Kind:       "message",
		Direction:  string(msg.Direction),
		Content:    msg.Content,
		Decision:   string(evaluator.DecisionBlock),
		IncidentID: incident.ID,
		State:      StateDecided,
	}
	if verdict != nil {
		event.RiskLevel = string(verdict.RiskLevel)
		event.Reasons = verdict.Reasons
	} else {
		event.Reasons = []string{reason}
	}
	p.audit(event)

	return Result{Allowed: false, Reason: reason, IncidentID: incident.ID}, nil
}

// notify enqueues the incident for asynchronous delivery using the tenant's
// notification config. Lookup failures only cost the alert, never the
// decision.
func (p *Pipeline) notify(ctx context.Context, incident *store.Incident) {
	if p.alerts == nil {
		return
	}
	tenant, err := p.store.GetTenant(ctx, incident.TenantID)
	if err != nil {
		p.log.WithError(err).WithField("tenant_id", incident.TenantID).
			Warn("tenant lookup failed, skipping alert")
		return
	}
	p.alerts.Enqueue(incident, tenant.Notification)
}

func (p *Pipeline) audit(event audit.Event) {
	if p.trail == nil {
		return
	}
	if err := p.trail.Log(event); err != nil {
		p.log.WithError(err).Warn("audit write failed")
	}
}

func firstReason(v evaluator.Verdict) string {
	if len(v.Reasons) > 0 {
		return v.Reasons[0]
	}
	return "risk threshold exceeded"
}
