package redteam

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aegisguard/aegis/internal/evaluator"
	"github.com/aegisguard/aegis/internal/store"
	"github.com/aegisguard/aegis/internal/worker"
)

// campaignTimeout bounds one full campaign run across all categories.
const campaignTimeout = 5 * time.Minute

// Runner drives campaigns asynchronously on a worker pool. Start returns as
// soon as the campaign is queued; results land as incidents tied to the
// campaign id.
type Runner struct {
	store  store.Store
	engine *Engine
	pool   *worker.Pool
	log    *logrus.Logger
}

func NewRunner(st store.Store, engine *Engine, pool *worker.Pool, log *logrus.Logger) *Runner {
	return &Runner{store: st, engine: engine, pool: pool, log: log}
}

// Start queues the campaign for execution. The campaign must already exist
// in the running state.
func (r *Runner) Start(ctx context.Context, campaignID string) error {
	if _, err := r.store.GetCampaign(ctx, campaignID); err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}
	err := r.pool.Submit(func(ctx context.Context) {
		r.run(ctx, campaignID)
	})
	if err != nil {
		r.finish(context.Background(), campaignID, store.CampaignFailed)
		return fmt.Errorf("queue campaign: %w", err)
	}
	return nil
}

// run executes the campaign end to end. Every exit path reaches a terminal
// campaign status exactly once.
func (r *Runner) run(ctx context.Context, campaignID string) {
	ctx, cancel := context.WithTimeout(ctx, campaignTimeout)
	defer cancel()

	log := r.log.WithField("campaign_id", campaignID)

	campaign, err := r.store.GetCampaign(ctx, campaignID)
	if err != nil {
		log.WithError(err).Error("campaign vanished before run")
		return
	}

	agent, err := r.resolveAgent(ctx, campaign)
	if err != nil {
		log.WithError(err).Warn("campaign has no runnable agent")
		r.finish(ctx, campaignID, store.CampaignFailed)
		return
	}

	target := Target{
		Description:  campaign.Config.TargetDescription,
		URL:          campaign.Config.TargetURL,
		Method:       campaign.Config.TargetMethod,
		Headers:      campaign.Config.TargetHeaders,
		BodyTemplate: campaign.Config.TargetBodyTemplate,
	}
	if target.URL == "" {
		target.URL = agent.TargetURL
	}

	results := r.engine.Run(ctx, campaign.Config.UserIntent, target)
	for _, result := range results {
		if result.Err != nil {
			log.WithError(result.Err).WithField("category", result.Category).
				Warn("attack category failed")
			continue
		}
		if err := r.recordIncident(ctx, campaign, agent, result); err != nil {
			log.WithError(err).WithField("category", result.Category).
				Error("record campaign incident")
		}
	}

	r.finish(ctx, campaignID, store.CampaignCompleted)
	log.WithField("attacks", len(results)).Info("campaign completed")
}

// resolveAgent picks the campaign's agent, falling back to the tenant's
// first registered agent.
func (r *Runner) resolveAgent(ctx context.Context, campaign *store.Campaign) (*store.Agent, error) {
	if campaign.AgentID != "" {
		return r.store.GetAgent(ctx, campaign.AgentID)
	}
	return r.store.FirstAgentForTenant(ctx, campaign.TenantID)
}

// recordIncident maps one attack verdict onto an incident. Blocked responses
// are confirmed vulnerabilities, flagged ones are potential, and clean allows
// are kept as resolved attack attempts so the campaign report stays complete.
func (r *Runner) recordIncident(ctx context.Context, campaign *store.Campaign, agent *store.Agent, result AttackResult) error {
	severity, classification, status := incidentFor(result.Verdict.Decision)

	transcript := fmt.Sprintf("attack: %s | prompt: %s | response: %s",
		result.Category, result.Prompt, result.Response)

	return r.store.CreateIncident(ctx, &store.Incident{
		TenantID:       campaign.TenantID,
		AgentID:        agent.ID,
		CampaignID:     campaign.ID,
		Severity:       severity,
		Classification: classification,
		TranscriptRef:  transcript,
		Status:         status,
	})
}

func incidentFor(decision evaluator.Decision) (severity, classification, status string) {
	switch decision {
	case evaluator.DecisionBlock:
		return "critical", store.ClassVulnerabilityFound, store.IncidentOpen
	case evaluator.DecisionFlag:
		return "high", store.ClassPotentialVulnerability, store.IncidentOpen
	default:
		return "low", store.ClassAttackAttempt, store.IncidentResolved
	}
}

func (r *Runner) finish(ctx context.Context, campaignID, status string) {
	if err := r.store.FinishCampaign(ctx, campaignID, status); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"campaign_id": campaignID,
			"status":      status,
		}).Error("finish campaign")
	}
}
