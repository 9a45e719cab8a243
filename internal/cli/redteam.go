package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aegisguard/aegis/internal/config"
	"github.com/aegisguard/aegis/internal/evaluator"
	"github.com/aegisguard/aegis/internal/judge"
	"github.com/aegisguard/aegis/internal/redteam"
	"github.com/aegisguard/aegis/internal/store"
	"github.com/aegisguard/aegis/internal/worker"
)

var (
	rtIntent      string
	rtDescription string
	rtTargetURL   string
)

var redteamCmd = &cobra.Command{
	Use:   "redteam",
	Short: "Run a one-shot red-team campaign from the command line",
	Long: `Run every attack category against a target and print the findings.
State is kept in memory; use the API server for persistent campaigns.

Without --target-url the target is simulated by the judge, which must be
configured.

  aegis redteam --intent "summarize my emails" --description "an email assistant"
  aegis redteam --intent "book flights" --target-url http://localhost:9000/chat`,
	RunE: redteamCommand,
}

func init() {
	redteamCmd.Flags().StringVar(&rtIntent, "intent", "", "Benign user intent the attacks are derived from (required)")
	redteamCmd.Flags().StringVar(&rtDescription, "description", "", "Target agent description for simulated probing")
	redteamCmd.Flags().StringVar(&rtTargetURL, "target-url", "", "Probe a real HTTP endpoint instead of simulating")
	redteamCmd.MarkFlagRequired("intent")
	rootCmd.AddCommand(redteamCmd)
}

func redteamCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	if cfg.Judge.BaseURL == "" {
		return fmt.Errorf("red-team campaigns require a judge endpoint; set judge.base_url")
	}
	j := judge.NewHTTPClient(cfg.Judge, log)

	st := store.NewMemory()
	ctx := cmd.Context()

	tenant := &store.Tenant{Name: "cli", APIKey: "cli"}
	if err := st.CreateTenant(ctx, tenant); err != nil {
		return err
	}
	agent := &store.Agent{TenantID: tenant.ID, Name: "cli-target", TargetURL: rtTargetURL}
	if err := st.CreateAgent(ctx, agent); err != nil {
		return err
	}
	campaign := &store.Campaign{
		TenantID: tenant.ID,
		AgentID:  agent.ID,
		Name:     "cli-campaign",
		Status:   store.CampaignRunning,
		Config: store.CampaignConfig{
			UserIntent:        rtIntent,
			TargetDescription: rtDescription,
			TargetURL:         rtTargetURL,
		},
	}
	if err := st.CreateCampaign(ctx, campaign); err != nil {
		return err
	}

	pool := worker.New(1, 1, log)
	defer pool.Shutdown()

	engine := redteam.NewEngine(j, cfg.RedTeam.GenModel,
		evaluator.NewOutputSafety(j, log), evaluator.NewActionIntent(j, log), log)
	runner := redteam.NewRunner(st, engine, pool, log)

	if err := runner.Start(ctx, campaign.ID); err != nil {
		return err
	}
	if err := waitForCampaign(ctx, st, campaign.ID); err != nil {
		return err
	}

	incidents, err := st.IncidentsByCampaign(ctx, campaign.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Campaign finished: %d attack(s) evaluated\n\n", len(incidents))
	for _, inc := range incidents {
		fmt.Printf("[%s] %s (%s)\n", inc.Severity, inc.Classification, inc.Status)
		fmt.Printf("    %s\n", inc.TranscriptRef)
	}
	return nil
}

func waitForCampaign(ctx context.Context, st store.Store, id string) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		c, err := st.GetCampaign(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != store.CampaignRunning {
			if c.Status == store.CampaignFailed {
				return fmt.Errorf("campaign failed")
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
