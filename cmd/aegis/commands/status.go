package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MEKXH/aegis/internal/config"
	"github.com/MEKXH/aegis/internal/metrics"
	"github.com/MEKXH/aegis/internal/principles"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show Aegis configuration status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("=== Aegis Status ===")
	fmt.Println()

	fmt.Printf("Config: %s\n", config.ConfigPath())
	if _, err := os.Stat(config.ConfigPath()); err == nil {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found (run 'aegis init')")
	}

	fmt.Printf("\nWorkspace: %s\n", cfg.WorkspacePath())
	if _, err := os.Stat(cfg.WorkspacePath()); err == nil {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found")
	}

	fmt.Println("\nSafety:")
	fmt.Printf("  Default level: %s\n", cfg.Safety.DefaultLevel)
	principlesSource := cfg.Safety.PrinciplesFile
	if principlesSource == "" {
		principlesSource = "built-in defaults"
	}
	fmt.Printf("  Principles: %s\n", principlesSource)
	if doc, err := principles.LoadDocument(cfg.Safety.PrinciplesFile); err == nil {
		fmt.Printf("    %d principles, %d prohibitions\n", len(doc.Principles), len(doc.Prohibitions))
	} else {
		fmt.Printf("    Error: %v\n", err)
	}

	fmt.Println("\nMatcher:")
	fmt.Printf("  Engine: %s\n", cfg.Matcher.Engine)
	if cfg.Matcher.Engine == "llm" {
		fmt.Printf("  Model: %s\n", cfg.Matcher.Model)
		providers := map[string]string{
			"Claude": cfg.Providers.Claude.APIKey,
			"OpenAI": cfg.Providers.OpenAI.APIKey,
			"Ollama": cfg.Providers.Ollama.BaseURL,
		}
		fmt.Println("  Providers:")
		for name, key := range providers {
			status := "Not configured"
			if key != "" {
				status = "Configured"
			}
			fmt.Printf("    %s: %s\n", name, status)
		}
	}

	fmt.Println("\nApprovals:")
	fmt.Printf("  TTL: %dm  Sweep: %dm  Retention: %dh\n",
		cfg.Approvals.TTLMinutes, cfg.Approvals.SweepMinutes, cfg.Approvals.RetentionHours)

	fmt.Println("\nGateway:")
	if cfg.Gateway.Enabled {
		fmt.Printf("  Enabled on %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	} else {
		fmt.Println("  Disabled (start with 'aegis serve')")
	}
	if cfg.Gateway.Token != "" {
		fmt.Println("  Auth: bearer token")
	} else {
		fmt.Println("  Auth: none")
	}

	counters := metrics.NewCounters(cfg.WorkspacePath())
	if err := counters.Load(); err == nil {
		snap := counters.Snapshot()
		if snap.HasData() {
			fmt.Println("\nDecisions:")
			fmt.Printf("  Checks: %d  Allowed: %d  Blocked: %d  Warned: %d\n",
				snap.Checks, snap.Allowed, snap.Blocked, snap.Warned)
			fmt.Printf("  Approvals requested/approved/denied: %d/%d/%d\n",
				snap.ApprovalsRequested, snap.ApprovalsApproved, snap.ApprovalsDenied)
		}
	}

	return nil
}
