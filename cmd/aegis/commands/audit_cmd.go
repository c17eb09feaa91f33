package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MEKXH/aegis/internal/audit"
	"github.com/MEKXH/aegis/internal/config"
)

func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the safety audit log",
	}

	cmd.AddCommand(
		newAuditTailCmd(),
		newAuditReportCmd(),
		newAuditCleanupCmd(),
	)

	return cmd
}

func newAuditTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent audit entries",
		RunE:  runAuditTail,
	}
	cmd.Flags().IntP("lines", "n", 20, "Number of entries")
	cmd.Flags().String("decision", "", "Filter by decision (allowed|blocked|warned|approval_required)")
	cmd.Flags().String("user", "", "Filter by user id")
	return cmd
}

func newAuditReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate decisions over a trailing window",
		RunE:  runAuditReport,
	}
	cmd.Flags().Duration("period", 24*time.Hour, "Reporting window")
	return cmd
}

func newAuditCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Drop audit entries older than the retention window",
		RunE:  runAuditCleanup,
	}
	cmd.Flags().Duration("retention", 30*24*time.Hour, "Entries older than this are removed")
	return cmd
}

func loadAuditLogger() (*audit.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return audit.NewLogger(cfg.WorkspacePath()), nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	logger, err := loadAuditLogger()
	if err != nil {
		return err
	}

	n, _ := cmd.Flags().GetInt("lines")
	decision, _ := cmd.Flags().GetString("decision")
	user, _ := cmd.Flags().GetString("user")

	var entries []audit.Entry
	if decision == "" && user == "" {
		entries, err = logger.Tail(n)
	} else {
		entries, err = logger.Query(audit.Filters{Decision: decision, UserID: user, Limit: n})
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No audit entries.")
		return nil
	}

	for _, e := range entries {
		line := fmt.Sprintf("%s  %-18s %-18s", e.Time.Local().Format("2006-01-02 15:04:05"), e.Decision, e.Action)
		if e.RiskLevel != "" {
			line += fmt.Sprintf("  risk=%s(%.2f)", e.RiskLevel, e.RiskScore)
		}
		if e.UserID != "" {
			line += "  user=" + e.UserID
		}
		if e.Override != "" {
			line += "  override=" + e.Override
		}
		fmt.Println(line)
	}
	return nil
}

func runAuditReport(cmd *cobra.Command, args []string) error {
	logger, err := loadAuditLogger()
	if err != nil {
		return err
	}

	period, _ := cmd.Flags().GetDuration("period")
	report, err := logger.GenerateReport(period)
	if err != nil {
		return err
	}

	fmt.Printf("Safety report (last %s)\n", report.Period)
	fmt.Printf("  Total checks:      %d\n", report.TotalChecks)
	fmt.Printf("  Allowed:           %d\n", report.Allowed)
	fmt.Printf("  Blocked:           %d\n", report.Blocked)
	fmt.Printf("  Warned:            %d\n", report.Warned)
	fmt.Printf("  Approval required: %d\n", report.ApprovalRequired)
	if len(report.RiskDistribution) > 0 {
		fmt.Println("  Risk distribution:")
		for _, band := range []string{"low", "medium", "high", "critical"} {
			if count, ok := report.RiskDistribution[band]; ok {
				fmt.Printf("    %-8s %d\n", band, count)
			}
		}
	}
	return nil
}

func runAuditCleanup(cmd *cobra.Command, args []string) error {
	logger, err := loadAuditLogger()
	if err != nil {
		return err
	}

	retention, _ := cmd.Flags().GetDuration("retention")
	if err := logger.Cleanup(retention); err != nil {
		return err
	}
	fmt.Printf("Audit log trimmed to the last %s.\n", retention)
	return nil
}
