package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/MEKXH/aegis/internal/config"
	"github.com/MEKXH/aegis/internal/guard"
	"github.com/MEKXH/aegis/internal/intervention"
	"github.com/MEKXH/aegis/internal/safety"
	"github.com/MEKXH/aegis/internal/trace"
)

func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check --action <name>",
		Short: "Run one action through the safety pipeline",
		RunE:  runCheck,
	}

	cmd.Flags().String("action", "", "Action name, e.g. delete_database")
	cmd.Flags().String("input", "", "Action input or payload")
	cmd.Flags().String("resource", "", "Target resource")
	cmd.Flags().String("user", "", "Acting user id")
	cmd.Flags().String("session", "", "Session id")
	cmd.Flags().Bool("authenticated", false, "Caller is authenticated")
	cmd.Flags().Bool("mfa", false, "Caller passed MFA")
	cmd.Flags().Bool("elevated", false, "Caller holds elevated privileges")
	cmd.Flags().Int("violations", 0, "Recent violations on record")
	cmd.Flags().Bool("json", false, "Print the raw result as JSON")
	cmd.Flags().Duration("wait", 0, "Wait this long for a human decision when the action is held")
	_ = cmd.MarkFlagRequired("action")

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	g := guard.New(cfg)
	if err := g.Initialize(cmd.Context()); err != nil {
		return err
	}
	defer g.Shutdown()

	action := actionFromFlags(cmd)

	ctx := trace.WithRequestID(cmd.Context(), trace.NewRequestID())
	result, res, err := g.CheckAndIntervene(ctx, action)
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		out := map[string]any{"result": result, "intervention": res}
		encoded, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
	} else {
		printDecision(result, res)
	}

	wait, _ := cmd.Flags().GetDuration("wait")
	if res.RequiresApproval && wait > 0 {
		fmt.Printf("Waiting up to %s for a decision on %s...\n", wait, res.ApprovalRequestID)
		ctx, cancel := context.WithTimeout(cmd.Context(), wait+time.Second)
		defer cancel()
		approved, err := g.WaitForApproval(ctx, res.ApprovalRequestID, wait)
		if err != nil {
			return err
		}
		if approved {
			fmt.Println("Approved.")
		} else {
			fmt.Println("Not approved (denied, expired or timed out).")
		}
	}

	if !res.Proceed {
		os.Exit(2)
	}
	return nil
}

func actionFromFlags(cmd *cobra.Command) safety.ActionContext {
	actionName, _ := cmd.Flags().GetString("action")
	input, _ := cmd.Flags().GetString("input")
	resource, _ := cmd.Flags().GetString("resource")
	user, _ := cmd.Flags().GetString("user")
	session, _ := cmd.Flags().GetString("session")
	authenticated, _ := cmd.Flags().GetBool("authenticated")
	mfa, _ := cmd.Flags().GetBool("mfa")
	elevated, _ := cmd.Flags().GetBool("elevated")
	violations, _ := cmd.Flags().GetInt("violations")

	return safety.ActionContext{
		Action:           strings.TrimSpace(actionName),
		Input:            input,
		Resource:         resource,
		UserID:           user,
		SessionID:        session,
		Authenticated:    authenticated,
		MFAVerified:      mfa,
		Elevated:         elevated,
		RecentViolations: violations,
	}
}

var (
	allowStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2E8B57")) // SeaGreen
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#D7AF00")) // Gold
	blockStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#CD3131")) // Red
	holdStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8E4EC6")) // Purple
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

func printDecision(result safety.CheckResult, res intervention.Result) {
	var verdict string
	switch {
	case res.RequiresApproval:
		verdict = holdStyle.Render("HELD FOR APPROVAL")
	case !res.Proceed:
		verdict = blockStyle.Render("BLOCKED")
	case res.Warning:
		verdict = warnStyle.Render("ALLOWED WITH WARNING")
	default:
		verdict = allowStyle.Render("ALLOWED")
	}

	fmt.Println(verdict)
	fmt.Println(messageStyle.Render("  " + res.Message))
	fmt.Println(detailStyle.Render(fmt.Sprintf("  risk: %s (%.2f)  level: %s  duration: %dms",
		result.RiskLevel, result.RiskScore, result.Metadata.SafetyLevel, result.Metadata.DurationMs)))
	for _, v := range result.Violations {
		fmt.Println(detailStyle.Render("  violation: " + v))
	}
	for _, alt := range res.Alternatives {
		fmt.Println(detailStyle.Render("  alternative: " + alt))
	}
	if res.RequiresApproval {
		fmt.Println(detailStyle.Render("  approval request: " + res.ApprovalRequestID))
	}
}
