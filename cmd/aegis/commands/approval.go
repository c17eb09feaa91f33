package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/MEKXH/aegis/internal/approval"
	"github.com/MEKXH/aegis/internal/config"
)

func NewApprovalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approval",
		Short: "Manage approval requests on a running gateway",
	}

	cmd.AddCommand(
		newApprovalListCmd(),
		newApprovalApproveCmd(),
		newApprovalDenyCmd(),
	)

	return cmd
}

func newApprovalListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending approval requests",
		RunE:  runApprovalList,
	}
}

func newApprovalApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a held action",
		Args:  cobra.ExactArgs(1),
		RunE:  runApprovalApprove,
	}
	cmd.Flags().String("by", "", "Decision maker")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func newApprovalDenyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deny <id>",
		Short: "Deny a held action",
		Args:  cobra.ExactArgs(1),
		RunE:  runApprovalDeny,
	}
	cmd.Flags().String("by", "", "Decision maker")
	cmd.Flags().String("reason", "", "Denial reason")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func runApprovalList(cmd *cobra.Command, args []string) error {
	client, err := newGatewayClient()
	if err != nil {
		return err
	}

	var resp struct {
		Approvals []approval.Request `json:"approvals"`
	}
	if err := client.get("/v1/approvals", &resp); err != nil {
		return err
	}
	if len(resp.Approvals) == 0 {
		fmt.Println("No pending approvals.")
		return nil
	}

	renderApprovalTable(resp.Approvals)
	return nil
}

func runApprovalApprove(cmd *cobra.Command, args []string) error {
	client, err := newGatewayClient()
	if err != nil {
		return err
	}

	by, _ := cmd.Flags().GetString("by")
	body := map[string]string{"approver": strings.TrimSpace(by)}
	if err := client.post("/v1/approvals/"+args[0]+"/approve", body, nil); err != nil {
		return err
	}
	fmt.Printf("Approval %s approved.\n", args[0])
	return nil
}

func runApprovalDeny(cmd *cobra.Command, args []string) error {
	client, err := newGatewayClient()
	if err != nil {
		return err
	}

	by, _ := cmd.Flags().GetString("by")
	reason, _ := cmd.Flags().GetString("reason")
	body := map[string]string{
		"denier": strings.TrimSpace(by),
		"reason": strings.TrimSpace(reason),
	}
	if err := client.post("/v1/approvals/"+args[0]+"/deny", body, nil); err != nil {
		return err
	}
	fmt.Printf("Approval %s denied.\n", args[0])
	return nil
}

func renderApprovalTable(requests []approval.Request) {
	var (
		headerStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#8E4EC6")). // Purple
				Padding(0, 1).
				MarginBottom(1)

		wID       = 38
		wAction   = 22
		wRisk     = 10
		wExpires  = 22
		wUser     = 14

		colHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#8E4EC6")).
				Bold(true).
				MarginRight(1)

		idStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(wID).
			MarginRight(1)

		actionStyle = lipgloss.NewStyle().
				Width(wAction).
				MarginRight(1)

		riskStyle = lipgloss.NewStyle().
				Width(wRisk).
				MarginRight(1)

		expiresStyle = lipgloss.NewStyle().
				Width(wExpires).
				MarginRight(1)

		userStyle = lipgloss.NewStyle().
				Width(wUser).
				MarginRight(1)

		criticalColor = lipgloss.Color("#CD3131")
		highColor     = lipgloss.Color("#D7AF00")
		defaultColor  = lipgloss.Color("252")
	)

	fmt.Println(headerStyle.Render("Pending Approvals"))

	headers := lipgloss.JoinHorizontal(lipgloss.Top,
		colHeaderStyle.Width(wID).Render("ID"),
		colHeaderStyle.Width(wAction).Render("ACTION"),
		colHeaderStyle.Width(wRisk).Render("RISK"),
		colHeaderStyle.Width(wExpires).Render("EXPIRES"),
		colHeaderStyle.Width(wUser).Render("USER"),
	)
	fmt.Printf("  %s\n", headers)

	sepStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginRight(1)
	separator := lipgloss.JoinHorizontal(lipgloss.Top,
		sepStyle.Render(strings.Repeat("─", wID)),
		sepStyle.Render(strings.Repeat("─", wAction)),
		sepStyle.Render(strings.Repeat("─", wRisk)),
		sepStyle.Render(strings.Repeat("─", wExpires)),
		sepStyle.Render(strings.Repeat("─", wUser)),
	)
	fmt.Printf("  %s\n", separator)

	for _, req := range requests {
		riskColor := defaultColor
		switch string(req.Result.RiskLevel) {
		case "critical":
			riskColor = criticalColor
		case "high":
			riskColor = highColor
		}

		row := lipgloss.JoinHorizontal(lipgloss.Top,
			idStyle.Render(req.ID),
			actionStyle.Render(truncate(req.Context.Action, wAction)),
			riskStyle.Foreground(riskColor).Render(string(req.Result.RiskLevel)),
			expiresStyle.Render(req.ExpiresAt.Local().Format("2006-01-02 15:04:05")),
			userStyle.Render(truncate(req.Context.UserID, wUser)),
		)
		fmt.Printf("  %s\n", row)
	}

	fmt.Println()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// gatewayClient is the thin HTTP client the operator commands use to talk
// to a running `aegis serve`.
type gatewayClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newGatewayClient() (*gatewayClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	host := strings.TrimSpace(cfg.Gateway.Host)
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return &gatewayClient{
		baseURL: fmt.Sprintf("http://%s:%d", host, cfg.Gateway.Port),
		token:   cfg.Gateway.Token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *gatewayClient) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *gatewayClient) post(path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *gatewayClient) do(req *http.Request, out any) error {
	if strings.TrimSpace(c.token) != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable at %s (is 'aegis serve' running?): %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("gateway returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
