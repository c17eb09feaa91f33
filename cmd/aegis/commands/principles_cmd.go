package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MEKXH/aegis/internal/config"
	"github.com/MEKXH/aegis/internal/principles"
)

func NewPrinciplesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "principles",
		Short: "Inspect and validate the principles document",
	}

	cmd.AddCommand(
		newPrinciplesShowCmd(),
		newPrinciplesValidateCmd(),
	)

	return cmd
}

func newPrinciplesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Summarize the active principles document",
		RunE:  runPrinciplesShow,
	}
}

func newPrinciplesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a principles document without loading it",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPrinciplesValidate,
	}
}

func runPrinciplesShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	doc, err := principles.LoadDocument(cfg.Safety.PrinciplesFile)
	if err != nil {
		return err
	}

	source := cfg.Safety.PrinciplesFile
	if source == "" {
		source = "(built-in defaults)"
	}
	fmt.Printf("Source: %s\n", source)
	fmt.Printf("Version: %s\n\n", doc.Metadata.Version)

	fmt.Printf("Principles (%d):\n", len(doc.Principles))
	for _, p := range doc.Principles {
		state := "enabled"
		if !p.Enabled {
			state = "disabled"
		}
		fmt.Printf("  %-20s %-16s severity=%.2f  %s  (%d rules)\n",
			p.Name, p.Category, p.Severity, state, len(p.Rules))
	}

	fmt.Printf("\nProhibitions (%d):\n", len(doc.Prohibitions))
	for _, pr := range doc.Prohibitions {
		state := "enabled"
		if !pr.Enabled {
			state = "disabled"
		}
		fmt.Printf("  %-28s %-8s %s  (%d patterns)\n", pr.Name, pr.Severity, state, len(pr.Patterns))
	}
	return nil
}

func runPrinciplesValidate(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		path = cfg.Safety.PrinciplesFile
	}

	doc, err := principles.LoadDocument(path)
	if err != nil {
		return err
	}
	if err := principles.ValidateDocument(doc); err != nil {
		return err
	}
	fmt.Printf("OK: %d principles, %d prohibitions.\n", len(doc.Principles), len(doc.Prohibitions))
	return nil
}
