package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MEKXH/aegis/internal/config"
	"github.com/MEKXH/aegis/internal/principles"
)

func NewLevelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "level",
		Short: "Show or change the active safety level",
	}

	cmd.AddCommand(
		newLevelStatusCmd(),
		newLevelSetCmd(),
	)

	return cmd
}

func newLevelStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the configured safety levels",
		RunE:  runLevelStatus,
	}
}

func newLevelSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name>",
		Short: "Set the default safety level",
		Args:  cobra.ExactArgs(1),
		RunE:  runLevelSet,
	}
}

func runLevelStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	levels, err := principles.LoadLevels(cfg.Safety.LevelsFile)
	if err != nil {
		return err
	}

	fmt.Printf("Active level: %s\n\n", cfg.Safety.DefaultLevel)
	for _, lvl := range levels.Levels {
		marker := " "
		if lvl.Name == cfg.Safety.DefaultLevel {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, lvl.Name)
		fmt.Printf("    warning=%.2f  requires_approval=%.2f  auto_block=%.2f\n",
			lvl.Thresholds.Warning, lvl.Thresholds.RequiresApproval, lvl.Thresholds.AutoBlock)
		fmt.Printf("    checks=%s  logging=%s include_content=%v\n",
			strings.Join(lvl.EnabledChecks, ","), lvl.Logging.Level, lvl.Logging.IncludeContent)
	}
	return nil
}

func runLevelSet(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	levels, err := principles.LoadLevels(cfg.Safety.LevelsFile)
	if err != nil {
		return err
	}
	if _, ok := levels.Level(name); !ok {
		known := make([]string, 0, len(levels.Levels))
		for _, lvl := range levels.Levels {
			known = append(known, lvl.Name)
		}
		return fmt.Errorf("unknown safety level %q (known: %s)", name, strings.Join(known, ", "))
	}

	cfg.Safety.DefaultLevel = name
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("Default safety level set to %s.\n", name)
	return nil
}
