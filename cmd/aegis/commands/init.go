package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MEKXH/aegis/internal/config"
	"github.com/MEKXH/aegis/internal/principles"
	"github.com/spf13/cobra"
)

func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize Aegis configuration",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := config.ConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists: %s\n", configPath)
		return nil
	}

	cfg := config.DefaultConfig()

	dirs := []string{
		config.ConfigDir(),
		cfg.WorkspacePath(),
		filepath.Join(cfg.WorkspacePath(), "state"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// Write the built-in documents out so operators can edit them, and
	// point the config at the editable copies.
	principlesPath := filepath.Join(config.ConfigDir(), "principles.json")
	levelsPath := filepath.Join(config.ConfigDir(), "levels.json")

	if _, err := os.Stat(principlesPath); os.IsNotExist(err) {
		if err := principles.SaveDocument(principlesPath, principles.DefaultDocument()); err != nil {
			return fmt.Errorf("failed to write principles: %w", err)
		}
	}
	if _, err := os.Stat(levelsPath); os.IsNotExist(err) {
		if err := principles.SaveLevels(levelsPath, principles.DefaultLevels()); err != nil {
			return fmt.Errorf("failed to write safety levels: %w", err)
		}
	}

	cfg.Safety.PrinciplesFile = principlesPath
	cfg.Safety.LevelsFile = levelsPath

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Aegis initialized!\n")
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("Principles: %s\n", principlesPath)
	fmt.Printf("Safety levels: %s\n", levelsPath)
	fmt.Printf("Workspace: %s\n", cfg.WorkspacePath())
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("1. Review %s and adjust to your deployment\n", principlesPath)
	fmt.Printf("2. Run 'aegis check --action <name>' to test a decision\n")
	fmt.Printf("3. Run 'aegis serve' to expose the HTTP gateway\n")

	return nil
}
