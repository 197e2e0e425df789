package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/instrumentgpt/instrumentgpt/internal/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize configuration and data directories",
	RunE:  runOnboard,
}

func runOnboard(_ *cobra.Command, _ []string) error {
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("Config already exists at %s\n", cfgPath)
		fmt.Printf("Press Enter to refresh (keep existing values) or Ctrl+C to cancel: ")
		fmt.Scanln()
		existing, loadErr := config.Load(cfgPath)
		if loadErr != nil {
			def := config.DefaultConfig()
			existing = &def
		}
		if err := config.Save(existing, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Config refreshed at %s\n", cfgPath)
	} else {
		cfg := config.DefaultConfig()
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", cfgPath)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	for _, dir := range []string{
		config.ExpandHome(cfg.Agent.Workdir),
		config.ExpandHome(cfg.Storage.LikedDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		fmt.Printf("✓ Directory %s\n", dir)
	}

	fmt.Printf("\n%s instrumentgpt is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Install the agent CLI, or point agent.binPath at it in %s\n", cfgPath)
	fmt.Printf("  2. Chat: instrumentgpt chat -m \"check 10.1.1.45\"\n")
	fmt.Printf("  3. Serve the browser UI: instrumentgpt gateway\n")
	return nil
}
