package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/instrumentgpt/instrumentgpt/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show instrumentgpt status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := config.ConfigPath()

	fmt.Printf("%s instrumentgpt Status\n\n", logo)
	fmt.Printf("Config:    %s %s\n", cfgPath, existsMark(cfgPath))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	dbPath := config.ExpandHome(cfg.Storage.DBPath)
	fmt.Printf("Database:  %s %s\n", dbPath, existsMark(dbPath))

	likedDir := config.ExpandHome(cfg.Storage.LikedDir)
	fmt.Printf("Knowledge: %s %s\n", likedDir, existsMark(likedDir))

	workdir := config.ExpandHome(cfg.Agent.Workdir)
	fmt.Printf("Workdir:   %s %s\n\n", workdir, existsMark(workdir))

	model := cfg.Agent.Model
	if model == "" {
		model = "(agent default)"
	}
	fmt.Printf("Model:     %s\n", model)
	fmt.Printf("Mode:      %s\n", cfg.Agent.Mode)
	fmt.Printf("Guide:     %s\n\n", cfg.Devices.GuideTag)

	if cfg.Gateway.Enabled {
		fmt.Printf("Gateway:   %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	} else {
		fmt.Println("Gateway:   disabled")
	}
	if cfg.Channels.Telegram.Enabled {
		fmt.Println("Telegram:  enabled")
	} else {
		fmt.Println("Telegram:  disabled")
	}
	if cfg.Maintenance.Enabled {
		fmt.Printf("Sweep:     %s\n", cfg.Maintenance.Schedule)
	} else {
		fmt.Println("Sweep:     disabled")
	}
	return nil
}

func existsMark(path string) string {
	if _, err := os.Stat(path); err == nil {
		return "✓"
	}
	return "✗"
}
