package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/instrumentgpt/instrumentgpt/internal/config"
	"github.com/instrumentgpt/instrumentgpt/internal/dependency"
)

var gatewayPort int

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the instrumentgpt gateway server",
	RunE:  runGatewayCmd,
}

func init() {
	gatewayCmd.Flags().IntVarP(&gatewayPort, "port", "p", 0, "Override the configured gateway port")
}

func runGatewayCmd(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if gatewayPort != 0 {
		cfg.Gateway.Port = gatewayPort
	}

	container, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return container.Loop().Run(gctx) })
	g.Go(func() error { return container.Channels().StartAll(gctx) })
	if cfg.Gateway.Enabled {
		g.Go(func() error { return container.Gateway().Run(gctx) })
		fmt.Printf("%s Gateway on %s:%d\n", logo, cfg.Gateway.Host, cfg.Gateway.Port)
	}
	if cfg.Maintenance.Enabled {
		g.Go(func() error { return container.Sweeper().Run(gctx) })
	}

	if enabled := container.Channels().EnabledChannels(); len(enabled) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", joinNames(enabled))
	}
	fmt.Printf("%s Running. Press Ctrl+C to stop.\n", logo)

	if err := g.Wait(); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
