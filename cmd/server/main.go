package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mei-chen/beagle-sub000/internal/app"
	"github.com/mei-chen/beagle-sub000/internal/config"
)

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve the projects collection over HTTP",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to create app: %w", err)
			}
			return a.Run()
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to configuration file")

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the configuration file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %s mode on %s:%d, remote %s\n",
				cfg.Server.Mode, cfg.Server.Host, cfg.Server.Port, cfg.Remote.BaseURL)
			return nil
		},
	})
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
