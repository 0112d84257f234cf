package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/framecho/internal/echo"
	"github.com/danmuck/framecho/internal/logging"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "echoctl: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		adminAddr  string
	)
	cmd := &cobra.Command{
		Use:           "echoctl",
		Short:         "Serve the length-prefixed echo protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.ConfigureRuntime()

			cfg := echo.DefaultServiceConfig()
			if path := strings.TrimSpace(configPath); path != "" {
				loaded, err := loadServiceConfig(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("addr") {
				cfg.ListenAddr = addr
			}
			if cmd.Flags().Changed("admin") {
				cfg.AdminListenAddr = adminAddr
			}
			return echo.NewServiceWithConfig(cfg).Run(context.Background())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVar(&addr, "addr", echo.DefaultListenAddr, "Listen address")
	cmd.Flags().StringVar(&adminAddr, "admin", "", "Admin HTTP listen address (disabled when empty)")
	return cmd
}
