package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/3cpo-dev/saltamt/internal/api"
	"github.com/3cpo-dev/saltamt/internal/core"
)

var version = "dev"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "saltamt-api").Logger()

	cmd := &cobra.Command{
		Use:           "saltamt-api",
		Short:         "Serve the saltamt calculator API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log")
			lvl, err := zerolog.ParseLevel(level)
			if err != nil {
				return err
			}
			zerolog.SetGlobalLevel(lvl)

			cfgPath, _ := cmd.Flags().GetString("config")
			if cfgPath == "" {
				cfgPath = os.Getenv("SALTAMT_CONFIG")
			}
			cfg, err := core.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			return api.Run(cmd.Context(), version, cfg)
		},
	}
	cmd.Flags().String("config", "", "config file (default $SALTAMT_CONFIG, then $XDG_CONFIG_HOME/saltamt/config.yaml)")
	cmd.Flags().String("addr", "", "listen address (default server.addr from config)")
	cmd.Flags().StringP("log", "l", "info", "log level")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
