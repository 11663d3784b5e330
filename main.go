package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"attendguard/config"
	"attendguard/logger"
)

func BuildRootCmd() *cobra.Command {
	var cfg *config.Config

	cmd := &cobra.Command{
		Use:          "attendguard",
		Short:        "Geofenced, device-bound attendance marking",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			logger.SetLevel(cfg.LogLevel)
			return nil
		},
	}

	serve := buildServeCmd(func() *config.Config { return cfg })
	cmd.AddCommand(
		serve,
		buildPurgeCmd(func() *config.Config { return cfg }),
		buildSessionCmd(func() *config.Config { return cfg }),
		buildTokenCmd(func() *config.Config { return cfg }),
	)
	// serve is the default
	cmd.RunE = serve.RunE
	cmd.Flags().AddFlagSet(serve.Flags())

	return cmd
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-c
		logger.Info(ctx).Str("signal", sig.String()).Msg("shutting down")
		cancel()
		<-c
		os.Exit(1)
	}()

	if err := BuildRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
