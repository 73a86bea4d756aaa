package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-streambridge/pkg/bridge"
	"github.com/illmade-knight/go-streambridge/pkg/config"
	"github.com/illmade-knight/go-streambridge/pkg/logging"
	"github.com/illmade-knight/go-streambridge/pkg/mqttsession"
	"github.com/illmade-knight/go-streambridge/pkg/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newBridgeCommand() *cobra.Command {
	var envFile string
	var debug bool

	cmd := &cobra.Command{
		Use:           "mqttbridge",
		Short:         "Bridge device frames from MQTT into storage",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), envFile, debug)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to a .env file (default ./.env when present)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func run(ctx context.Context, envFile string, debug bool) error {
	// Console-only until the configured sinks are known.
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	logger.Info().Msg("Starting MQTT Bridge service...")

	cfg, err := config.Load(envFile)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	logger, logCloser, err := logging.New(cfg.Log, debug, os.Stdout)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	gateway, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error().Err(err).Str("backend", cfg.Storage.Backend).Msg("Failed to initialize storage client")
		return err
	}
	defer func() {
		if err := gateway.Close(); err != nil {
			logger.Warn().Err(err).Msg("Error closing storage client")
		}
	}()

	session, err := mqttsession.NewPahoSession(cfg.MQTT, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create MQTT session")
		return err
	}

	svc, err := bridge.New(cfg.Bridge, session, gateway, cfg.MQTT.RetryDelay, logger,
		bridge.WithSupervisorOptions(mqttsession.WithAddress(cfg.MQTT.Address())))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create bridge")
		return err
	}

	if err := svc.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Bridge stopped with error")
		return err
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Info().Msg("Bridge stopped by user")
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newBridgeCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
