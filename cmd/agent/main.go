package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"batch-agent/internal/agent"
	"batch-agent/internal/config"
	"batch-agent/internal/notify"
	"batch-agent/pkg/executor"
)

var (
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "batch-agent",
		Short: "Remote batch execution agent",
		Long: "batch-agent listens for requests from the batch management server, runs batch " +
			"programs on this host and reports each result back.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (default ./agent.properties)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadAgent(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	setupLogging(cfg.LogLevel)

	log.Info().
		Str("host", cfg.Identity()).
		Str("management", cfg.ManagementAddr()).
		Str("batch_path", cfg.BatchPath).
		Int("workers", cfg.ThreadNum).
		Dur("exec_timeout", cfg.ExecTimeout).
		Msg("starting batch agent")

	registry := executor.NewDefaultRegistry(cfg.JavaBin, cfg.ShellBin)
	srv := agent.NewServer(cfg, registry, notify.New(cfg))

	// Graceful shutdown. A second signal kills the process with jobs still
	// running.
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("batch agent stopped")
	return nil
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
