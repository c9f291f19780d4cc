package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/poetry-camera/internal/config"
	"github.com/fpang/poetry-camera/internal/logging"
	"github.com/fpang/poetry-camera/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Global flags
var (
	configFlag    string
	envFileFlag   string
	simulateFlag  bool
	logJSONFlag   bool
	logFileFlag   string
	ssmPrefixFlag string
)

var rootCmd = &cobra.Command{
	Use:   "poetry-camera",
	Short: "Gesture-triggered camera that prints a poem about what it sees",
	Long: `Poetry Camera waits for a hand gesture or a button press, counts down,
takes a photo, asks a vision model to describe it, asks a language model for
a short poem about the description and prints the poem on a thermal printer.

Every device falls back to a simulation when the hardware is missing, so the
whole pipeline also runs on a laptop.

Examples:
  poetry-camera run
  poetry-camera run --simulate --config poetry.yaml
  poetry-camera probe
  poetry-camera describe photo.jpg
  poetry-camera print-test
  poetry-camera export --since 2024-05-01 -o runs.tar.zst`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		opts := logging.Options{JSON: logJSONFlag}
		if logFileFlag != "" {
			f, err := os.OpenFile(logFileFlag, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			opts.File = f
		}
		logging.Init(opts)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFlag, "config", "f", "", "YAML config file")
	pf.StringVar(&envFileFlag, "env-file", ".env", "dotenv file with API keys")
	pf.BoolVar(&simulateFlag, "simulate", false, "Use simulated camera, GPIO and printer")
	pf.BoolVar(&logJSONFlag, "log-json", false, "Log JSON lines instead of console output")
	pf.StringVar(&logFileFlag, "log-file", "", "Also append JSON logs to this file")
	pf.StringVar(&ssmPrefixFlag, "ssm-prefix", "", "Fetch missing API keys from AWS SSM Parameter Store under this prefix (or POETRY_SSM_PREFIX)")

	rootCmd.AddCommand(runCmd, probeCmd, describeCmd, printTestCmd, exportCmd, runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads configuration from every layer the flags enable.
func loadConfig(ctx context.Context) (*config.Config, error) {
	opts := config.Options{EnvFile: envFileFlag, File: configFlag}
	prefix := ssmPrefixFlag
	if prefix == "" {
		prefix = os.Getenv("POETRY_SSM_PREFIX")
	}
	if prefix != "" {
		secrets, err := config.NewSSMSecretsFromDefault(ctx, prefix)
		if err != nil {
			return nil, err
		}
		opts.Secrets = secrets
	}
	cfg, err := config.Load(ctx, opts)
	if err != nil {
		return nil, err
	}
	if simulateFlag {
		cfg.Devices.Simulate = true
	}
	return cfg, nil
}

// openStore builds the run store: artifact directory, SQLite ledger (or an
// in-memory one without a ledger path) and the S3 mirror when a bucket is set.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	artifacts, err := store.NewArtifacts(cfg.Storage.ContentDir)
	if err != nil {
		return nil, err
	}

	var ledger store.Ledger = store.NewMemoryLedger()
	if cfg.Storage.LedgerPath != "" {
		sq, err := store.OpenSQLite(cfg.Storage.LedgerPath)
		if err != nil {
			return nil, err
		}
		ledger = sq
	}

	var mirror store.Mirror
	if cfg.Storage.S3Bucket != "" {
		m, err := store.NewS3MirrorFromDefault(ctx, cfg.Storage.S3Bucket, cfg.Storage.S3Prefix)
		if err != nil {
			ledger.Close()
			return nil, err
		}
		mirror = m
		log.Debug().Str("bucket", cfg.Storage.S3Bucket).Msg("S3 mirror enabled")
	}
	return store.New(artifacts, ledger, mirror), nil
}
