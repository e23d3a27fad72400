package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"project_handoff/internal/config"
	"project_handoff/internal/infrastructure"
)

var (
	verbose bool
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "handoffctl",
	Short: "Operate the chatbot handoff backend",
	Long: `Operator tooling for the chatbot handoff backend.

Quick Start:
  handoffctl migrate                      # create tables
  handoffctl create-admin alice -p secret # add an admin account
  handoffctl history telegram:42          # print a conversation
  handoffctl watch telegram:42 --as alice # follow and answer it live`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(migrateCmd, createAdminCmd, tokenCmd, historyCmd, watchCmd)
}

// cliLogger writes human readable logs to stderr so they do not interleave
// with rendered output.
func cliLogger() zerolog.Logger {
	lvl := zerolog.WarnLevel
	if verbose {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}

func openDatabase(ctx context.Context, cfg *config.Config) (*infrastructure.PostgresClient, error) {
	pg, err := infrastructure.NewPostgresClient(ctx, cfg.Database.URL, 2)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pg, nil
}
