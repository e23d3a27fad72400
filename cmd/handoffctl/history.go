package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"project_handoff/internal/config"
	"project_handoff/internal/repository"
	"project_handoff/internal/timeline"
)

var (
	historyLimit  int
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history <user-id>",
	Short: "Print a conversation",
	Long:  `Prints the newest turns of a conversation, split into user, bot and admin messages, followed by who owns it.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := args[0]
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		pg, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pg.Close()

		turns, err := repository.NewTurnRepository(pg.Pool).ListByUser(cmd.Context(), userID, historyLimit)
		if err != nil {
			return fmt.Errorf("load turns: %w", err)
		}
		state, err := repository.NewOwnershipRepository(pg.Pool).Get(cmd.Context(), userID)
		if err != nil {
			return fmt.Errorf("load ownership: %w", err)
		}

		return writeHistory(cmd.OutOrStdout(), historyFormat, userID, state, timeline.FromTurns(turns).Entries())
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Number of turns to load")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "text", "Output format (text, json, yaml)")
}
