package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"project_handoff/internal/config"
	"project_handoff/internal/repository"
	"project_handoff/internal/usecases"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		pg, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := pg.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Schema is up to date"))
		return nil
	},
}

var adminPassword string

var createAdminCmd = &cobra.Command{
	Use:   "create-admin <username>",
	Short: "Create an admin account if it does not exist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		password := adminPassword
		if password == "" {
			password = cfg.Auth.AdminPassword
		}
		if password == "" {
			return errors.New("a password is required (--password or ADMIN_PASSWORD)")
		}

		pg, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pg.Close()

		auth := usecases.NewAuthUsecase(repository.NewAdminRepository(pg.Pool), cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err := auth.EnsureAdmin(cmd.Context(), args[0], password); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Admin "+args[0]+" is ready"))
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <admin-id>",
	Short: "Issue a bearer token for an admin",
	Long:  `Signs a token with JWT_SECRET. Useful for scripting against the REST API and the socket gateway.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err == nil {
			err = cfg.ValidateBackend()
		}
		if err != nil {
			return err
		}
		token, err := usecases.NewAuthUsecase(nil, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).IssueToken(args[0], "admin")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	createAdminCmd.Flags().StringVarP(&adminPassword, "password", "p", "", "Password for the new admin (defaults to ADMIN_PASSWORD)")
}
