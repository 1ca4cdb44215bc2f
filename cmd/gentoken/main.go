// Package main issues a JWT for a user, creating the user row when it does not exist.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/totem-events/backend/config"
	"github.com/totem-events/backend/internal/auth"
	"github.com/totem-events/backend/internal/users"
	"github.com/totem-events/backend/pkg/database"
)

var (
	emailFlag string
	nameFlag  string
	adminFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "gentoken",
	Short: "Issue a bearer token for the events API",
	Long: `gentoken upserts a user by email and prints a signed JWT for it.

Examples:
  gentoken --email ana@example.com --name "Ana"
  gentoken -e admin@example.com --admin`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&emailFlag, "email", "e", "", "User email (required)")
	rootCmd.Flags().StringVarP(&nameFlag, "name", "n", "", "Display name")
	rootCmd.Flags().BoolVar(&adminFlag, "admin", false, "Grant the admin flag")
	_ = rootCmd.MarkFlagRequired("email")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), 2, zap.NewNop())
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, zap.NewNop()); err != nil {
		return err
	}

	user, err := users.NewRepository(pool).Upsert(ctx, emailFlag, nameFlag, adminFlag)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	token, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours).Generate(*user)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "user %s (%s) admin=%t\n", user.ID, user.Email, user.Admin)
	fmt.Fprintln(out, token)
	fmt.Fprintf(out, "\ncurl -H 'Authorization: Bearer %s' http://localhost:%s/events\n", token, cfg.Server.Port)
	return nil
}
