package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShabariRepo/bonito-sub002/internal/auth"
	"github.com/ShabariRepo/bonito-sub002/internal/store"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Issue or revoke gateway keys",
	}
	cmd.AddCommand(newKeysIssueCmd())
	cmd.AddCommand(newKeysRevokeCmd())
	return cmd
}

func newKeysIssueCmd() *cobra.Command {
	var (
		dsn       string
		orgID     string
		teamID    string
		name      string
		rateLimit int
		models    string
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new gateway key for an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" {
				return fmt.Errorf("--org is required")
			}
			raw, err := auth.GenerateKey()
			if err != nil {
				return err
			}

			var allowed []string
			if models != "" {
				allowed = strings.Split(models, ",")
			}

			s, err := openStore(dsn)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer s.Close()

			key := store.GatewayKey{
				ID:            uuid.NewString(),
				OrgID:         orgID,
				KeyHash:       auth.HashKey(raw),
				KeyPrefix:     raw[:12],
				Name:          name,
				TeamID:        teamID,
				RateLimit:     rateLimit,
				AllowedModels: allowed,
			}
			if err := s.CreateGatewayKey(cmd.Context(), key); err != nil {
				return fmt.Errorf("create gateway key: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Issued key for org %s:\n\n  %s\n\nStore this now — it is never shown again.\n", orgID, raw)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "db", "", "SQLite DSN override (default: DATABASE_URL/SQLITE_PATH env)")
	cmd.Flags().StringVar(&orgID, "org", "", "organization ID (required)")
	cmd.Flags().StringVar(&teamID, "team", "", "team ID")
	cmd.Flags().StringVar(&name, "name", "", "human-readable key label")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 60, "requests per minute")
	cmd.Flags().StringVar(&models, "models", "", "comma-separated model allow-list (empty = unrestricted)")
	return cmd
}

func newKeysRevokeCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke a gateway key by its ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(dsn)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer s.Close()

			if err := s.RevokeGatewayKey(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("revoke gateway key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked key %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "db", "", "SQLite DSN override (default: DATABASE_URL/SQLITE_PATH env)")
	return cmd
}
