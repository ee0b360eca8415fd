package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShabariRepo/bonito-sub002/internal/policyvalidate"
	"github.com/ShabariRepo/bonito-sub002/internal/routing"
)

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Validate routing policy rules documents",
	}
	cmd.AddCommand(newPolicyValidateCmd())
	return cmd
}

func newPolicyValidateCmd() *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:   "validate <rules-file.json>",
		Short: "Validate a RoutingPolicy rules document against its strategy's closed schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading rules file: %w", err)
			}
			if err := policyvalidate.ValidateRules(routing.Strategy(strategy), string(data)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rules are valid for strategy %q\n", strategy)
			return nil
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", string(routing.StrategyFailover), "routing strategy to validate against")
	return cmd
}
