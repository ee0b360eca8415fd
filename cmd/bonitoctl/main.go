// Package main provides bonitoctl, the control-plane operator CLI: issue
// and revoke gateway keys, validate a gateway config file or routing
// policy rules document, and print build version info.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShabariRepo/bonito-sub002/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:           "bonitoctl",
		Short:         "bonitoctl manages gateway keys, config, and routing policies",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newKeysCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newPolicyCmd())
	root.AddCommand(newPluginsListCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "bonitoctl %s\n", version.String())
			return nil
		},
	}
}
