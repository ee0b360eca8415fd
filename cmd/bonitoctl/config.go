package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	gatewaycore "github.com/ShabariRepo/bonito-sub002"
	"github.com/ShabariRepo/bonito-sub002/plugin"

	_ "github.com/ShabariRepo/bonito-sub002/internal/plugins/cache"
	_ "github.com/ShabariRepo/bonito-sub002/internal/plugins/logger"
	_ "github.com/ShabariRepo/bonito-sub002/internal/plugins/maxtoken"
	_ "github.com/ShabariRepo/bonito-sub002/internal/plugins/wordfilter"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate a gateway config file",
	}
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a gateway configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			cfg, err := gatewaycore.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := gatewaycore.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config is valid\n")
			fmt.Fprintf(out, "  Strategy:  %s\n", cfg.Strategy.Mode)
			fmt.Fprintf(out, "  Targets:   %d\n", len(cfg.Targets))

			var targetNames []string
			for _, t := range cfg.Targets {
				targetNames = append(targetNames, t.VirtualKey)
			}
			fmt.Fprintf(out, "  Providers: %s\n", strings.Join(targetNames, ", "))

			if len(cfg.Plugins) > 0 {
				var pluginNames []string
				for _, p := range cfg.Plugins {
					status := "disabled"
					if p.Enabled {
						status = "enabled"
					}
					pluginNames = append(pluginNames, fmt.Sprintf("%s (%s)", p.Name, status))
				}
				fmt.Fprintf(out, "  Plugins:   %s\n", strings.Join(pluginNames, ", "))
			}
			return nil
		},
	}
}

func newPluginsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List all registered plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := plugin.RegisteredPlugins()
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "No plugins registered.")
				return nil
			}
			fmt.Fprintln(out, "Registered plugins:")
			for _, name := range names {
				factory, _ := plugin.GetFactory(name)
				p := factory()
				fmt.Fprintf(out, "  %-20s type=%s\n", name, p.Type())
			}
			return nil
		},
	}
}
