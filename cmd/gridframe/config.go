package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/gridframe/pkg/config"
)

// newConfigCmd writes the effective configuration, after the config file,
// GRIDFRAME_* variables and flags are applied, as a YAML file.
func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config <file>",
		Short: "Write the effective configuration to a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(args[0], a.cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", args[0])
			return nil
		},
	}
}
