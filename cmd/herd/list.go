package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listFlags struct {
	roles []string
	out   outputFlags
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the VMs of a fleet",
	Long: `List the VMs on the hypervisor whose name starts with one of the fleet's
role names, with their state, labels and devices.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   One YAML document per VM
  -o json   JSON array`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := listFlags.out.formatter()
		if err != nil {
			return err
		}

		fleet, err := loadFleet()
		if err != nil {
			return err
		}

		prefixes, err := scopePrefixes(fleet, listFlags.roles, nil)
		if err != nil {
			return err
		}

		orch, _, err := newOrchestrator(cmd, fleet, false)
		if err != nil {
			return err
		}

		records, err := orch.List(cmd.Context(), prefixes)
		if err != nil {
			return fmt.Errorf("failed to list VMs: %w", err)
		}

		result, err := formatter.FormatVMList(records)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	listCmd.Flags().StringSliceVar(&listFlags.roles, "role", nil, "role to list (repeatable, default: all roles)")
	listFlags.out.register(listCmd)
}
