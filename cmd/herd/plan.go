package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/herd/internal/provision"
)

var planFlags struct {
	roles []string
	out   outputFlags
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the VMs create would build",
	Long: `Print the names, display ports, volume paths and bridges create would use,
without contacting the hypervisor. Only the fleet document is read.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := planFlags.out.formatter()
		if err != nil {
			return err
		}

		fleet, err := loadFleet()
		if err != nil {
			return err
		}

		plan, err := provision.Plan(fleet, planFlags.roles)
		if err != nil {
			return err
		}

		result, err := formatter.FormatPlan(plan)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	planCmd.Flags().StringSliceVar(&planFlags.roles, "role", nil, "role to plan (repeatable, default: all roles)")
	planFlags.out.register(planCmd)
}
