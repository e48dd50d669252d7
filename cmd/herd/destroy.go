package main

import (
	"github.com/spf13/cobra"
)

var destroyFlags struct {
	roles    []string
	prefixes []string
	out      outputFlags
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Destroy the VMs of a fleet",
	Long: `Power off and delete, volumes included, every VM whose name starts with
one of the fleet's role names. --role narrows this to some roles.

--prefix matches arbitrary name prefixes. Given alone it replaces the
role names, so only VMs matching the prefixes are destroyed. Given with
--role it extends the selected roles.

Destroy is idempotent: running it again when nothing matches succeeds.`,
	Example: `  herd destroy
  herd destroy --role worker
  herd destroy --prefix scratch-`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := destroyFlags.out.formatter()
		if err != nil {
			return err
		}

		fleet, err := loadFleet()
		if err != nil {
			return err
		}

		prefixes, err := scopePrefixes(fleet, destroyFlags.roles, destroyFlags.prefixes)
		if err != nil {
			return err
		}

		orch, _, err := newOrchestrator(cmd, fleet, false)
		if err != nil {
			return err
		}

		summary, err := orch.Destroy(cmd.Context(), prefixes)
		if err != nil {
			return err
		}
		return printSummary(cmd, formatter, summary)
	},
}

func init() {
	destroyCmd.Flags().StringSliceVar(&destroyFlags.roles, "role", nil, "role to destroy (repeatable, default: all roles)")
	destroyCmd.Flags().StringSliceVar(&destroyFlags.prefixes, "prefix", nil, "VM name prefix to destroy, replaces the role names unless --role is set (repeatable)")
	destroyFlags.out.register(destroyCmd)
}
