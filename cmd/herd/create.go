package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var createFlags struct {
	roles   []string
	noStart bool
	out     outputFlags
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the VMs of a fleet",
	Long: `Create every VM of the fleet, or of the roles given with --role.

For each VM herd defines the domain, attaches the display, boot medium,
NICs and disks in that order, and starts it. A VM that fails is deleted
together with its volumes and the next VM is attempted.

Exit status is 0 when every failed VM was rolled back cleanly, 2 when a
rollback left something behind, and 1 on configuration or connection
errors.`,
	Example: `  herd create
  herd create --role worker --no-start -o yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := createFlags.out.formatter()
		if err != nil {
			return err
		}

		fleet, err := loadFleet()
		if err != nil {
			return err
		}

		orch, cfg, err := newOrchestrator(cmd, fleet, !createFlags.noStart)
		if err != nil {
			return err
		}
		if cfg.DisplayPassword == "" {
			logger.Warn("HERD_DISPLAY_PASSWORD is not set, displays will not require a password")
		}

		summary, err := orch.Create(cmd.Context(), fleet, createFlags.roles)
		if err != nil {
			return err
		}
		if cmd.Context().Err() != nil {
			logger.Warn("interrupted, remaining VMs were not created", zap.Int("processed", len(summary.Results)))
		}

		return printSummary(cmd, formatter, summary)
	},
}

func init() {
	createCmd.Flags().StringSliceVar(&createFlags.roles, "role", nil, "role to create (repeatable, default: all roles)")
	createCmd.Flags().BoolVar(&createFlags.noStart, "no-start", false, "leave VMs shut off after creation")
	createFlags.out.register(createCmd)
}
