package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jbweber/herd/internal/config"
	"github.com/jbweber/herd/internal/libvirt"
)

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test the connection to libvirt",
	Long: `Connect to the libvirt daemon with the configured credentials and display
version information. When a fleet document is present, the state of its
storage pool is shown too.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(globals.envFile, cmd.Flags())
		if err != nil {
			return err
		}

		var pool string
		if fleet, err := loadFleet(); err != nil {
			logger.Debug("no fleet document, skipping pool check", zap.Error(err))
		} else {
			pool = fleet.Spec.Storage.PoolName
		}

		connector := libvirt.NewConnector(cfg.LibvirtOptions(pool), logger)
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Testing connection to %s...\n", connector.Target())

		sess, err := connector.Connect(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := sess.Close(); closeErr != nil {
				logger.Warn("failed to close libvirt connection", zap.Error(closeErr))
			}
		}()

		fmt.Fprintln(w, "✓ Connected to libvirt daemon")

		host, err := sess.Ping(cmd.Context())
		if err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}
		fmt.Fprintf(w, "✓ Libvirt version: %s\n", host.LibVersion)
		fmt.Fprintf(w, "✓ Hypervisor hostname: %s\n", host.Hostname)

		if pool != "" {
			info, err := sess.PoolInfo(cmd.Context())
			if err != nil {
				fmt.Fprintf(w, "✗ Storage pool %s: %v\n", pool, err)
			} else {
				fmt.Fprintf(w, "✓ Storage pool %s (%s, %s): %.1f GB available of %.1f GB\n",
					info.Name, info.Type, info.State, info.AvailableGB(), info.CapacityGB())
			}
		}

		fmt.Fprintln(w, "\nConnection test successful!")
		return nil
	},
}
