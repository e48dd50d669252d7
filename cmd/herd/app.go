package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jbweber/herd/api/v1alpha1"
	"github.com/jbweber/herd/internal/config"
	"github.com/jbweber/herd/internal/libvirt"
	"github.com/jbweber/herd/internal/loader"
	"github.com/jbweber/herd/internal/output"
	"github.com/jbweber/herd/internal/provision"
	"github.com/jbweber/herd/internal/template"
)

// addConnectionFlags registers the flags config.Load binds. Passwords are
// only read from the environment.
func addConnectionFlags(fs *pflag.FlagSet) {
	fs.String(config.FlagName(config.KeyTransport), string(libvirt.TransportSSH), "transport to libvirtd (ssh, unix)")
	fs.String(config.FlagName(config.KeyHost), "", "hypervisor host")
	fs.Int(config.FlagName(config.KeySSHPort), libvirt.DefaultSSHPort, "SSH port")
	fs.String(config.FlagName(config.KeyUsername), "", "SSH user")
	fs.String(config.FlagName(config.KeySSHKey), "", "SSH private key file")
	fs.String(config.FlagName(config.KeyKnownHosts), "", "known_hosts file (default: ~/.ssh/known_hosts)")
	fs.Bool(config.FlagName(config.KeyInsecureHostKey), false, "skip SSH host key verification")
	fs.String(config.FlagName(config.KeySocket), libvirt.DefaultSocket, "libvirt socket path")
	fs.Duration(config.FlagName(config.KeyTimeout), libvirt.DefaultTimeout, "connection timeout")
}

// outputFlags are shared by every command that prints results.
type outputFlags struct {
	format    string
	noHeaders bool
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.format, "output", "o", string(output.FormatTable), "output format (table, yaml, json)")
	cmd.Flags().BoolVar(&o.noHeaders, "no-headers", false, "omit table headers")
}

func (o *outputFlags) formatter() (output.Formatter, error) {
	if err := output.ValidateFormat(o.format); err != nil {
		return nil, err
	}
	return output.NewFormatter(output.Options{
		Format:    output.Format(o.format),
		NoHeaders: o.noHeaders,
	})
}

func loadFleet() (*v1alpha1.Fleet, error) {
	return loader.LoadFromFile(globals.fleetFile)
}

func loadComposer() (*template.Composer, error) {
	if globals.templatesDir == "" {
		return template.Default()
	}
	return template.Load(globals.templatesDir)
}

// newOrchestrator wires an orchestrator for fleet from the resolved
// credentials. Nothing is dialed until a batch runs.
func newOrchestrator(cmd *cobra.Command, fleet *v1alpha1.Fleet, start bool) (*provision.Orchestrator, *config.Config, error) {
	cfg, err := config.Load(globals.envFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	composer, err := loadComposer()
	if err != nil {
		return nil, nil, err
	}

	connector := libvirt.NewConnector(cfg.LibvirtOptions(fleet.Spec.Storage.PoolName), logger)
	orch, err := provision.New(provision.LibvirtConnector(connector), composer, provision.Options{
		Fleet:           fleet.Name,
		DisplayPassword: cfg.DisplayPassword,
		Start:           start,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return orch, cfg, nil
}

// scopePrefixes returns the name prefixes a destroy or list acts on.
// Explicit prefixes alone are used as given. Otherwise the selected roles,
// or every role of the fleet, are extended by the prefixes.
func scopePrefixes(fleet *v1alpha1.Fleet, roles, prefixes []string) ([]string, error) {
	if len(roles) == 0 && len(prefixes) > 0 {
		return prefixes, nil
	}

	selected, err := loader.SelectRoles(fleet, roles)
	if err != nil {
		return nil, err
	}

	scope := make([]string, 0, len(selected)+len(prefixes))
	for _, r := range selected {
		scope = append(scope, r.Name)
	}
	return append(scope, prefixes...), nil
}

// printSummary prints s and turns a partial failure into its exit status.
func printSummary(cmd *cobra.Command, formatter output.Formatter, s *provision.Summary) error {
	result, err := formatter.FormatSummary(s)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), result)

	if code := s.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}
