// Package config loads the credentials and connection settings herd needs
// to reach the hypervisor. Values come from, in increasing precedence, the
// built-in defaults, an optional .env file, HERD_* environment variables
// and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jbweber/herd/internal/errdefs"
	"github.com/jbweber/herd/internal/libvirt"
)

// EnvPrefix prefixes every environment variable herd reads.
const EnvPrefix = "herd"

// Keys understood by Load. The environment variable of a key is its upper
// case form with the HERD_ prefix, and its flag replaces "_" with "-".
const (
	KeyTransport       = "transport"
	KeyHost            = "host"
	KeySSHPort         = "ssh_port"
	KeyUsername        = "username"
	KeyPassword        = "password"
	KeySSHKey          = "ssh_key"
	KeyKnownHosts      = "known_hosts"
	KeyInsecureHostKey = "insecure_host_key"
	KeySocket          = "socket"
	KeyDisplayPassword = "display_password"
	KeyTimeout         = "timeout"
)

var keys = []string{
	KeyTransport,
	KeyHost,
	KeySSHPort,
	KeyUsername,
	KeyPassword,
	KeySSHKey,
	KeyKnownHosts,
	KeyInsecureHostKey,
	KeySocket,
	KeyDisplayPassword,
	KeyTimeout,
}

// Config holds the resolved connection settings.
type Config struct {
	Transport       string
	Host            string
	SSHPort         int
	Username        string
	Password        string
	SSHKey          string
	KnownHosts      string
	InsecureHostKey bool
	Socket          string
	DisplayPassword string
	Timeout         time.Duration
}

// EnvVar returns the environment variable that sets key.
func EnvVar(key string) string {
	return strings.ToUpper(EnvPrefix + "_" + key)
}

// FlagName returns the command-line flag that sets key.
func FlagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// Load resolves the configuration. envFile may be empty or name a file
// that does not exist; both are ignored. Flags in flags named after a key
// override every other source when set. flags may be nil.
func Load(envFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault(KeyTransport, string(libvirt.TransportSSH))
	v.SetDefault(KeySSHPort, libvirt.DefaultSSHPort)
	v.SetDefault(KeySocket, libvirt.DefaultSocket)
	v.SetDefault(KeyTimeout, libvirt.DefaultTimeout)

	if envFile != "" {
		values, err := readEnvFile(envFile)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(values); err != nil {
			return nil, &errdefs.ConfigurationError{Field: envFile, Err: err}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if flags != nil {
		for _, key := range keys {
			if f := flags.Lookup(FlagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	cfg := &Config{
		Transport:       v.GetString(KeyTransport),
		Host:            v.GetString(KeyHost),
		SSHPort:         v.GetInt(KeySSHPort),
		Username:        v.GetString(KeyUsername),
		Password:        v.GetString(KeyPassword),
		SSHKey:          v.GetString(KeySSHKey),
		KnownHosts:      v.GetString(KeyKnownHosts),
		InsecureHostKey: v.GetBool(KeyInsecureHostKey),
		Socket:          v.GetString(KeySocket),
		DisplayPassword: v.GetString(KeyDisplayPassword),
		Timeout:         v.GetDuration(KeyTimeout),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readEnvFile reads KEY=VALUE lines written with the same HERD_* names as
// the environment, and returns them keyed like the config keys.
func readEnvFile(path string) (map[string]any, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, &errdefs.ConfigurationError{Field: path, Err: err}
	}

	f := viper.New()
	f.SetConfigFile(path)
	f.SetConfigType("env")
	if err := f.ReadInConfig(); err != nil {
		return nil, &errdefs.ConfigurationError{Field: path, Err: fmt.Errorf("failed to read env file: %w", err)}
	}

	values := make(map[string]any)
	for _, key := range keys {
		// viper lowercases env file keys
		if name := strings.ToLower(EnvVar(key)); f.IsSet(name) {
			values[key] = f.Get(name)
		}
	}
	return values, nil
}

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	var problems []string

	switch libvirt.Transport(c.Transport) {
	case libvirt.TransportSSH:
		if c.Host == "" {
			problems = append(problems, "missing "+EnvVar(KeyHost))
		}
		if c.Username == "" {
			problems = append(problems, "missing "+EnvVar(KeyUsername))
		}
		if c.Password == "" && c.SSHKey == "" {
			problems = append(problems, fmt.Sprintf("missing %s or %s", EnvVar(KeyPassword), EnvVar(KeySSHKey)))
		}
		if c.SSHPort < 1 || c.SSHPort > 65535 {
			problems = append(problems, fmt.Sprintf("%s %d out of range 1..65535", EnvVar(KeySSHPort), c.SSHPort))
		}
	case libvirt.TransportUnix:
	default:
		problems = append(problems, fmt.Sprintf("%s %q is not one of ssh, unix", EnvVar(KeyTransport), c.Transport))
	}

	if c.Socket == "" {
		problems = append(problems, "missing "+EnvVar(KeySocket))
	}
	if c.Timeout <= 0 {
		problems = append(problems, fmt.Sprintf("%s must be positive, got %s", EnvVar(KeyTimeout), c.Timeout))
	}

	if len(problems) > 0 {
		return &errdefs.ConfigurationError{Field: "credentials", Err: errors.New(strings.Join(problems, "; "))}
	}
	return nil
}

// LibvirtOptions returns connector options for the settings, creating disk
// volumes in pool.
func (c *Config) LibvirtOptions(pool string) libvirt.Options {
	return libvirt.Options{
		Transport:       libvirt.Transport(c.Transport),
		Host:            c.Host,
		Port:            c.SSHPort,
		Username:        c.Username,
		Password:        c.Password,
		KeyFile:         c.SSHKey,
		KnownHosts:      c.KnownHosts,
		InsecureHostKey: c.InsecureHostKey,
		Socket:          c.Socket,
		Timeout:         c.Timeout,
		Pool:            pool,
	}
}
