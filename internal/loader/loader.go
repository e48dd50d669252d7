// Package loader loads and validates Fleet documents from YAML files.
//
// Every failure is returned as an *errdefs.ConfigurationError naming the
// offending field, and is detected before any remote call is made.
package loader

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/herd/api/v1alpha1"
	"github.com/jbweber/herd/internal/errdefs"
)

// roleNamePattern keeps role names usable as VM name prefixes and volume names.
var roleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

const (
	minPort = 1
	maxPort = 65535
)

// LoadFromFile loads a Fleet from a YAML file.
// The file must be in the herd.cofront.xyz/v1alpha1 format.
func LoadFromFile(path string) (*v1alpha1.Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errdefs.ConfigurationError{Field: path, Err: err}
	}

	return LoadFromYAML(data)
}

// LoadFromYAML loads a Fleet from YAML bytes, applies defaults and validates it.
func LoadFromYAML(data []byte) (*v1alpha1.Fleet, error) {
	var fleet v1alpha1.Fleet
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		return nil, &errdefs.ConfigurationError{Err: fmt.Errorf("failed to unmarshal YAML: %w", err)}
	}

	if fleet.APIVersion == "" {
		return nil, errdefs.Configf("apiVersion", "missing required field")
	}
	if fleet.Kind == "" {
		return nil, errdefs.Configf("kind", "missing required field")
	}
	if fleet.APIVersion != v1alpha1.APIVersion() {
		return nil, errdefs.Configf("apiVersion", "unsupported apiVersion: %s (expected: %s)", fleet.APIVersion, v1alpha1.APIVersion())
	}
	if fleet.Kind != v1alpha1.FleetKind {
		return nil, errdefs.Configf("kind", "unsupported kind: %s (expected: %s)", fleet.Kind, v1alpha1.FleetKind)
	}

	applyDefaults(&fleet)

	if err := validateSpec(&fleet); err != nil {
		return nil, err
	}

	return &fleet, nil
}

// SelectRoles returns the named roles in document order. An empty names
// list selects every role.
func SelectRoles(fleet *v1alpha1.Fleet, names []string) ([]v1alpha1.Role, error) {
	if len(names) == 0 {
		return fleet.Spec.Roles, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := fleet.Role(n); !ok {
			return nil, errdefs.Configf("role", "unknown role %q (known: %v)", n, fleet.RoleNames())
		}
		wanted[n] = true
	}

	var roles []v1alpha1.Role
	for _, r := range fleet.Spec.Roles {
		if wanted[r.Name] {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(fleet *v1alpha1.Fleet) {
	if fleet.Spec.Storage.PoolName == "" {
		fleet.Spec.Storage.PoolName = v1alpha1.DefaultPoolName
	}
	if fleet.Spec.Storage.PoolType == "" {
		fleet.Spec.Storage.PoolType = v1alpha1.DefaultPoolType
	}

	for i := range fleet.Spec.Roles {
		role := &fleet.Spec.Roles[i]
		if role.Spec.DisplayPort == 0 {
			role.Spec.DisplayPort = v1alpha1.DefaultDisplayPort(role.Name)
		}
	}
}

// validateSpec validates the Fleet spec for required fields and consistency.
func validateSpec(fleet *v1alpha1.Fleet) error {
	storage := fleet.Spec.Storage
	if storage.PoolPath == "" {
		return errdefs.Configf("spec.storage.poolPath", "is required")
	}
	if storage.BootImagePath == "" {
		return errdefs.Configf("spec.storage.bootImagePath", "is required")
	}
	if storage.PoolType != "dir" && storage.PoolType != "zfs" {
		return errdefs.Configf("spec.storage.poolType", "must be dir or zfs, got %q", storage.PoolType)
	}

	if len(fleet.Spec.Roles) == 0 {
		return errdefs.Configf("spec.roles", "must define at least one role")
	}

	for _, role := range fleet.Spec.Roles {
		if err := validateRole(role); err != nil {
			return err
		}
	}

	if err := validateRoleNames(fleet.Spec.Roles); err != nil {
		return err
	}
	return validatePortRanges(fleet.Spec.Roles)
}

func validateRole(role v1alpha1.Role) error {
	field := "spec.roles." + role.Name
	spec := role.Spec

	if !roleNamePattern.MatchString(role.Name) {
		return errdefs.Configf(field, "role name must match %s", roleNamePattern)
	}
	if spec.Count < 1 {
		return errdefs.Configf(field+".count", "must be at least 1, got %d", spec.Count)
	}
	if spec.CPU <= 0 {
		return errdefs.Configf(field+".cpu", "must be greater than 0")
	}
	if spec.MemoryMiB <= 0 {
		return errdefs.Configf(field+".memory", "must be greater than 0")
	}
	if spec.DisplayPort == 0 {
		return errdefs.Configf(field+".displayPort", "is required for role %q", role.Name)
	}
	if spec.DisplayPort < minPort || role.LastPort() > maxPort {
		return errdefs.Configf(field+".displayPort", "ports %d-%d fall outside %d-%d", spec.DisplayPort, role.LastPort(), minPort, maxPort)
	}

	for _, d := range spec.Disks {
		if d.Value <= 0 {
			return errdefs.Configf(field+".disks."+d.Name, "size must be greater than 0")
		}
	}

	for _, n := range spec.Networks {
		if n.Value == "" {
			return errdefs.Configf(field+".networks."+n.Name, "bridge is required")
		}
	}

	return nil
}

// validateRoleNames rejects role names that are prefixes of one another.
// Destroy and list select VMs by role name prefix, so worker would also
// match worker-gpu01.
func validateRoleNames(roles []v1alpha1.Role) error {
	for _, a := range roles {
		for _, b := range roles {
			if a.Name != b.Name && strings.HasPrefix(b.Name, a.Name) {
				return &errdefs.ConfigurationError{
					Field: "spec.roles." + b.Name,
					Err:   fmt.Errorf("role name starts with role %q: %w", a.Name, ErrRolePrefix),
				}
			}
		}
	}
	return nil
}

// ErrRolePrefix is wrapped by the error returned when one role name is a
// prefix of another.
var ErrRolePrefix = errors.New("role names overlap as prefixes")

// validatePortRanges rejects roles whose display port ranges overlap.
func validatePortRanges(roles []v1alpha1.Role) error {
	sorted := make([]v1alpha1.Role, len(roles))
	copy(sorted, roles)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Spec.DisplayPort < sorted[j].Spec.DisplayPort
	})

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.Spec.DisplayPort <= prev.LastPort() {
			return &errdefs.ConfigurationError{
				Field: "spec.roles." + cur.Name + ".displayPort",
				Err: fmt.Errorf("ports %d-%d overlap role %q (%d-%d): %w",
					cur.Spec.DisplayPort, cur.LastPort(), prev.Name, prev.Spec.DisplayPort, prev.LastPort(), ErrPortOverlap),
			}
		}
	}
	return nil
}

// ErrPortOverlap is wrapped by the error returned for overlapping display port ranges.
var ErrPortOverlap = errors.New("display port ranges overlap")
