package v1alpha1

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Fleet describes groups of VMs ("roles") and the storage they share.
//
// Example:
//
//	apiVersion: herd.cofront.xyz/v1alpha1
//	kind: Fleet
//	metadata:
//	  name: lab
//	spec:
//	  storage:
//	    poolPath: /var/lib/herd/vms
//	    bootImagePath: /var/lib/herd/iso/metal-amd64.iso
//	  roles:
//	    controlplane:
//	      count: 3
//	      cpu: 2
//	      memory: 4096
//	      disks:
//	        system: 20
//	      networks:
//	        system: br0
type Fleet struct {
	TypeMeta `json:",inline" yaml:",inline"`

	// +optional
	ObjectMeta `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	Spec FleetSpec `json:"spec" yaml:"spec"`
}

// FleetSpec is the desired shape of a fleet.
type FleetSpec struct {
	// Storage is shared by all roles.
	Storage StorageSpec `json:"storage" yaml:"storage"`

	// Roles in document order. Creation and the default destroy scope
	// follow this order.
	Roles RoleList `json:"roles" yaml:"roles"`
}

// StorageSpec configures where disk volumes live and which medium VMs boot from.
type StorageSpec struct {
	// PoolName is the libvirt storage pool that holds disk volumes.
	// Defaults to "herd-vms".
	// +optional
	PoolName string `json:"poolName,omitempty" yaml:"poolName,omitempty"`

	// PoolType is the pool backend, "dir" or "zfs". Defaults to "dir".
	// +optional
	PoolType string `json:"poolType,omitempty" yaml:"poolType,omitempty"`

	// PoolPath is the base path under which volumes are created. For a
	// zfs pool this is the dataset, e.g. "tank/vms".
	PoolPath string `json:"poolPath" yaml:"poolPath"`

	// EnsurePool creates and starts the pool when it does not exist.
	// +optional
	EnsurePool bool `json:"ensurePool,omitempty" yaml:"ensurePool,omitempty"`

	// BootImagePath is the install/boot medium attached as optical media.
	// The path is resolved on the hypervisor host.
	BootImagePath string `json:"bootImagePath" yaml:"bootImagePath"`
}

// RoleSpec is the shape shared by every VM of a role.
type RoleSpec struct {
	// Count is the number of VMs to create.
	// +kubebuilder:validation:Minimum=1
	Count int `json:"count" yaml:"count"`

	// CPU is the number of virtual CPUs.
	CPU int `json:"cpu" yaml:"cpu"`

	// MemoryMiB is the amount of memory in mebibytes.
	MemoryMiB int `json:"memory" yaml:"memory"`

	// DisplayPort is the first SPICE port of the role. Ordinal n uses
	// DisplayPort+n-1. Defaults to 5910 for controlplane and 5920 for worker.
	// +optional
	DisplayPort int `json:"displayPort,omitempty" yaml:"displayPort,omitempty"`

	// Disks maps disk slot names to sizes in GB, in attach order.
	Disks Slots[int] `json:"disks" yaml:"disks"`

	// Networks maps network slot names to host bridges, in attach order.
	Networks Slots[string] `json:"networks" yaml:"networks"`
}

// Role is a named RoleSpec.
type Role struct {
	Name string   `json:"name" yaml:"name"`
	Spec RoleSpec `json:"spec" yaml:"spec"`
}

// RoleList is a YAML mapping of role name to RoleSpec that keeps document order.
type RoleList []Role

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (l *RoleList) UnmarshalYAML(node *yaml.Node) error {
	var out RoleList
	err := decodeOrdered(node, func(key string, value *yaml.Node) error {
		var spec RoleSpec
		if err := value.Decode(&spec); err != nil {
			return err
		}
		out = append(out, Role{Name: key, Spec: spec})
		return nil
	})
	if err != nil {
		return err
	}
	*l = out
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface.
func (l RoleList) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, r := range l {
		if err := appendPair(node, r.Name, r.Spec); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// Slot is one entry of an ordered slot mapping.
type Slot[T any] struct {
	Name  string `json:"name" yaml:"name"`
	Value T      `json:"value" yaml:"value"`
}

// Slots is a YAML mapping of slot name to value that keeps document order.
type Slots[T any] []Slot[T]

// Names returns the slot names in order.
func (s Slots[T]) Names() []string {
	names := make([]string, 0, len(s))
	for _, slot := range s {
		names = append(names, slot.Name)
	}
	return names
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (s *Slots[T]) UnmarshalYAML(node *yaml.Node) error {
	var out Slots[T]
	err := decodeOrdered(node, func(key string, value *yaml.Node) error {
		var v T
		if err := value.Decode(&v); err != nil {
			return err
		}
		out = append(out, Slot[T]{Name: key, Value: v})
		return nil
	})
	if err != nil {
		return err
	}
	*s = out
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface.
func (s Slots[T]) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, slot := range s {
		if err := appendPair(node, slot.Name, slot.Value); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// decodeOrdered walks a mapping node in document order. Duplicate keys are
// rejected because they would silently drop a slot.
func decodeOrdered(node *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	seen := make(map[string]int, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if line, ok := seen[key.Value]; ok {
			return fmt.Errorf("line %d: duplicate key %q (first defined on line %d)", key.Line, key.Value, line)
		}
		seen[key.Value] = key.Line

		if err := fn(key.Value, value); err != nil {
			return fmt.Errorf("%s: %w", key.Value, err)
		}
	}
	return nil
}

func appendPair(node *yaml.Node, key string, value interface{}) error {
	var v yaml.Node
	if err := v.Encode(value); err != nil {
		return err
	}
	node.Content = append(node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&v,
	)
	return nil
}
