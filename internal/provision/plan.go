package provision

import (
	"github.com/jbweber/herd/api/v1alpha1"
	"github.com/jbweber/herd/internal/loader"
	"github.com/jbweber/herd/internal/naming"
)

// PlannedVM is what Create would build for one ordinal.
type PlannedVM struct {
	Role        string   `json:"role" yaml:"role"`
	Name        string   `json:"name" yaml:"name"`
	DisplayPort int      `json:"displayPort" yaml:"displayPort"`
	Volumes     []string `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	Bridges     []string `json:"bridges,omitempty" yaml:"bridges,omitempty"`
}

// Plan returns the VMs Create would build for the selected roles, in
// creation order. It makes no remote calls.
func Plan(fleet *v1alpha1.Fleet, roles []string) ([]PlannedVM, error) {
	selected, err := loader.SelectRoles(fleet, roles)
	if err != nil {
		return nil, err
	}

	var plan []PlannedVM
	for _, role := range selected {
		for _, ident := range naming.AllocateAll(role.Name, role.Spec.DisplayPort, role.Spec.Count) {
			vm := PlannedVM{
				Role:        role.Name,
				Name:        ident.Name,
				DisplayPort: ident.DisplayPort,
			}
			for i := range role.Spec.Disks {
				vm.Volumes = append(vm.Volumes, naming.VolumePath(fleet.Spec.Storage.PoolPath, ident.Name, i))
			}
			for _, slot := range role.Spec.Networks {
				vm.Bridges = append(vm.Bridges, slot.Value)
			}
			plan = append(plan, vm)
		}
	}
	return plan, nil
}
