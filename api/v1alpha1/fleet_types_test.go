package v1alpha1

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

const fleetYAML = `
apiVersion: herd.cofront.xyz/v1alpha1
kind: Fleet
metadata:
  name: lab
spec:
  storage:
    poolPath: tank/vms
    bootImagePath: /mnt/iso/metal-amd64.iso
  roles:
    worker:
      count: 2
      cpu: 4
      memory: 8192
      disks:
        system: 20
        storage: 100
      networks:
        system: br0
        storage: br1
    controlplane:
      count: 3
      cpu: 2
      memory: 4096
      disks:
        system: 20
      networks:
        system: br0
`

func TestFleet_UnmarshalKeepsOrder(t *testing.T) {
	var f Fleet
	if err := yaml.Unmarshal([]byte(fleetYAML), &f); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if got := f.RoleNames(); strings.Join(got, ",") != "worker,controlplane" {
		t.Errorf("role order = %v, want [worker controlplane]", got)
	}

	worker := f.Spec.Roles[0].Spec
	if got := strings.Join(worker.Disks.Names(), ","); got != "system,storage" {
		t.Errorf("disk order = %s, want system,storage", got)
	}
	if worker.Disks[1].Value != 100 {
		t.Errorf("storage disk = %d, want 100", worker.Disks[1].Value)
	}
	if got := strings.Join(worker.Networks.Names(), ","); got != "system,storage" {
		t.Errorf("network order = %s, want system,storage", got)
	}
	if worker.Networks[1].Value != "br1" {
		t.Errorf("storage bridge = %q, want br1", worker.Networks[1].Value)
	}
	if worker.MemoryMiB != 8192 {
		t.Errorf("memory = %d, want 8192", worker.MemoryMiB)
	}
}

func TestSlots_UnmarshalErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "duplicate key",
			input:   "system: 20\nsystem: 30\n",
			wantErr: "duplicate key",
		},
		{
			name:    "not a mapping",
			input:   "- 20\n- 30\n",
			wantErr: "expected a mapping",
		},
		{
			name:    "wrong value type",
			input:   "system: big\n",
			wantErr: "system",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Slots[int]
			err := yaml.Unmarshal([]byte(tt.input), &s)
			if err == nil {
				t.Fatal("Unmarshal() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Unmarshal() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestRoleList_MarshalKeepsOrder(t *testing.T) {
	roles := RoleList{
		{Name: "worker", Spec: RoleSpec{Count: 1, Disks: Slots[int]{{Name: "b", Value: 1}, {Name: "a", Value: 2}}}},
		{Name: "controlplane", Spec: RoleSpec{Count: 1}},
	}

	data, err := yaml.Marshal(roles)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	out := string(data)
	if strings.Index(out, "worker:") > strings.Index(out, "controlplane:") {
		t.Errorf("Marshal() reordered roles:\n%s", out)
	}
	if strings.Index(out, "b: 1") > strings.Index(out, "a: 2") {
		t.Errorf("Marshal() reordered disk slots:\n%s", out)
	}

	var back RoleList
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back[0].Name != "worker" || back[0].Spec.Disks[0].Name != "b" {
		t.Errorf("round trip lost order: %+v", back)
	}
}
