// Package naming derives deterministic identities for herd resources.
//
// A VM's name and display port are pure functions of its role, the role's
// base port, its 1-based ordinal and the role's count. Nothing is persisted:
// the same inputs recompute the same identity on create and on any later
// lookup.
package naming

import (
	"fmt"
	"strconv"
	"strings"
)

// minOrdinalWidth is the smallest zero-pad width used for ordinals.
const minOrdinalWidth = 2

// Identity is the derived identity of one VM.
type Identity struct {
	Name        string
	DisplayPort int
	Ordinal     int
}

// Width returns the ordinal zero-pad width for a role with count VMs:
// max(2, number of decimal digits in count).
func Width(count int) int {
	w := len(strconv.Itoa(count))
	if w < minOrdinalWidth {
		return minOrdinalWidth
	}
	return w
}

// Allocate returns the identity for ordinal within a role of count VMs.
//
// Example: Allocate("worker", 5920, 1, 3) → {worker01, 5920}
func Allocate(role string, basePort, ordinal, count int) Identity {
	return Identity{
		Name:        fmt.Sprintf("%s%0*d", role, Width(count), ordinal),
		DisplayPort: basePort + ordinal - 1,
		Ordinal:     ordinal,
	}
}

// AllocateAll returns identities for ordinals 1..count in order.
func AllocateAll(role string, basePort, count int) []Identity {
	ids := make([]Identity, 0, count)
	for ordinal := 1; ordinal <= count; ordinal++ {
		ids = append(ids, Allocate(role, basePort, ordinal, count))
	}
	return ids
}

// VolumeName returns the volume name for disk slot slotIndex (0-based) of a VM.
//
// Example: VolumeName("worker01", 0) → worker01-disk0
func VolumeName(vmName string, slotIndex int) string {
	return fmt.Sprintf("%s-disk%d", vmName, slotIndex)
}

// VolumePrefix returns the prefix shared by all disk volumes of a VM.
func VolumePrefix(vmName string) string {
	return vmName + "-disk"
}

// VolumePath returns the path of disk slot slotIndex under poolPath. The
// pool path is kept verbatim, so dataset-style paths like "tank/vms" work.
//
// Example: VolumePath("tank/vms", "worker01", 0) → tank/vms/worker01-disk0
func VolumePath(poolPath, vmName string, slotIndex int) string {
	return strings.TrimRight(poolPath, "/") + "/" + VolumeName(vmName, slotIndex)
}

// HasAnyPrefix reports whether name starts with one of prefixes.
func HasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
