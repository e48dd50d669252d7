// Package storage manages the libvirt storage pool and volumes that back
// herd's VM disks.
//
// Each disk slot of a VM is one volume named {vm}-disk{index} in the fleet's
// pool. Two pool backends are supported:
//   - dir: a directory on the hypervisor; volumes are files (raw or qcow2)
//   - zfs: a dataset such as tank/vms; volumes are zvols (raw only)
//
// The LibvirtClient interface lists the go-libvirt calls this package needs,
// so tests can substitute an in-memory pool. *libvirt.Libvirt satisfies it.
package storage
