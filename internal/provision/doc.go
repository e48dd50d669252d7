// Package provision creates and destroys roles of VMs on a libvirt host.
//
// Creation walks the ordinals of a role in order. Each VM is defined, then
// its devices are added one at a time: display, boot medium, one NIC per
// network slot and one disk per disk slot. The first failure rolls the VM
// back by deleting it with its volumes; the VMs created before it stay.
// A rollback that cannot complete is reported as an
// errdefs.UncleanRollbackError so the operator knows remote resources may
// be left behind.
//
// Destruction rediscovers VMs by querying the host and matching names by
// prefix, so it needs no local state and can safely be run again.
//
// All calls of one invocation go through a single Session, acquired from a
// Connector at entry and closed on every exit path.
package provision
