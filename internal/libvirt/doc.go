// Package libvirt is herd's client for the remote management plane.
//
// A Connector dials libvirtd, either over SSH to the daemon's unix socket
// on the hypervisor or through a local socket, and opens qemu:///system:
//
//	conn := libvirt.NewConnector(libvirt.Options{
//	    Host:     "hv1.example.com",
//	    Username: "root",
//	    Password: os.Getenv("HERD_PASSWORD"),
//	    Pool:     "herd-vms",
//	}, logger)
//
//	sess, err := conn.Connect(ctx)
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
// A Session exposes the handful of VM operations the orchestrator needs:
// define a VM, add a device, start, power off, delete and query. VMs are
// addressed by their domain UUID. Disk devices get their backing volume
// from the session's storage pool through internal/storage.
//
// Consumer-Side Interfaces:
//
// Session depends on the unexported domainClient and volumeStore
// interfaces, which *libvirt.Libvirt and *storage.Manager satisfy
// implicitly. Tests substitute hand-written mocks. The orchestrator in
// internal/provision in turn declares its own Session interface.
package libvirt
