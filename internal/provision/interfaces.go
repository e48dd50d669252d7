package provision

import (
	"context"

	"github.com/jbweber/herd/api/v1alpha1"
	"github.com/jbweber/herd/internal/libvirt"
	"github.com/jbweber/herd/internal/template"
)

// Session defines the remote operations the orchestrator needs.
//
// In production, this is satisfied by *libvirt.Session.
// In tests, this is satisfied by mock implementations.
type Session interface {
	// EnsurePool creates the storage pool if it does not exist
	EnsurePool(ctx context.Context, spec v1alpha1.StorageSpec) error

	// CreateVM defines a stopped VM and returns its id
	CreateVM(ctx context.Context, spec *template.VMSpec) (libvirt.VMRef, error)

	// CreateDevice adds a device to a VM and returns the device id
	CreateDevice(ctx context.Context, dev template.DeviceSpec) (string, error)

	// Start boots a VM
	Start(ctx context.Context, id string) error

	// PowerOff stops a VM; stopping a stopped VM is a no-op
	PowerOff(ctx context.Context, id string) error

	// Delete removes a VM, and its volumes when destroyVolumes is set
	Delete(ctx context.Context, id string, destroyVolumes bool) error

	// Query lists the VMs on the host
	Query(ctx context.Context) ([]libvirt.VMRecord, error)

	// Close releases the session
	Close() error
}

// Connector opens a Session.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Session, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context) (Session, error) {
	return f(ctx)
}

// LibvirtConnector adapts a libvirt.Connector to the Connector interface.
func LibvirtConnector(c *libvirt.Connector) Connector {
	return ConnectorFunc(func(ctx context.Context) (Session, error) {
		sess, err := c.Connect(ctx)
		if err != nil {
			return nil, err
		}
		return sess, nil
	})
}
