package template

import (
	"fmt"

	libvirtxml "libvirt.org/go/libvirtxml"
)

// DeviceKind identifies a device variant.
type DeviceKind string

const (
	KindDisplay      DeviceKind = "display"
	KindOpticalMedia DeviceKind = "optical-media"
	KindNIC          DeviceKind = "nic"
	KindDisk         DeviceKind = "disk"
)

// DeviceSpec is one of *Display, *OpticalMedia, *NIC or *Disk.
type DeviceSpec interface {
	// Kind returns the variant tag.
	Kind() DeviceKind
	// VMID returns the id of the VM the device belongs to.
	VMID() string
	// ID returns the device id, which is also its libvirt alias when the
	// device kind supports one.
	ID() string
	// Render returns the device XML.
	Render() (string, error)

	isDeviceSpec()
}

// Disk is a virtio disk backed by a pool volume.
type Disk struct {
	VM         string
	Slot       string
	SlotIndex  int
	VolumePath string
	SizeBytes  uint64
	XML        *libvirtxml.DomainDisk
}

func (d *Disk) Kind() DeviceKind { return KindDisk }
func (d *Disk) VMID() string     { return d.VM }
func (d *Disk) ID() string       { return aliasOf(d.XML.Alias) }
func (d *Disk) Render() (string, error) {
	return d.XML.Marshal()
}
func (*Disk) isDeviceSpec() {}

// VolumeFormat returns the driver format of the disk, "raw" when unset.
func (d *Disk) VolumeFormat() string {
	if d.XML.Driver != nil && d.XML.Driver.Type != "" {
		return d.XML.Driver.Type
	}
	return "raw"
}

// SetVolumeSource points the disk at a volume in a storage pool.
func (d *Disk) SetVolumeSource(pool, volume string) {
	d.XML.Source = &libvirtxml.DomainDiskSource{
		Volume: &libvirtxml.DomainDiskSourceVolume{
			Pool:   pool,
			Volume: volume,
		},
	}
}

// NIC is a bridged network interface. An empty MAC lets libvirt assign one.
type NIC struct {
	VM     string
	Slot   string
	Bridge string
	MAC    string
	XML    *libvirtxml.DomainInterface
}

func (n *NIC) Kind() DeviceKind { return KindNIC }
func (n *NIC) VMID() string     { return n.VM }
func (n *NIC) ID() string       { return aliasOf(n.XML.Alias) }
func (n *NIC) Render() (string, error) {
	return n.XML.Marshal()
}
func (*NIC) isDeviceSpec() {}

// Display is a remote display (SPICE or VNC) on a fixed port.
type Display struct {
	VM       string
	Port     int
	Password string
	XML      *libvirtxml.DomainGraphic
}

func (d *Display) Kind() DeviceKind { return KindDisplay }
func (d *Display) VMID() string     { return d.VM }

// ID returns "display-<port>"; libvirt does not accept aliases on graphics.
func (d *Display) ID() string { return fmt.Sprintf("display-%d", d.Port) }
func (d *Display) Render() (string, error) {
	return d.XML.Marshal()
}
func (*Display) isDeviceSpec() {}

// OpticalMedia is a read-only cdrom holding the boot medium.
type OpticalMedia struct {
	VM   string
	Path string
	XML  *libvirtxml.DomainDisk
}

func (o *OpticalMedia) Kind() DeviceKind { return KindOpticalMedia }
func (o *OpticalMedia) VMID() string     { return o.VM }
func (o *OpticalMedia) ID() string       { return aliasOf(o.XML.Alias) }
func (o *OpticalMedia) Render() (string, error) {
	return o.XML.Marshal()
}
func (*OpticalMedia) isDeviceSpec() {}

func aliasOf(a *libvirtxml.DomainAlias) string {
	if a == nil {
		return ""
	}
	return a.Name
}
