package libvirt

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	libvirtxml "libvirt.org/go/libvirtxml"

	"github.com/jbweber/herd/api/v1alpha1"
	"github.com/jbweber/herd/internal/errdefs"
	"github.com/jbweber/herd/internal/naming"
	"github.com/jbweber/herd/internal/storage"
	"github.com/jbweber/herd/internal/template"
)

// domainClient defines the libvirt domain operations a Session needs.
//
// In production, this is satisfied by *libvirt.Libvirt directly.
// In tests, this is satisfied by mock implementations.
type domainClient interface {
	DomainLookupByName(Name string) (libvirt.Domain, error)
	DomainLookupByUUID(UUID libvirt.UUID) (libvirt.Domain, error)
	DomainDefineXMLFlags(XML string, Flags libvirt.DomainDefineFlags) (libvirt.Domain, error)
	DomainAttachDeviceFlags(Dom libvirt.Domain, XML string, Flags uint32) error
	DomainGetXMLDesc(Dom libvirt.Domain, Flags libvirt.DomainXMLFlags) (string, error)
	DomainGetState(Dom libvirt.Domain, Flags uint32) (int32, int32, error)
	DomainCreate(Dom libvirt.Domain) error
	DomainDestroyFlags(Dom libvirt.Domain, Flags libvirt.DomainDestroyFlagsValues) error
	DomainUndefineFlags(Dom libvirt.Domain, Flags libvirt.DomainUndefineFlagsValues) error
	ConnectListAllDomains(NeedResults int32, Flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	ConnectGetLibVersion() (uint64, error)
	ConnectGetHostname() (string, error)
}

// volumeStore defines the storage operations a Session needs.
//
// In production, this is satisfied by *storage.Manager.
type volumeStore interface {
	EnsurePool(ctx context.Context, name string, poolType storage.PoolType, path string) error
	GetPoolInfo(ctx context.Context, name string) (*storage.PoolInfo, error)
	RefreshPool(ctx context.Context, name string) error
	CreateVolume(ctx context.Context, poolName string, spec storage.VolumeSpec) error
	DeleteVolume(ctx context.Context, poolName, volumeName string) error
	VolumeExists(ctx context.Context, poolName, volumeName string) (bool, error)
	ListVolumesWithPrefix(ctx context.Context, poolName, prefix string) ([]storage.VolumeInfo, error)
}

// VMRef identifies a VM created by a session.
type VMRef struct {
	ID   string
	Name string
}

// HostInfo describes the daemon a session is connected to.
type HostInfo struct {
	Hostname   string `json:"hostname" yaml:"hostname"`
	LibVersion string `json:"libVersion" yaml:"libVersion"`
}

// Session is one connection to libvirtd. All operations are sequential and
// a Session must not be shared between goroutines issuing calls.
type Session struct {
	client  domainClient
	volumes volumeStore
	pool    string
	closer  func() error
	logger  *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

func newSession(client domainClient, volumes volumeStore, pool string, closer func() error, logger *zap.Logger) *Session {
	return &Session{
		client:  client,
		volumes: volumes,
		pool:    pool,
		closer:  closer,
		logger:  logger,
	}
}

// Close releases the connection. It is safe to call Close multiple times.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.closer != nil {
			s.closeErr = s.closer()
		}
	})
	return s.closeErr
}

// Ping verifies the connection is alive and reports what it is connected to.
func (s *Session) Ping(ctx context.Context) (HostInfo, error) {
	if err := ctx.Err(); err != nil {
		return HostInfo{}, err
	}

	version, err := s.client.ConnectGetLibVersion()
	if err != nil {
		return HostInfo{}, fmt.Errorf("libvirt connection is dead: %w", err)
	}

	hostname, err := s.client.ConnectGetHostname()
	if err != nil {
		return HostInfo{}, fmt.Errorf("failed to get hostname: %w", err)
	}

	return HostInfo{
		Hostname:   hostname,
		LibVersion: formatVersion(version),
	}, nil
}

// EnsurePool creates the session's storage pool from spec if it is missing.
func (s *Session) EnsurePool(ctx context.Context, spec v1alpha1.StorageSpec) error {
	return s.volumes.EnsurePool(ctx, s.pool, storage.PoolType(spec.PoolType), spec.PoolPath)
}

// PoolInfo reports on the session's storage pool.
func (s *Session) PoolInfo(ctx context.Context) (*storage.PoolInfo, error) {
	return s.volumes.GetPoolInfo(ctx, s.pool)
}

// CreateVM defines a persistent, stopped domain. The returned ID is the
// domain UUID. A domain with the same name yields errdefs.ErrAlreadyExists.
func (s *Session) CreateVM(ctx context.Context, spec *template.VMSpec) (VMRef, error) {
	if err := ctx.Err(); err != nil {
		return VMRef{}, err
	}

	_, err := s.client.DomainLookupByName(spec.Name)
	switch {
	case err == nil:
		return VMRef{}, fmt.Errorf("domain %s: %w", spec.Name, errdefs.ErrAlreadyExists)
	case !libvirt.IsNotFound(err):
		return VMRef{}, fmt.Errorf("failed to look up domain %s: %w", spec.Name, err)
	}

	domainXML, err := spec.Render()
	if err != nil {
		return VMRef{}, fmt.Errorf("failed to marshal domain XML: %w", err)
	}

	dom, err := s.client.DomainDefineXMLFlags(domainXML, libvirt.DomainDefineValidate)
	if err != nil {
		return VMRef{}, fmt.Errorf("failed to define domain %s: %w", spec.Name, err)
	}

	ref := VMRef{ID: uuid.UUID(dom.UUID).String(), Name: dom.Name}
	s.logger.Debug("domain defined", zap.String("vm", ref.Name), zap.String("id", ref.ID))
	return ref, nil
}

// CreateDevice adds dev to the persistent definition of its VM and returns
// the device id. A disk's volume is created first and removed again if the
// attach fails.
func (s *Session) CreateDevice(ctx context.Context, dev template.DeviceSpec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dom, err := s.lookup(dev.VMID())
	if err != nil {
		return "", err
	}

	switch d := dev.(type) {
	case *template.Disk:
		err = s.attachDisk(ctx, dom, d)
	case *template.Display:
		err = s.addGraphics(dom, d)
	default:
		err = s.attach(dom, dev)
	}
	if err != nil {
		return "", err
	}

	s.logger.Debug("device added",
		zap.String("vm", dom.Name),
		zap.String("kind", string(dev.Kind())),
		zap.String("device", dev.ID()),
	)
	return dev.ID(), nil
}

func (s *Session) attach(dom libvirt.Domain, dev template.DeviceSpec) error {
	deviceXML, err := dev.Render()
	if err != nil {
		return fmt.Errorf("failed to marshal %s XML: %w", dev.Kind(), err)
	}

	if err := s.client.DomainAttachDeviceFlags(dom, deviceXML, uint32(libvirt.DomainDeviceModifyConfig)); err != nil {
		return fmt.Errorf("failed to attach %s to %s: %w", dev.Kind(), dom.Name, err)
	}
	return nil
}

func (s *Session) attachDisk(ctx context.Context, dom libvirt.Domain, d *template.Disk) error {
	volume := path.Base(d.VolumePath)

	exists, err := s.volumes.VolumeExists(ctx, s.pool, volume)
	if err != nil {
		return fmt.Errorf("failed to check volume %s: %w", volume, err)
	}
	if exists {
		return fmt.Errorf("volume %s/%s: %w", s.pool, volume, errdefs.ErrAlreadyExists)
	}

	spec := storage.VolumeSpec{
		Name:          volume,
		Format:        storage.VolumeFormat(d.VolumeFormat()),
		CapacityBytes: d.SizeBytes,
	}
	if err := s.volumes.CreateVolume(ctx, s.pool, spec); err != nil {
		return fmt.Errorf("failed to create volume %s: %w", volume, err)
	}

	d.SetVolumeSource(s.pool, volume)
	attachErr := s.attach(dom, d)
	if attachErr == nil {
		return nil
	}

	if err := s.volumes.DeleteVolume(ctx, s.pool, volume); err != nil {
		s.logger.Warn("failed to remove volume after failed attach",
			zap.String("vm", dom.Name),
			zap.String("volume", volume),
			zap.Error(err),
		)
		return multierr.Append(attachErr, fmt.Errorf("failed to remove volume %s: %w", volume, err))
	}
	return attachErr
}

// addGraphics redefines the domain with the display appended. libvirt
// cannot attach graphics devices to a persistent definition.
func (s *Session) addGraphics(dom libvirt.Domain, d *template.Display) error {
	def, err := s.definition(dom)
	if err != nil {
		return err
	}

	if def.Devices == nil {
		def.Devices = &libvirtxml.DomainDeviceList{}
	}
	def.Devices.Graphics = append(def.Devices.Graphics, *d.XML)

	domainXML, err := def.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal domain XML: %w", err)
	}

	if _, err := s.client.DomainDefineXMLFlags(domainXML, libvirt.DomainDefineValidate); err != nil {
		return fmt.Errorf("failed to add display to %s: %w", dom.Name, err)
	}
	return nil
}

// Start boots the VM. Starting a running VM is a no-op.
func (s *Session) Start(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dom, err := s.lookup(id)
	if err != nil {
		return err
	}

	state, err := s.state(dom)
	if err != nil {
		return err
	}
	if state == libvirt.DomainRunning {
		return nil
	}

	if err := s.client.DomainCreate(dom); err != nil {
		return fmt.Errorf("failed to start %s: %w", dom.Name, err)
	}
	return nil
}

// PowerOff stops the VM. Stopping a shut-off VM is a no-op.
func (s *Session) PowerOff(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dom, err := s.lookup(id)
	if err != nil {
		return err
	}

	state, err := s.state(dom)
	if err != nil {
		return err
	}
	if state == libvirt.DomainShutoff {
		return nil
	}

	if err := s.client.DomainDestroyFlags(dom, libvirt.DomainDestroyGraceful); err != nil {
		return fmt.Errorf("failed to power off %s: %w", dom.Name, err)
	}
	return nil
}

// Delete removes the VM definition. An unknown id yields errdefs.ErrNotFound.
// With destroyVolumes set, every pool volume the VM references is deleted,
// along with any "<name>-disk*" volume left behind by a partial attach.
func (s *Session) Delete(ctx context.Context, id string, destroyVolumes bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dom, err := s.lookup(id)
	if err != nil {
		return err
	}

	state, err := s.state(dom)
	if err != nil {
		return err
	}
	if state != libvirt.DomainShutoff {
		if err := s.client.DomainDestroyFlags(dom, libvirt.DomainDestroyDefault); err != nil {
			return fmt.Errorf("failed to stop %s: %w", dom.Name, err)
		}
	}

	var volumes []volumeRef
	if destroyVolumes {
		def, err := s.definition(dom)
		if err != nil {
			return err
		}
		volumes = domainVolumes(def)
	}

	flags := libvirt.DomainUndefineNvram | libvirt.DomainUndefineManagedSave
	if err := s.client.DomainUndefineFlags(dom, flags); err != nil {
		return fmt.Errorf("failed to undefine %s: %w", dom.Name, err)
	}

	if !destroyVolumes {
		return nil
	}

	volumes = append(volumes, s.strayVolumes(ctx, dom.Name)...)

	var errs error
	seen := make(map[volumeRef]bool)
	for _, v := range volumes {
		if seen[v] {
			continue
		}
		seen[v] = true

		if err := s.volumes.DeleteVolume(ctx, v.pool, v.name); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("volume %s/%s: %w", v.pool, v.name, err))
			continue
		}
		s.logger.Debug("volume deleted", zap.String("vm", dom.Name), zap.String("volume", v.name))
	}
	return errs
}

type volumeRef struct {
	pool string
	name string
}

// domainVolumes returns the pool volumes backing the domain's disks. File
// backed disks such as the boot medium are never included.
func domainVolumes(def *libvirtxml.Domain) []volumeRef {
	if def.Devices == nil {
		return nil
	}

	var refs []volumeRef
	for _, d := range def.Devices.Disks {
		if d.Device != "disk" || d.Source == nil || d.Source.Volume == nil {
			continue
		}
		refs = append(refs, volumeRef{pool: d.Source.Volume.Pool, name: d.Source.Volume.Volume})
	}
	return refs
}

// strayVolumes lists the VM's disk volumes still in the session pool.
// Failures are logged and yield no volumes.
func (s *Session) strayVolumes(ctx context.Context, vmName string) []volumeRef {
	if s.pool == "" {
		return nil
	}

	if err := s.volumes.RefreshPool(ctx, s.pool); err != nil {
		s.logger.Warn("failed to refresh pool", zap.String("pool", s.pool), zap.Error(err))
	}

	infos, err := s.volumes.ListVolumesWithPrefix(ctx, s.pool, naming.VolumePrefix(vmName))
	if err != nil {
		s.logger.Warn("failed to list volumes", zap.String("pool", s.pool), zap.String("vm", vmName), zap.Error(err))
		return nil
	}

	refs := make([]volumeRef, 0, len(infos))
	for _, info := range infos {
		refs = append(refs, volumeRef{pool: s.pool, name: info.Name})
	}
	return refs
}

// lookup resolves a VM id (domain UUID) to a domain.
func (s *Session) lookup(id string) (libvirt.Domain, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return libvirt.Domain{}, fmt.Errorf("invalid VM id %q: %w", id, err)
	}

	dom, err := s.client.DomainLookupByUUID(libvirt.UUID(u))
	if err != nil {
		if libvirt.IsNotFound(err) {
			return libvirt.Domain{}, fmt.Errorf("domain %s: %w", id, errdefs.ErrNotFound)
		}
		return libvirt.Domain{}, fmt.Errorf("failed to look up domain %s: %w", id, err)
	}
	return dom, nil
}

func (s *Session) state(dom libvirt.Domain) (libvirt.DomainState, error) {
	state, _, err := s.client.DomainGetState(dom, 0)
	if err != nil {
		if libvirt.IsNotFound(err) {
			return 0, fmt.Errorf("domain %s: %w", dom.Name, errdefs.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to get state of %s: %w", dom.Name, err)
	}
	return libvirt.DomainState(state), nil
}

// definition returns the persistent definition of dom, including secrets.
func (s *Session) definition(dom libvirt.Domain) (*libvirtxml.Domain, error) {
	desc, err := s.client.DomainGetXMLDesc(dom, libvirt.DomainXMLInactive|libvirt.DomainXMLSecure)
	if err != nil {
		return nil, fmt.Errorf("failed to get XML of %s: %w", dom.Name, err)
	}

	var def libvirtxml.Domain
	if err := def.Unmarshal(desc); err != nil {
		return nil, fmt.Errorf("failed to parse XML of %s: %w", dom.Name, err)
	}
	return &def, nil
}

// formatVersion renders libvirt's packed version number (major*1e6 +
// minor*1e3 + release).
func formatVersion(v uint64) string {
	return fmt.Sprintf("%d.%d.%d", v/1000000, (v/1000)%1000, v%1000)
}
