package libvirt

import (
	"context"
	"fmt"
	"sync"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/herd/internal/storage"
)

var errNoDomain = libvirt.Error{Code: uint32(libvirt.ErrNoDomain), Message: "Domain not found"}

// mockDomainClient is a mock implementation of domainClient for testing.
type mockDomainClient struct {
	mu sync.Mutex

	// Configurable behavior
	domainLookupByNameFunc      func(name string) (libvirt.Domain, error)
	domainLookupByUUIDFunc      func(id libvirt.UUID) (libvirt.Domain, error)
	domainDefineXMLFlagsFunc    func(xml string, flags libvirt.DomainDefineFlags) (libvirt.Domain, error)
	domainAttachDeviceFlagsFunc func(dom libvirt.Domain, xml string, flags uint32) error
	domainGetXMLDescFunc        func(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error)
	domainGetStateFunc          func(dom libvirt.Domain, flags uint32) (int32, int32, error)
	domainCreateFunc            func(dom libvirt.Domain) error
	domainDestroyFlagsFunc      func(dom libvirt.Domain, flags libvirt.DomainDestroyFlagsValues) error
	domainUndefineFlagsFunc     func(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error
	connectListAllDomainsFunc   func() ([]libvirt.Domain, error)

	// Call tracking
	domainLookupByNameCalls      []string
	domainDefineXMLFlagsCalls    []string
	domainAttachDeviceFlagsCalls []string
	domainCreateCalls            []libvirt.Domain
	domainDestroyFlagsCalls      []libvirt.DomainDestroyFlagsValues
	domainUndefineFlagsCalls     []libvirt.DomainUndefineFlagsValues
}

// newMockDomainClient returns a client that knows about the given domains,
// all shut off, with an empty definition.
func newMockDomainClient(domains ...libvirt.Domain) *mockDomainClient {
	m := &mockDomainClient{}

	m.domainLookupByNameFunc = func(name string) (libvirt.Domain, error) {
		for _, d := range domains {
			if d.Name == name {
				return d, nil
			}
		}
		return libvirt.Domain{}, errNoDomain
	}
	m.domainLookupByUUIDFunc = func(id libvirt.UUID) (libvirt.Domain, error) {
		for _, d := range domains {
			if d.UUID == id {
				return d, nil
			}
		}
		return libvirt.Domain{}, errNoDomain
	}
	m.domainDefineXMLFlagsFunc = func(xml string, flags libvirt.DomainDefineFlags) (libvirt.Domain, error) {
		return libvirt.Domain{}, nil
	}
	m.domainAttachDeviceFlagsFunc = func(dom libvirt.Domain, xml string, flags uint32) error {
		return nil
	}
	m.domainGetXMLDescFunc = func(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error) {
		return fmt.Sprintf("<domain type=\"kvm\"><name>%s</name></domain>", dom.Name), nil
	}
	m.domainGetStateFunc = func(dom libvirt.Domain, flags uint32) (int32, int32, error) {
		return int32(libvirt.DomainShutoff), 0, nil
	}
	m.domainCreateFunc = func(dom libvirt.Domain) error {
		return nil
	}
	m.domainDestroyFlagsFunc = func(dom libvirt.Domain, flags libvirt.DomainDestroyFlagsValues) error {
		return nil
	}
	m.domainUndefineFlagsFunc = func(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error {
		return nil
	}
	m.connectListAllDomainsFunc = func() ([]libvirt.Domain, error) {
		return domains, nil
	}

	return m
}

func (m *mockDomainClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainLookupByNameCalls = append(m.domainLookupByNameCalls, name)
	return m.domainLookupByNameFunc(name)
}

func (m *mockDomainClient) DomainLookupByUUID(id libvirt.UUID) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domainLookupByUUIDFunc(id)
}

func (m *mockDomainClient) DomainDefineXMLFlags(xml string, flags libvirt.DomainDefineFlags) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDefineXMLFlagsCalls = append(m.domainDefineXMLFlagsCalls, xml)
	return m.domainDefineXMLFlagsFunc(xml, flags)
}

func (m *mockDomainClient) DomainAttachDeviceFlags(dom libvirt.Domain, xml string, flags uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainAttachDeviceFlagsCalls = append(m.domainAttachDeviceFlagsCalls, xml)
	return m.domainAttachDeviceFlagsFunc(dom, xml, flags)
}

func (m *mockDomainClient) DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domainGetXMLDescFunc(dom, flags)
}

func (m *mockDomainClient) DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domainGetStateFunc(dom, flags)
}

func (m *mockDomainClient) DomainCreate(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainCreateCalls = append(m.domainCreateCalls, dom)
	return m.domainCreateFunc(dom)
}

func (m *mockDomainClient) DomainDestroyFlags(dom libvirt.Domain, flags libvirt.DomainDestroyFlagsValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDestroyFlagsCalls = append(m.domainDestroyFlagsCalls, flags)
	return m.domainDestroyFlagsFunc(dom, flags)
}

func (m *mockDomainClient) DomainUndefineFlags(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainUndefineFlagsCalls = append(m.domainUndefineFlagsCalls, flags)
	return m.domainUndefineFlagsFunc(dom, flags)
}

func (m *mockDomainClient) ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	domains, err := m.connectListAllDomainsFunc()
	return domains, uint32(len(domains)), err
}

func (m *mockDomainClient) ConnectGetLibVersion() (uint64, error) {
	return 10010000, nil
}

func (m *mockDomainClient) ConnectGetHostname() (string, error) {
	return "hv1", nil
}

// mockVolumeStore is a mock implementation of volumeStore for testing.
type mockVolumeStore struct {
	mu sync.Mutex

	// Configurable behavior
	volumeExistsFunc          func(pool, volume string) (bool, error)
	createVolumeFunc          func(pool string, spec storage.VolumeSpec) error
	deleteVolumeFunc          func(pool, volume string) error
	listVolumesWithPrefixFunc func(pool, prefix string) ([]storage.VolumeInfo, error)

	// Call tracking
	ensurePoolCalls   []string
	createVolumeCalls []storage.VolumeSpec
	deleteVolumeCalls []string // "pool/volume"
	listPrefixCalls   []string
}

func newMockVolumeStore() *mockVolumeStore {
	return &mockVolumeStore{
		volumeExistsFunc: func(pool, volume string) (bool, error) {
			return false, nil
		},
		createVolumeFunc: func(pool string, spec storage.VolumeSpec) error {
			return nil
		},
		deleteVolumeFunc: func(pool, volume string) error {
			return nil
		},
		listVolumesWithPrefixFunc: func(pool, prefix string) ([]storage.VolumeInfo, error) {
			return nil, nil
		},
	}
}

func (m *mockVolumeStore) EnsurePool(ctx context.Context, name string, poolType storage.PoolType, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensurePoolCalls = append(m.ensurePoolCalls, fmt.Sprintf("%s:%s:%s", name, poolType, path))
	return nil
}

func (m *mockVolumeStore) GetPoolInfo(ctx context.Context, name string) (*storage.PoolInfo, error) {
	return &storage.PoolInfo{Name: name, State: "running"}, nil
}

func (m *mockVolumeStore) RefreshPool(ctx context.Context, name string) error {
	return nil
}

func (m *mockVolumeStore) CreateVolume(ctx context.Context, pool string, spec storage.VolumeSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createVolumeCalls = append(m.createVolumeCalls, spec)
	return m.createVolumeFunc(pool, spec)
}

func (m *mockVolumeStore) DeleteVolume(ctx context.Context, pool, volume string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteVolumeCalls = append(m.deleteVolumeCalls, pool+"/"+volume)
	return m.deleteVolumeFunc(pool, volume)
}

func (m *mockVolumeStore) VolumeExists(ctx context.Context, pool, volume string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volumeExistsFunc(pool, volume)
}

func (m *mockVolumeStore) ListVolumesWithPrefix(ctx context.Context, pool, prefix string) ([]storage.VolumeInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listPrefixCalls = append(m.listPrefixCalls, prefix)
	return m.listVolumesWithPrefixFunc(pool, prefix)
}
