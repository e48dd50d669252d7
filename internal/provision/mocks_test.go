package provision

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jbweber/herd/api/v1alpha1"
	"github.com/jbweber/herd/internal/errdefs"
	"github.com/jbweber/herd/internal/libvirt"
	"github.com/jbweber/herd/internal/template"
)

// mockSession is an in-memory Session. VMs live in a map keyed by id so
// that create, query and delete see each other's effects.
type mockSession struct {
	mu sync.Mutex

	vms map[string]*libvirt.VMRecord

	// Configurable behavior, consulted before the in-memory effect
	ensurePoolFunc   func(spec v1alpha1.StorageSpec) error
	createVMFunc     func(spec *template.VMSpec) error
	createDeviceFunc func(dev template.DeviceSpec) error
	startFunc        func(id string) error
	powerOffFunc     func(id string) error
	deleteFunc       func(id string) error
	queryFunc        func() ([]libvirt.VMRecord, error)

	// Call tracking
	ensurePoolCalls   int
	createVMCalls     []string // VM names
	createDeviceCalls []template.DeviceSpec
	startCalls        []string
	powerOffCalls     []string
	deleteCalls       []string // "id:destroyVolumes"
	deleteCtxErrs     []error
	closeCalls        int
}

func newMockSession() *mockSession {
	return &mockSession{vms: make(map[string]*libvirt.VMRecord)}
}

// addVM seeds a VM and returns its id.
func (m *mockSession) addVM(name string) string {
	id := uuid.New().String()
	m.vms[id] = &libvirt.VMRecord{ID: id, Name: name, State: "running"}
	return id
}

func (m *mockSession) names() []string {
	var names []string
	for _, vm := range m.vms {
		names = append(names, vm.Name)
	}
	sort.Strings(names)
	return names
}

func (m *mockSession) EnsurePool(ctx context.Context, spec v1alpha1.StorageSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensurePoolCalls++
	if m.ensurePoolFunc != nil {
		return m.ensurePoolFunc(spec)
	}
	return nil
}

func (m *mockSession) CreateVM(ctx context.Context, spec *template.VMSpec) (libvirt.VMRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createVMCalls = append(m.createVMCalls, spec.Name)
	if m.createVMFunc != nil {
		if err := m.createVMFunc(spec); err != nil {
			return libvirt.VMRef{}, err
		}
	}
	for _, vm := range m.vms {
		if vm.Name == spec.Name {
			return libvirt.VMRef{}, fmt.Errorf("domain %s: %w", spec.Name, errdefs.ErrAlreadyExists)
		}
	}
	m.vms[spec.UUID] = &libvirt.VMRecord{ID: spec.UUID, Name: spec.Name, State: "shutoff"}
	return libvirt.VMRef{ID: spec.UUID, Name: spec.Name}, nil
}

func (m *mockSession) CreateDevice(ctx context.Context, dev template.DeviceSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createDeviceCalls = append(m.createDeviceCalls, dev)
	if m.createDeviceFunc != nil {
		if err := m.createDeviceFunc(dev); err != nil {
			return "", err
		}
	}
	vm, ok := m.vms[dev.VMID()]
	if !ok {
		return "", fmt.Errorf("domain %s: %w", dev.VMID(), errdefs.ErrNotFound)
	}
	vm.Devices = append(vm.Devices, dev.ID())
	return dev.ID(), nil
}

func (m *mockSession) Start(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls = append(m.startCalls, id)
	if m.startFunc != nil {
		return m.startFunc(id)
	}
	return nil
}

func (m *mockSession) PowerOff(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powerOffCalls = append(m.powerOffCalls, id)
	if m.powerOffFunc != nil {
		return m.powerOffFunc(id)
	}
	return nil
}

func (m *mockSession) Delete(ctx context.Context, id string, destroyVolumes bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls = append(m.deleteCalls, fmt.Sprintf("%s:%t", id, destroyVolumes))
	m.deleteCtxErrs = append(m.deleteCtxErrs, ctx.Err())
	if m.deleteFunc != nil {
		if err := m.deleteFunc(id); err != nil {
			return err
		}
	}
	if _, ok := m.vms[id]; !ok {
		return fmt.Errorf("domain %s: %w", id, errdefs.ErrNotFound)
	}
	delete(m.vms, id)
	return nil
}

func (m *mockSession) Query(ctx context.Context) ([]libvirt.VMRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryFunc != nil {
		return m.queryFunc()
	}
	records := make([]libvirt.VMRecord, 0, len(m.vms))
	for _, vm := range m.vms {
		records = append(records, *vm)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

// mockConnector hands out one session.
type mockConnector struct {
	sess *mockSession
	err  error
}

func (c *mockConnector) Connect(ctx context.Context) (Session, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.sess, nil
}
