package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// EnsurePool ensures a storage pool exists, creating it if necessary.
// If the pool already exists, this is a no-op.
func (m *Manager) EnsurePool(ctx context.Context, name string, poolType PoolType, path string) error {
	// Check if pool already exists
	_, err := m.client.StoragePoolLookupByName(name)
	if err == nil {
		return nil
	}

	return m.CreatePool(ctx, name, poolType, path)
}

// CreatePool defines, builds, starts and autostarts a storage pool.
// For zfs, path is an existing dataset and the pool is not built, since
// building a zfs pool would create a new zpool.
func (m *Manager) CreatePool(ctx context.Context, name string, poolType PoolType, path string) error {
	var poolXML string
	var err error

	switch poolType {
	case PoolTypeDir:
		poolXML, err = generateDirPoolXML(name, path)
	case PoolTypeZFS:
		poolXML, err = generateZFSPoolXML(name, path)
	default:
		return fmt.Errorf("unsupported pool type: %s", poolType)
	}

	if err != nil {
		return fmt.Errorf("failed to generate pool XML: %w", err)
	}

	pool, err := m.client.StoragePoolDefineXML(poolXML, 0)
	if err != nil {
		return fmt.Errorf("failed to define pool: %w", err)
	}

	if poolType == PoolTypeDir {
		// Build the pool (creates the directory)
		if err := m.client.StoragePoolBuild(pool, 0); err != nil {
			_ = m.client.StoragePoolUndefine(pool)
			return fmt.Errorf("failed to build pool: %w", err)
		}
	}

	if err := m.client.StoragePoolCreate(pool, 0); err != nil {
		_ = m.client.StoragePoolUndefine(pool)
		return fmt.Errorf("failed to start pool: %w", err)
	}

	if err := m.client.StoragePoolSetAutostart(pool, 1); err != nil {
		// Pool is usable, but will not come back after a host reboot
		return fmt.Errorf("pool created but failed to set autostart: %w", err)
	}

	return nil
}

// GetPoolInfo gets detailed information about a storage pool.
func (m *Manager) GetPoolInfo(ctx context.Context, name string) (*PoolInfo, error) {
	pool, err := m.client.StoragePoolLookupByName(name)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}

	poolState, capacity, allocation, available, err := m.client.StoragePoolGetInfo(pool)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool info: %w", err)
	}

	xmlDesc, err := m.client.StoragePoolGetXMLDesc(pool, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool XML: %w", err)
	}

	var poolDef libvirtxml.StoragePool
	if err := poolDef.Unmarshal(xmlDesc); err != nil {
		return nil, fmt.Errorf("failed to parse pool XML: %w", err)
	}

	info := &PoolInfo{
		Name:       pool.Name,
		Type:       PoolType(poolDef.Type),
		UUID:       uuid.UUID(pool.UUID).String(),
		State:      poolStateToString(libvirt.StoragePoolState(poolState)),
		Capacity:   capacity,
		Allocation: allocation,
		Available:  available,
	}

	switch info.Type {
	case PoolTypeDir:
		if poolDef.Target != nil {
			info.Path = poolDef.Target.Path
		}
	case PoolTypeZFS:
		if poolDef.Source != nil {
			info.Path = poolDef.Source.Name
		}
	}

	return info, nil
}

// RefreshPool rescans a storage pool so volumes created outside libvirt are visible.
func (m *Manager) RefreshPool(ctx context.Context, name string) error {
	pool, err := m.client.StoragePoolLookupByName(name)
	if err != nil {
		return fmt.Errorf("pool not found: %w", err)
	}

	if err := m.client.StoragePoolRefresh(pool, 0); err != nil {
		return fmt.Errorf("failed to refresh pool: %w", err)
	}

	return nil
}

func poolStateToString(state libvirt.StoragePoolState) string {
	switch state {
	case libvirt.StoragePoolInactive:
		return "inactive"
	case libvirt.StoragePoolBuilding:
		return "building"
	case libvirt.StoragePoolRunning:
		return "running"
	case libvirt.StoragePoolDegraded:
		return "degraded"
	case libvirt.StoragePoolInaccessible:
		return "inaccessible"
	default:
		return "unknown"
	}
}

// generateDirPoolXML generates XML for a directory-based storage pool.
func generateDirPoolXML(name, path string) (string, error) {
	pool := &libvirtxml.StoragePool{
		Type: "dir",
		Name: name,
		Target: &libvirtxml.StoragePoolTarget{
			Path: path,
			Permissions: &libvirtxml.StoragePoolTargetPermissions{
				Mode: "0755",
			},
		},
	}

	return marshalClean(pool.Marshal)
}

// generateZFSPoolXML generates XML for a pool over an existing zfs dataset.
func generateZFSPoolXML(name, dataset string) (string, error) {
	pool := &libvirtxml.StoragePool{
		Type: "zfs",
		Name: name,
		Source: &libvirtxml.StoragePoolSource{
			Name: dataset,
		},
	}

	return marshalClean(pool.Marshal)
}

// marshalClean marshals a libvirtxml document without the XML declaration.
func marshalClean(marshal func() (string, error)) (string, error) {
	doc, err := marshal()
	if err != nil {
		return "", err
	}

	doc = strings.TrimPrefix(doc, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>")
	return strings.TrimSpace(doc), nil
}
