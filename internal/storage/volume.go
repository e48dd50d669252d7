package storage

import (
	"context"
	"fmt"
	"strings"

	libvirtxml "libvirt.org/go/libvirtxml"
)

// CreateVolume creates a new volume in the specified pool.
func (m *Manager) CreateVolume(ctx context.Context, poolName string, spec VolumeSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid volume spec: %w", err)
	}

	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return fmt.Errorf("pool not found: %w", err)
	}

	xmlDesc, err := m.client.StoragePoolGetXMLDesc(pool, 0)
	if err != nil {
		return fmt.Errorf("failed to get pool XML: %w", err)
	}

	var poolDef libvirtxml.StoragePool
	if err := poolDef.Unmarshal(xmlDesc); err != nil {
		return fmt.Errorf("failed to parse pool XML: %w", err)
	}

	volumeXML, err := generateVolumeXML(PoolType(poolDef.Type), spec)
	if err != nil {
		return fmt.Errorf("failed to generate volume XML: %w", err)
	}

	if _, err := m.client.StorageVolCreateXML(pool, volumeXML, 0); err != nil {
		return fmt.Errorf("failed to create volume: %w", err)
	}

	return nil
}

// DeleteVolume deletes a volume from the specified pool.
func (m *Manager) DeleteVolume(ctx context.Context, poolName, volumeName string) error {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return fmt.Errorf("pool not found: %w", err)
	}

	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return fmt.Errorf("volume not found: %w", err)
	}

	if err := m.client.StorageVolDelete(vol, 0); err != nil {
		return fmt.Errorf("failed to delete volume: %w", err)
	}

	return nil
}

// ListVolumes lists all volumes in the specified pool.
func (m *Manager) ListVolumes(ctx context.Context, poolName string) ([]VolumeInfo, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}

	volumes, _, err := m.client.StoragePoolListAllVolumes(pool, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	var volumeInfos []VolumeInfo
	for _, vol := range volumes {
		path, err := m.client.StorageVolGetPath(vol)
		if err != nil {
			// Skip volumes we can't get the path for
			continue
		}

		_, capacity, allocation, err := m.client.StorageVolGetInfo(vol)
		if err != nil {
			continue
		}

		volumeInfos = append(volumeInfos, VolumeInfo{
			Name:       vol.Name,
			Path:       path,
			Pool:       poolName,
			Capacity:   capacity,
			Allocation: allocation,
		})
	}

	return volumeInfos, nil
}

// ListVolumesWithPrefix lists the volumes in the pool whose names start with prefix.
func (m *Manager) ListVolumesWithPrefix(ctx context.Context, poolName, prefix string) ([]VolumeInfo, error) {
	all, err := m.ListVolumes(ctx, poolName)
	if err != nil {
		return nil, err
	}

	var matched []VolumeInfo
	for _, v := range all {
		if strings.HasPrefix(v.Name, prefix) {
			matched = append(matched, v)
		}
	}
	return matched, nil
}

// VolumeExists checks if a volume exists in the specified pool.
func (m *Manager) VolumeExists(ctx context.Context, poolName, volumeName string) (bool, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return false, fmt.Errorf("pool not found: %w", err)
	}

	_, err = m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return false, nil
	}

	return true, nil
}

// generateVolumeXML generates XML for a storage volume. zvols have no
// file format, so zfs pools only accept raw volumes.
func generateVolumeXML(poolType PoolType, spec VolumeSpec) (string, error) {
	vol := &libvirtxml.StorageVolume{
		Name: spec.Name,
		Capacity: &libvirtxml.StorageVolumeSize{
			Value: spec.CapacityBytes,
			Unit:  "B",
		},
	}

	switch poolType {
	case PoolTypeZFS:
		if spec.Format != VolumeFormatRaw {
			return "", fmt.Errorf("zfs pools only support raw volumes, got %s", spec.Format)
		}
	default:
		vol.Type = "file"
		vol.Target = &libvirtxml.StorageVolumeTarget{
			Format: &libvirtxml.StorageVolumeTargetFormat{
				Type: string(spec.Format),
			},
			Permissions: &libvirtxml.StorageVolumeTargetPermissions{
				Mode: "0644",
			},
		}
	}

	return marshalClean(vol.Marshal)
}
