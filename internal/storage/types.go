package storage

import "fmt"

// PoolType represents the type of storage pool backend.
type PoolType string

const (
	PoolTypeDir PoolType = "dir" // Directory-based storage
	PoolTypeZFS PoolType = "zfs" // ZFS dataset, volumes are zvols
	PoolTypeLVM PoolType = "lvm" // LVM volume group, not managed by herd
)

// VolumeFormat represents the disk format.
type VolumeFormat string

const (
	VolumeFormatQCOW2 VolumeFormat = "qcow2" // QCOW2 format
	VolumeFormatRaw   VolumeFormat = "raw"   // Raw format
)

// VolumeSpec specifies how to create a storage volume.
type VolumeSpec struct {
	Name          string       // Volume name (e.g., "worker01-disk0")
	Format        VolumeFormat // Disk format (qcow2, raw)
	CapacityBytes uint64       // Capacity in bytes
}

// Validate checks if the volume spec is valid.
func (v *VolumeSpec) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("volume name is required")
	}
	if v.Format == "" {
		return fmt.Errorf("volume format is required")
	}
	if v.Format != VolumeFormatQCOW2 && v.Format != VolumeFormatRaw {
		return fmt.Errorf("invalid volume format: %s (must be qcow2 or raw)", v.Format)
	}
	if v.CapacityBytes == 0 {
		return fmt.Errorf("volume capacity must be greater than 0")
	}
	return nil
}

// PoolInfo contains information about a storage pool.
type PoolInfo struct {
	Name       string   // Pool name
	Type       PoolType // Pool type
	Path       string   // Directory (dir) or dataset (zfs)
	UUID       string   // Pool UUID
	State      string   // Pool state (running, inactive, etc.)
	Capacity   uint64   // Total capacity in bytes
	Allocation uint64   // Allocated space in bytes
	Available  uint64   // Available space in bytes
}

// CapacityGB returns the pool capacity in GB.
func (p *PoolInfo) CapacityGB() float64 {
	return float64(p.Capacity) / (1024 * 1024 * 1024)
}

// AvailableGB returns the pool available space in GB.
func (p *PoolInfo) AvailableGB() float64 {
	return float64(p.Available) / (1024 * 1024 * 1024)
}

// VolumeInfo contains information about a storage volume.
type VolumeInfo struct {
	Name       string // Volume name
	Path       string // Full path to volume
	Pool       string // Pool name
	Capacity   uint64 // Capacity in bytes
	Allocation uint64 // Allocated space in bytes
}

// CapacityGB returns the volume capacity in GB.
func (v *VolumeInfo) CapacityGB() float64 {
	return float64(v.Capacity) / (1024 * 1024 * 1024)
}
