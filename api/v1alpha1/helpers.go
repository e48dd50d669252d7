package v1alpha1

const (
	// GroupName is the API group for herd resources.
	GroupName = "herd.cofront.xyz"

	// Version is the API version.
	Version = "v1alpha1"

	// FleetKind is the kind string for Fleet resources.
	FleetKind = "Fleet"
)

// Defaults applied to omitted fields.
const (
	DefaultPoolName = "herd-vms"
	DefaultPoolType = "dir"

	// RoleControlPlane and RoleWorker are the roles with a default display port.
	RoleControlPlane = "controlplane"
	RoleWorker       = "worker"

	DefaultControlPlaneDisplayPort = 5910
	DefaultWorkerDisplayPort       = 5920
)

// bytesPerGB converts configured disk sizes (binary gigabytes) to bytes.
const bytesPerGB = 1024 * 1024 * 1024

// APIVersion returns the full apiVersion string for this package.
func APIVersion() string {
	return GroupName + "/" + Version
}

// NewFleet creates an empty Fleet with TypeMeta set.
func NewFleet(name string) *Fleet {
	return &Fleet{
		TypeMeta: TypeMeta{
			APIVersion: APIVersion(),
			Kind:       FleetKind,
		},
		ObjectMeta: ObjectMeta{Name: name},
		Spec: FleetSpec{
			Storage: StorageSpec{
				PoolName: DefaultPoolName,
				PoolType: DefaultPoolType,
			},
		},
	}
}

// DefaultDisplayPort returns the built-in base display port for a role
// name, or 0 when the role has none.
func DefaultDisplayPort(role string) int {
	switch role {
	case RoleControlPlane:
		return DefaultControlPlaneDisplayPort
	case RoleWorker:
		return DefaultWorkerDisplayPort
	default:
		return 0
	}
}

// RoleNames returns the role names in document order.
func (f *Fleet) RoleNames() []string {
	names := make([]string, 0, len(f.Spec.Roles))
	for _, r := range f.Spec.Roles {
		names = append(names, r.Name)
	}
	return names
}

// Role returns the role with the given name.
func (f *Fleet) Role(name string) (Role, bool) {
	for _, r := range f.Spec.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

// GBToBytes converts a configured disk size in GB to bytes.
func GBToBytes(gb int) uint64 {
	return uint64(gb) * bytesPerGB
}

// LastPort returns the display port of the role's last ordinal.
func (r Role) LastPort() int {
	return r.Spec.DisplayPort + r.Spec.Count - 1
}
