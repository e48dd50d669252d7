package template

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	libvirtxml "libvirt.org/go/libvirtxml"

	"github.com/jbweber/herd/internal/errdefs"
)

//go:embed blueprints/*.xml
var embedded embed.FS

// Blueprint names. Each is read from "<name>.xml".
const (
	BlueprintVM      = "vm"
	BlueprintDisk    = "disk"
	BlueprintCDROM   = "cdrom"
	BlueprintNIC     = "nic"
	BlueprintDisplay = "display"
)

// Boot order assigned to the install medium and the first disk.
const (
	opticalBootOrder = 1
	diskBootOrder    = 2
)

var blueprintNames = []string{BlueprintVM, BlueprintDisk, BlueprintCDROM, BlueprintNIC, BlueprintDisplay}

// Composer builds independent VM and device definitions from validated blueprints.
type Composer struct {
	blueprints map[string]string
}

// VMSpec is a composed domain definition.
type VMSpec struct {
	Name      string
	CPU       int
	MemoryMiB int
	UUID      string
	Domain    *libvirtxml.Domain
}

// Render returns the domain XML.
func (s *VMSpec) Render() (string, error) {
	return s.Domain.Marshal()
}

// Params carries the runtime parameters of Compose. Only the fields of the
// requested kind are read.
type Params struct {
	VolumePath string
	SizeBytes  uint64
	SlotIndex  int
	Bridge     string
	MAC        string
	Port       int
	Password   string
	Path       string
}

// Default returns a Composer over the embedded blueprints.
func Default() (*Composer, error) {
	sub, err := fs.Sub(embedded, "blueprints")
	if err != nil {
		return nil, &errdefs.TemplateError{Blueprint: "embedded", Err: err}
	}
	return LoadFS(sub, "")
}

// Load returns a Composer over the blueprints in dir.
func Load(dir string) (*Composer, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &errdefs.TemplateError{Blueprint: "directory", Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &errdefs.TemplateError{Blueprint: "directory", Path: dir, Err: errors.New("not a directory")}
	}
	return LoadFS(os.DirFS(dir), dir)
}

// LoadFS reads and validates every blueprint from fsys. root is only used
// in error messages.
func LoadFS(fsys fs.FS, root string) (*Composer, error) {
	c := &Composer{blueprints: make(map[string]string, len(blueprintNames))}

	for _, name := range blueprintNames {
		file := name + ".xml"
		path := file
		if root != "" {
			path = filepath.Join(root, file)
		}

		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, &errdefs.TemplateError{Blueprint: name, Path: path, Err: err}
		}

		doc := strings.TrimSpace(string(data))
		if doc == "" {
			return nil, &errdefs.TemplateError{Blueprint: name, Path: path, Err: errors.New("blueprint is empty")}
		}
		if err := validate(name, doc); err != nil {
			return nil, &errdefs.TemplateError{Blueprint: name, Path: path, Err: err}
		}

		c.blueprints[name] = doc
	}

	return c, nil
}

// validate checks that a blueprint parses into the expected libvirtxml type
// and has the structure composition relies on.
func validate(name, doc string) error {
	switch name {
	case BlueprintVM:
		var d libvirtxml.Domain
		if err := d.Unmarshal(doc); err != nil {
			return fmt.Errorf("malformed domain: %w", err)
		}
		if d.Type == "" {
			return errors.New("domain type is required")
		}
		if d.OS == nil {
			return errors.New("domain <os> is required")
		}
	case BlueprintDisk, BlueprintCDROM:
		var d libvirtxml.DomainDisk
		if err := d.Unmarshal(doc); err != nil {
			return fmt.Errorf("malformed disk: %w", err)
		}
		want := "disk"
		if name == BlueprintCDROM {
			want = "cdrom"
		}
		device := d.Device
		if device == "" {
			device = "disk"
		}
		if device != want {
			return fmt.Errorf("disk device must be %q, got %q", want, device)
		}
		if d.Target == nil || d.Target.Bus == "" {
			return errors.New("disk <target bus=...> is required")
		}
	case BlueprintNIC:
		var i libvirtxml.DomainInterface
		if err := i.Unmarshal(doc); err != nil {
			return fmt.Errorf("malformed interface: %w", err)
		}
		if i.Source == nil || i.Source.Bridge == nil {
			return errors.New("interface must be type=\"bridge\" with a <source bridge=...>")
		}
	case BlueprintDisplay:
		var g libvirtxml.DomainGraphic
		if err := g.Unmarshal(doc); err != nil {
			return fmt.Errorf("malformed graphics: %w", err)
		}
		if g.Spice == nil && g.VNC == nil {
			return errors.New("graphics must be spice or vnc")
		}
	}
	return nil
}

// ComposeVM returns a domain definition named name with a fresh UUID.
func (c *Composer) ComposeVM(name string, cpu, memoryMiB int) *VMSpec {
	var d libvirtxml.Domain
	mustUnmarshal(d.Unmarshal, c.blueprints[BlueprintVM])

	id := uuid.New().String()
	d.Name = name
	d.UUID = id
	d.Memory = &libvirtxml.DomainMemory{Value: uint(memoryMiB), Unit: "MiB"}
	d.CurrentMemory = nil
	if d.VCPU == nil {
		d.VCPU = &libvirtxml.DomainVCPU{Placement: "static"}
	}
	d.VCPU.Value = uint(cpu)

	return &VMSpec{
		Name:      name,
		CPU:       cpu,
		MemoryMiB: memoryMiB,
		UUID:      id,
		Domain:    &d,
	}
}

// ComposeDisk returns a disk for slot slotIndex (0-based) of the VM. The
// disk's source is set by the session once the volume exists.
func (c *Composer) ComposeDisk(vmID, volumePath string, sizeBytes uint64, slotIndex int) *Disk {
	var d libvirtxml.DomainDisk
	mustUnmarshal(d.Unmarshal, c.blueprints[BlueprintDisk])

	d.Target.Dev = diskTarget(d.Target.Bus, slotIndex)
	d.Alias = newAlias()
	if slotIndex == 0 {
		d.Boot = &libvirtxml.DomainDeviceBoot{Order: diskBootOrder}
	}

	return &Disk{
		VM:         vmID,
		SlotIndex:  slotIndex,
		VolumePath: volumePath,
		SizeBytes:  sizeBytes,
		XML:        &d,
	}
}

// ComposeNIC returns a bridged interface. An empty mac is assigned by libvirt.
func (c *Composer) ComposeNIC(vmID, bridge, mac string) *NIC {
	var i libvirtxml.DomainInterface
	mustUnmarshal(i.Unmarshal, c.blueprints[BlueprintNIC])

	i.Source.Bridge.Bridge = bridge
	i.MAC = nil
	if mac != "" {
		i.MAC = &libvirtxml.DomainInterfaceMAC{Address: mac}
	}
	i.Alias = newAlias()

	return &NIC{
		VM:     vmID,
		Bridge: bridge,
		MAC:    mac,
		XML:    &i,
	}
}

// ComposeDisplay returns a remote display listening on port, protected by password.
func (c *Composer) ComposeDisplay(vmID string, port int, password string) *Display {
	var g libvirtxml.DomainGraphic
	mustUnmarshal(g.Unmarshal, c.blueprints[BlueprintDisplay])

	switch {
	case g.Spice != nil:
		g.Spice.Port = port
		g.Spice.AutoPort = "no"
		g.Spice.Passwd = password
	case g.VNC != nil:
		g.VNC.Port = port
		g.VNC.AutoPort = "no"
		g.VNC.Passwd = password
	}

	return &Display{
		VM:       vmID,
		Port:     port,
		Password: password,
		XML:      &g,
	}
}

// ComposeOpticalMedia returns a read-only cdrom backed by the file at path.
func (c *Composer) ComposeOpticalMedia(vmID, path string) *OpticalMedia {
	var d libvirtxml.DomainDisk
	mustUnmarshal(d.Unmarshal, c.blueprints[BlueprintCDROM])

	d.Source = &libvirtxml.DomainDiskSource{
		File: &libvirtxml.DomainDiskSourceFile{File: path},
	}
	if d.ReadOnly == nil {
		d.ReadOnly = &libvirtxml.DomainDiskReadOnly{}
	}
	d.Boot = &libvirtxml.DomainDeviceBoot{Order: opticalBootOrder}
	d.Alias = newAlias()

	return &OpticalMedia{
		VM:   vmID,
		Path: path,
		XML:  &d,
	}
}

// Compose returns a device of the given kind. It fails only for an unknown kind.
func (c *Composer) Compose(kind DeviceKind, vmID string, p Params) (DeviceSpec, error) {
	switch kind {
	case KindDisk:
		return c.ComposeDisk(vmID, p.VolumePath, p.SizeBytes, p.SlotIndex), nil
	case KindNIC:
		return c.ComposeNIC(vmID, p.Bridge, p.MAC), nil
	case KindDisplay:
		return c.ComposeDisplay(vmID, p.Port, p.Password), nil
	case KindOpticalMedia:
		return c.ComposeOpticalMedia(vmID, p.Path), nil
	default:
		return nil, fmt.Errorf("unknown device kind %q", kind)
	}
}

// diskTarget returns the target device name for slot index i on bus:
// vda, vdb, ... for virtio and sda, sdb, ... otherwise.
func diskTarget(bus string, i int) string {
	prefix := "sd"
	if bus == "virtio" {
		prefix = "vd"
	}
	return prefix + driveLetters(i)
}

// driveLetters maps 0→a, 25→z, 26→aa, following the kernel's naming.
func driveLetters(i int) string {
	s := ""
	for i >= 0 {
		s = string(rune('a'+i%26)) + s
		i = i/26 - 1
	}
	return s
}

// newAlias returns a libvirt user alias. User aliases must start with "ua-".
func newAlias() *libvirtxml.DomainAlias {
	return &libvirtxml.DomainAlias{Name: "ua-" + uuid.New().String()}
}

// mustUnmarshal parses a blueprint that was validated at load time.
func mustUnmarshal(unmarshal func(string) error, doc string) {
	if err := unmarshal(doc); err != nil {
		panic(fmt.Sprintf("template: validated blueprint failed to parse: %v", err))
	}
}
