package libvirt

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"go.uber.org/zap"
	libvirtxml "libvirt.org/go/libvirtxml"

	"github.com/jbweber/herd/internal/metadata"
)

// VMRecord is the remote view of a VM. Records are never persisted.
type VMRecord struct {
	ID      string           `json:"id" yaml:"id"`
	Name    string           `json:"name" yaml:"name"`
	State   string           `json:"state" yaml:"state"`
	Devices []string         `json:"devices,omitempty" yaml:"devices,omitempty"`
	Labels  *metadata.Labels `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// Query lists every domain on the host, running or not, sorted by name.
// Domains whose details cannot be read are logged and skipped.
func (s *Session) Query(ctx context.Context) ([]VMRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// NeedResults: 1 means populate the domains slice
	// Flags: 0 means all domains (active and inactive)
	domains, _, err := s.client.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	records := make([]VMRecord, 0, len(domains))
	for _, dom := range domains {
		rec, err := s.record(dom)
		if err != nil {
			s.logger.Warn("failed to read domain", zap.String("vm", dom.Name), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

func (s *Session) record(dom libvirt.Domain) (VMRecord, error) {
	state, err := s.state(dom)
	if err != nil {
		return VMRecord{}, err
	}

	desc, err := s.client.DomainGetXMLDesc(dom, libvirt.DomainXMLInactive)
	if err != nil {
		return VMRecord{}, fmt.Errorf("failed to get XML of %s: %w", dom.Name, err)
	}

	var def libvirtxml.Domain
	if err := def.Unmarshal(desc); err != nil {
		return VMRecord{}, fmt.Errorf("failed to parse XML of %s: %w", dom.Name, err)
	}

	labels, err := metadata.Extract(&def)
	if err != nil {
		s.logger.Warn("ignoring unreadable herd metadata", zap.String("vm", dom.Name), zap.Error(err))
		labels = nil
	}

	return VMRecord{
		ID:      uuid.UUID(dom.UUID).String(),
		Name:    dom.Name,
		State:   stateToString(state),
		Devices: deviceIDs(&def),
		Labels:  labels,
	}, nil
}

// deviceIDs returns the ids of the devices herd manages: user aliases of
// disks and interfaces, and display-<port> for fixed-port graphics.
func deviceIDs(def *libvirtxml.Domain) []string {
	if def.Devices == nil {
		return nil
	}

	var ids []string
	for _, d := range def.Devices.Disks {
		if d.Alias != nil && strings.HasPrefix(d.Alias.Name, "ua-") {
			ids = append(ids, d.Alias.Name)
		}
	}
	for _, i := range def.Devices.Interfaces {
		if i.Alias != nil && strings.HasPrefix(i.Alias.Name, "ua-") {
			ids = append(ids, i.Alias.Name)
		}
	}
	for _, g := range def.Devices.Graphics {
		switch {
		case g.Spice != nil && g.Spice.Port > 0:
			ids = append(ids, fmt.Sprintf("display-%d", g.Spice.Port))
		case g.VNC != nil && g.VNC.Port > 0:
			ids = append(ids, fmt.Sprintf("display-%d", g.VNC.Port))
		}
	}
	return ids
}

// stateToString converts a libvirt domain state to a human-readable string.
func stateToString(state libvirt.DomainState) string {
	switch state {
	case libvirt.DomainNostate:
		return "no state"
	case libvirt.DomainRunning:
		return "running"
	case libvirt.DomainBlocked:
		return "blocked"
	case libvirt.DomainPaused:
		return "paused"
	case libvirt.DomainShutdown:
		return "shutdown"
	case libvirt.DomainShutoff:
		return "shutoff"
	case libvirt.DomainCrashed:
		return "crashed"
	case libvirt.DomainPmsuspended:
		return "pmsuspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}
