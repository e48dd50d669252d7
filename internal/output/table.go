package output

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/jbweber/herd/internal/libvirt"
	"github.com/jbweber/herd/internal/provision"
)

// TableFormatter formats results as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatSummary formats one row per VM followed by a tally line.
func (f *TableFormatter) FormatSummary(s *provision.Summary) (string, error) {
	if len(s.Results) == 0 {
		return fmt.Sprintf("%s: no VMs\n", s.Operation), nil
	}

	var buf bytes.Buffer
	w := newTabWriter(&buf)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "ROLE\tNAME\tPORT\tOUTCOME\tMESSAGE")
	}
	for _, r := range s.Results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			dash(r.Role), dash(r.Name), port(r.DisplayPort), r.Outcome, dash(r.Message()))
	}
	_ = w.Flush()

	buf.WriteString(tally(s))
	return buf.String(), nil
}

// FormatVMList formats VM records as a table.
func (f *TableFormatter) FormatVMList(vms []libvirt.VMRecord) (string, error) {
	if len(vms) == 0 {
		return "No VMs found\n", nil
	}

	var buf bytes.Buffer
	w := newTabWriter(&buf)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tROLE\tPORT\tDEVICES\tID")
	}
	for _, vm := range vms {
		role, displayPort := "-", "-"
		if vm.Labels != nil {
			role = dash(vm.Labels.Role)
			displayPort = port(vm.Labels.DisplayPort)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			vm.Name, vm.State, role, displayPort, len(vm.Devices), vm.ID)
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatPlan formats planned VMs as a table.
func (f *TableFormatter) FormatPlan(plan []provision.PlannedVM) (string, error) {
	if len(plan) == 0 {
		return "Nothing to create\n", nil
	}

	var buf bytes.Buffer
	w := newTabWriter(&buf)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "ROLE\tNAME\tPORT\tVOLUMES\tBRIDGES")
	}
	for _, vm := range plan {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			vm.Role, vm.Name, vm.DisplayPort, list(vm.Volumes), list(vm.Bridges))
	}

	_ = w.Flush()
	return buf.String(), nil
}

func newTabWriter(buf *bytes.Buffer) *tabwriter.Writer {
	return tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
}

// tally summarizes the outcomes present in a batch, in a fixed order.
// Example: "create: 3 created, 1 rolled-back"
func tally(s *provision.Summary) string {
	order := []provision.Outcome{
		provision.OutcomeCreated,
		provision.OutcomeFailed,
		provision.OutcomeRolledBack,
		provision.OutcomeUncleanRollback,
		provision.OutcomeDestroyed,
		provision.OutcomeAlreadyGone,
		provision.OutcomeDestroyFailed,
	}

	var parts []string
	for _, o := range order {
		if n := s.Count(o); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, o))
		}
	}
	return fmt.Sprintf("\n%s: %s\n", s.Operation, strings.Join(parts, ", "))
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func port(p int) string {
	if p == 0 {
		return "-"
	}
	return fmt.Sprint(p)
}

func list(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}
