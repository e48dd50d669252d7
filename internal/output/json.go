package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/herd/internal/libvirt"
	"github.com/jbweber/herd/internal/provision"
)

// JSONFormatter formats results as JSON.
type JSONFormatter struct{}

// FormatSummary formats a Summary as a single JSON object.
func (f *JSONFormatter) FormatSummary(s *provision.Summary) (string, error) {
	return marshalJSON(newSummaryDocument(s), "summary")
}

// FormatVMList formats VM records as a JSON array.
func (f *JSONFormatter) FormatVMList(vms []libvirt.VMRecord) (string, error) {
	if len(vms) == 0 {
		return "[]\n", nil
	}
	return marshalJSON(vms, "VMs")
}

// FormatPlan formats planned VMs as a JSON array.
func (f *JSONFormatter) FormatPlan(plan []provision.PlannedVM) (string, error) {
	if len(plan) == 0 {
		return "[]\n", nil
	}
	return marshalJSON(plan, "plan")
}

func marshalJSON(v any, what string) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to JSON: %w", what, err)
	}
	return string(data) + "\n", nil
}
