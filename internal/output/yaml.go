package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/herd/internal/libvirt"
	"github.com/jbweber/herd/internal/provision"
)

// YAMLFormatter formats results as YAML.
type YAMLFormatter struct{}

// FormatSummary formats a Summary as one YAML document.
func (f *YAMLFormatter) FormatSummary(s *provision.Summary) (string, error) {
	data, err := yaml.Marshal(newSummaryDocument(s))
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary to YAML: %w", err)
	}
	return string(data), nil
}

// FormatVMList formats VM records as a YAML stream, one document per VM.
func (f *YAMLFormatter) FormatVMList(vms []libvirt.VMRecord) (string, error) {
	var buf bytes.Buffer

	for i, vm := range vms {
		data, err := yaml.Marshal(vm)
		if err != nil {
			return "", fmt.Errorf("failed to marshal VM %s to YAML: %w", vm.Name, err)
		}

		// Separate documents, but not before the first one
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}

	return buf.String(), nil
}

// FormatPlan formats planned VMs as a YAML sequence.
func (f *YAMLFormatter) FormatPlan(plan []provision.PlannedVM) (string, error) {
	if len(plan) == 0 {
		return "", nil
	}
	data, err := yaml.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan to YAML: %w", err)
	}
	return string(data), nil
}
