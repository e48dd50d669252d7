// Package output renders batch summaries, VM listings and plans as a
// table, YAML or JSON.
package output

import (
	"fmt"
	"time"

	"github.com/jbweber/herd/api/v1alpha1"
	"github.com/jbweber/herd/internal/libvirt"
	"github.com/jbweber/herd/internal/provision"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML format.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON format for machine consumption.
	FormatJSON Format = "json"
)

const apiVersion = v1alpha1.GroupName + "/" + v1alpha1.Version

// Formatter formats herd results for output.
type Formatter interface {
	// FormatSummary formats the outcome of a create or destroy batch.
	FormatSummary(s *provision.Summary) (string, error)

	// FormatVMList formats VMs found on the host.
	FormatVMList(vms []libvirt.VMRecord) (string, error)

	// FormatPlan formats the VMs a create would build.
	FormatPlan(plan []provision.PlannedVM) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	// Format specifies the output format.
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	switch Format(format) {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}

// summaryDocument is the serialized form of a Summary. Errors are flattened
// to their message since error values do not marshal.
type summaryDocument struct {
	APIVersion string           `json:"apiVersion" yaml:"apiVersion"`
	Kind       string           `json:"kind" yaml:"kind"`
	Operation  string           `json:"operation" yaml:"operation"`
	StartedAt  string           `json:"startedAt" yaml:"startedAt"`
	ExitCode   int              `json:"exitCode" yaml:"exitCode"`
	Results    []resultDocument `json:"results" yaml:"results"`
}

type resultDocument struct {
	provision.VMResult `json:",inline" yaml:",inline"`
	Error              string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newSummaryDocument(s *provision.Summary) summaryDocument {
	doc := summaryDocument{
		APIVersion: apiVersion,
		Kind:       "Summary",
		Operation:  string(s.Operation),
		StartedAt:  s.StartedAt.UTC().Format(time.RFC3339),
		ExitCode:   s.ExitCode(),
		Results:    make([]resultDocument, 0, len(s.Results)),
	}
	for _, r := range s.Results {
		doc.Results = append(doc.Results, resultDocument{VMResult: r, Error: r.Message()})
	}
	return doc
}
