// Package metadata records herd labels inside a libvirt domain's custom XML
// metadata. The labels travel with the domain itself, so any later
// invocation can tell which role and ordinal a VM was created for without
// keeping local state.
package metadata

import (
	"encoding/xml"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
	libvirtxml "libvirt.org/go/libvirtxml"
)

const (
	// Namespace is the XML namespace of the herd metadata element.
	Namespace = "http://herd.cofront.xyz/v1alpha1"
)

// Labels identify the role and slot a VM was created for.
type Labels struct {
	Fleet       string `yaml:"fleet,omitempty" json:"fleet,omitempty"`
	Role        string `yaml:"role" json:"role"`
	Ordinal     int    `yaml:"ordinal" json:"ordinal"`
	DisplayPort int    `yaml:"displayPort" json:"displayPort"`
	RunID       string `yaml:"runID,omitempty" json:"runID,omitempty"`
}

// instance is the metadata element. Labels are stored as YAML text so the
// domain XML stays readable with virsh dumpxml.
type instance struct {
	XMLName xml.Name `xml:"http://herd.cofront.xyz/v1alpha1 instance"`
	Body    string   `xml:",chardata"`
}

type metadataWrapper struct {
	Instance *instance `xml:"http://herd.cofront.xyz/v1alpha1 instance"`
}

// Render returns the metadata element for labels.
func Render(labels Labels) (string, error) {
	data, err := yaml.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("failed to marshal labels to YAML: %w", err)
	}

	out, err := xml.Marshal(instance{Body: "\n" + string(data)})
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata to XML: %w", err)
	}
	return string(out), nil
}

// Annotate adds the labels to the domain's metadata, keeping any other
// metadata elements already present.
func Annotate(domain *libvirtxml.Domain, labels Labels) error {
	element, err := Render(labels)
	if err != nil {
		return err
	}

	if domain.Metadata == nil {
		domain.Metadata = &libvirtxml.DomainMetadata{}
	}
	domain.Metadata.XML = strings.TrimSpace(domain.Metadata.XML + element)
	return nil
}

// Extract returns the labels stored in the domain's metadata, or nil when
// the domain carries none.
func Extract(domain *libvirtxml.Domain) (*Labels, error) {
	if domain.Metadata == nil || strings.TrimSpace(domain.Metadata.XML) == "" {
		return nil, nil
	}

	var wrapper metadataWrapper
	if err := xml.Unmarshal([]byte("<metadata>"+domain.Metadata.XML+"</metadata>"), &wrapper); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata XML: %w", err)
	}
	if wrapper.Instance == nil {
		return nil, nil
	}

	var labels Labels
	if err := yaml.Unmarshal([]byte(wrapper.Instance.Body), &labels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal labels from YAML: %w", err)
	}
	return &labels, nil
}
