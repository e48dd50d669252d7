package metadata

import (
	"strings"
	"testing"

	libvirtxml "libvirt.org/go/libvirtxml"
)

func TestAnnotateExtract(t *testing.T) {
	labels := Labels{
		Fleet:       "lab",
		Role:        "worker",
		Ordinal:     2,
		DisplayPort: 5921,
		RunID:       "run-1",
	}

	domain := &libvirtxml.Domain{Type: "kvm", Name: "worker02"}
	if err := Annotate(domain, labels); err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}

	// Survive a trip through the domain XML, as it would through libvirt.
	doc, err := domain.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(doc, Namespace) {
		t.Errorf("domain XML does not carry the herd namespace:\n%s", doc)
	}

	var parsed libvirtxml.Domain
	if err := parsed.Unmarshal(doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	got, err := Extract(&parsed)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got == nil {
		t.Fatal("Extract() = nil, want labels")
	}
	if *got != labels {
		t.Errorf("Extract() = %+v, want %+v", *got, labels)
	}
}

func TestAnnotate_KeepsForeignMetadata(t *testing.T) {
	foreign := `<app:info xmlns:app="http://example.com/app">keep</app:info>`
	domain := &libvirtxml.Domain{
		Metadata: &libvirtxml.DomainMetadata{XML: foreign},
	}

	if err := Annotate(domain, Labels{Role: "controlplane", Ordinal: 1, DisplayPort: 5910}); err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}
	if !strings.Contains(domain.Metadata.XML, foreign) {
		t.Errorf("Annotate() dropped foreign metadata: %s", domain.Metadata.XML)
	}

	got, err := Extract(domain)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got == nil || got.Role != "controlplane" {
		t.Errorf("Extract() = %+v, want controlplane labels", got)
	}
}

func TestExtract_None(t *testing.T) {
	tests := []struct {
		name   string
		domain *libvirtxml.Domain
	}{
		{"no metadata", &libvirtxml.Domain{}},
		{"empty metadata", &libvirtxml.Domain{Metadata: &libvirtxml.DomainMetadata{}}},
		{"foreign only", &libvirtxml.Domain{Metadata: &libvirtxml.DomainMetadata{
			XML: `<app:info xmlns:app="http://example.com/app">x</app:info>`,
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.domain)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if got != nil {
				t.Errorf("Extract() = %+v, want nil", got)
			}
		})
	}
}

func TestExtract_Malformed(t *testing.T) {
	domain := &libvirtxml.Domain{Metadata: &libvirtxml.DomainMetadata{
		XML: `<instance xmlns="http://herd.cofront.xyz/v1alpha1">ordinal: [</instance>`,
	}}
	if _, err := Extract(domain); err == nil {
		t.Error("Extract() expected error for malformed YAML, got nil")
	}
}
