// Package v1alpha1 contains API types for herd.cofront.xyz/v1alpha1
//
// These types are hand-rolled to follow Kubernetes API conventions without
// requiring k8s.io/apimachinery dependencies. Field names and tags match the
// upstream meta types so documents read like any other Kubernetes resource.
package v1alpha1

// TypeMeta describes an individual object's type and API version.
type TypeMeta struct {
	// Kind is a string value representing the resource this object represents.
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`

	// APIVersion defines the versioned schema of this representation of an object.
	APIVersion string `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`
}

// ObjectMeta is the metadata attached to every herd document.
type ObjectMeta struct {
	// Name identifies the fleet. It is informational only and never used
	// to derive remote resource names.
	// +optional
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Labels are key/value pairs attached to the document.
	// +optional
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`

	// Annotations are unstructured key/value pairs that may be set by external tools.
	// +optional
	Annotations map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// DeepCopy creates a deep copy of ObjectMeta.
func (in *ObjectMeta) DeepCopy() *ObjectMeta {
	if in == nil {
		return nil
	}
	out := new(ObjectMeta)
	*out = *in
	if in.Labels != nil {
		out.Labels = make(map[string]string, len(in.Labels))
		for k, v := range in.Labels {
			out.Labels[k] = v
		}
	}
	if in.Annotations != nil {
		out.Annotations = make(map[string]string, len(in.Annotations))
		for k, v := range in.Annotations {
			out.Annotations[k] = v
		}
	}
	return out
}
