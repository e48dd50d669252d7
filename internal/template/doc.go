// Package template composes libvirt VM and device definitions from
// blueprints.
//
// A blueprint is a small libvirt XML document for a domain or for one device
// kind. Blueprints are read and validated once when the Composer is built;
// a missing or malformed blueprint is an *errdefs.TemplateError at that
// point. The Composer keeps only the validated text, so every Compose call
// parses a brand new value and callers may mutate what they get back
// without affecting later calls.
//
// Default blueprints are embedded in the binary. Load reads a directory
// containing vm.xml, disk.xml, cdrom.xml, nic.xml and display.xml instead.
package template
