// Package errdefs defines the error taxonomy shared by herd's packages.
//
// Configuration, connection and template errors are fatal: they abort an
// invocation before any remote call is made. Provisioning, unclean rollback
// and destruction errors concern a single VM and are collected into the
// end-of-batch summary instead of terminating the run.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a remote object does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a remote object with the same name exists.
	ErrAlreadyExists = errors.New("already exists")
)

// ConfigurationError reports a malformed or missing configuration field.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Configf builds a ConfigurationError for field with a formatted message.
func Configf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Err: fmt.Errorf(format, args...)}
}

// ConnectionError reports a failure to reach or authenticate to the remote plane.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TemplateError reports a blueprint that is missing or malformed at load time.
type TemplateError struct {
	Blueprint string
	Path      string
	Err       error
}

func (e *TemplateError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("template %q: %v", e.Blueprint, e.Err)
	}
	return fmt.Sprintf("template %q (%s): %v", e.Blueprint, e.Path, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// ProvisioningError reports that creating a VM or attaching one of its
// devices failed. Stage is "create", "device" or "start".
type ProvisioningError struct {
	VM    string
	Stage string
	Err   error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning %s failed at %s: %v", e.VM, e.Stage, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// UncleanRollbackError reports that the best-effort delete issued after a
// provisioning failure did not succeed. The VM and some of its volumes may
// still exist on the remote plane.
type UncleanRollbackError struct {
	VM    string
	ID    string
	Cause error // the provisioning failure that triggered the rollback
	Err   error // the rollback failure
}

func (e *UncleanRollbackError) Error() string {
	return fmt.Sprintf("rollback of %s (%s) failed: %v (after: %v)", e.VM, e.ID, e.Err, e.Cause)
}

func (e *UncleanRollbackError) Unwrap() []error { return []error{e.Cause, e.Err} }

// DestructionError reports a failed power-off, delete or discovery during teardown.
type DestructionError struct {
	VM    string
	ID    string
	Stage string
	Err   error
}

func (e *DestructionError) Error() string {
	if e.VM == "" {
		return fmt.Sprintf("destroy failed at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("destroying %s failed at %s: %v", e.VM, e.Stage, e.Err)
}

func (e *DestructionError) Unwrap() error { return e.Err }

// IsFatal reports whether err aborts the whole invocation.
func IsFatal(err error) bool {
	var (
		cfgErr  *ConfigurationError
		connErr *ConnectionError
		tplErr  *TemplateError
	)
	return errors.As(err, &cfgErr) || errors.As(err, &connErr) || errors.As(err, &tplErr)
}

// IsUncleanRollback reports whether err contains an UncleanRollbackError.
func IsUncleanRollback(err error) bool {
	var e *UncleanRollbackError
	return errors.As(err, &e)
}
