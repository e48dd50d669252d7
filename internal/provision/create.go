package provision

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jbweber/herd/api/v1alpha1"
	"github.com/jbweber/herd/internal/errdefs"
	"github.com/jbweber/herd/internal/metadata"
	"github.com/jbweber/herd/internal/naming"
	"github.com/jbweber/herd/internal/template"
)

// CreateRole creates the VMs of role, ordinal 1 first, numbering display
// ports from basePort. A failed VM is rolled back and the next ordinal is
// attempted; VMs already created stay. Cancelling ctx stops the batch
// before the next ordinal.
func (o *Orchestrator) CreateRole(ctx context.Context, sess Session, role v1alpha1.Role, storage v1alpha1.StorageSpec, basePort int) []VMResult {
	ctx, span := o.tracer.Start(ctx, "CreateRole", trace.WithAttributes(
		attribute.String("role", role.Name),
		attribute.Int("vm.count", role.Spec.Count),
	))
	defer span.End()

	logger := o.logger.With(zap.String("role", role.Name))
	logger.Info("creating role",
		zap.Int("count", role.Spec.Count),
		zap.Int("first_port", basePort),
	)

	results := make([]VMResult, 0, role.Spec.Count)
	for ordinal := 1; ordinal <= role.Spec.Count; ordinal++ {
		if ctx.Err() != nil {
			logger.Warn("cancelled, skipping remaining VMs", zap.Int("remaining", role.Spec.Count-ordinal+1))
			break
		}

		ident := naming.Allocate(role.Name, basePort, ordinal, role.Spec.Count)
		results = append(results, o.createVM(ctx, sess, role, storage, ident))
	}
	return results
}

func (o *Orchestrator) createVM(ctx context.Context, sess Session, role v1alpha1.Role, storage v1alpha1.StorageSpec, ident naming.Identity) (result VMResult) {
	start := o.now()
	ctx, span := o.tracer.Start(ctx, "CreateVM", trace.WithAttributes(
		attribute.String("vm.name", ident.Name),
		attribute.Int("vm.display_port", ident.DisplayPort),
	))
	defer span.End()

	logger := o.logger.With(zap.String("role", role.Name), zap.String("vm", ident.Name))

	result = VMResult{
		Role:        role.Name,
		Name:        ident.Name,
		DisplayPort: ident.DisplayPort,
	}
	defer func() {
		o.metrics.recordCreate(ctx, role.Name, result.Outcome, o.now().Sub(start))
		if result.Err != nil {
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, string(result.Outcome))
		}
	}()

	spec := o.composer.ComposeVM(ident.Name, role.Spec.CPU, role.Spec.MemoryMiB)
	labels := metadata.Labels{
		Fleet:       o.opts.Fleet,
		Role:        role.Name,
		Ordinal:     ident.Ordinal,
		DisplayPort: ident.DisplayPort,
		RunID:       o.opts.RunID,
	}
	if err := metadata.Annotate(spec.Domain, labels); err != nil {
		result.Outcome = OutcomeFailed
		result.Err = &errdefs.ProvisioningError{VM: ident.Name, Stage: StageCreate, Err: err}
		return result
	}

	ref, err := sess.CreateVM(ctx, spec)
	if err != nil {
		logger.Error("failed to create VM", zap.Error(err))
		result.Outcome = OutcomeFailed
		result.Err = &errdefs.ProvisioningError{VM: ident.Name, Stage: StageCreate, Err: err}
		return result
	}
	result.ID = ref.ID
	logger = logger.With(zap.String("id", ref.ID))

	for _, dev := range o.devices(ref.ID, ident, role, storage) {
		devID, err := sess.CreateDevice(ctx, dev)
		if err != nil {
			return o.rollback(ctx, sess, result, StageDevice, fmt.Errorf("%s: %w", dev.Kind(), err), logger)
		}
		result.Devices = append(result.Devices, devID)
	}

	if o.opts.Start {
		if err := sess.Start(ctx, ref.ID); err != nil {
			return o.rollback(ctx, sess, result, StageStart, err, logger)
		}
	}

	result.Outcome = OutcomeCreated
	logger.Info("VM created",
		zap.Int("display_port", ident.DisplayPort),
		zap.Int("devices", len(result.Devices)),
		zap.Bool("started", o.opts.Start),
	)
	return result
}

// devices returns the devices of a VM in attach order: display, boot
// medium, NICs, then disks, each group in slot order.
func (o *Orchestrator) devices(vmID string, ident naming.Identity, role v1alpha1.Role, storage v1alpha1.StorageSpec) []template.DeviceSpec {
	devs := make([]template.DeviceSpec, 0, 2+len(role.Spec.Networks)+len(role.Spec.Disks))

	devs = append(devs,
		o.composer.ComposeDisplay(vmID, ident.DisplayPort, o.opts.DisplayPassword),
		o.composer.ComposeOpticalMedia(vmID, storage.BootImagePath),
	)

	for _, slot := range role.Spec.Networks {
		nic := o.composer.ComposeNIC(vmID, slot.Value, "")
		nic.Slot = slot.Name
		devs = append(devs, nic)
	}

	for i, slot := range role.Spec.Disks {
		path := naming.VolumePath(storage.PoolPath, ident.Name, i)
		disk := o.composer.ComposeDisk(vmID, path, v1alpha1.GBToBytes(slot.Value), i)
		disk.Slot = slot.Name
		devs = append(devs, disk)
	}

	return devs
}

// rollback deletes a partially created VM with its volumes. It runs on a
// context detached from cancellation so an interrupt does not leave the VM
// behind, bounded by the cleanup timeout.
func (o *Orchestrator) rollback(ctx context.Context, sess Session, result VMResult, stage string, cause error, logger *zap.Logger) VMResult {
	perr := &errdefs.ProvisioningError{VM: result.Name, Stage: stage, Err: cause}
	logger.Warn("provisioning failed, rolling back", zap.String("stage", stage), zap.Error(cause))

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CleanupTimeout)
	defer cancel()

	err := sess.Delete(cleanupCtx, result.ID, true)
	if err == nil || errors.Is(err, errdefs.ErrNotFound) {
		logger.Info("rolled back VM")
		result.Outcome = OutcomeRolledBack
		result.Err = perr
		return result
	}

	logger.Warn("rollback failed, VM or volumes may remain", zap.Error(err))
	result.Outcome = OutcomeUncleanRollback
	result.Err = &errdefs.UncleanRollbackError{
		VM:    result.Name,
		ID:    result.ID,
		Cause: perr,
		Err:   err,
	}
	return result
}
