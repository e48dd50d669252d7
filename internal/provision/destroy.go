package provision

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jbweber/herd/internal/errdefs"
	"github.com/jbweber/herd/internal/libvirt"
)

// DestroyRoles powers off and deletes, volumes included, every VM whose
// name starts with one of prefixes. A VM that disappears meanwhile counts
// as destroyed, so running it twice succeeds both times. A failed query
// aborts the batch with a single result carrying a DestructionError.
func (o *Orchestrator) DestroyRoles(ctx context.Context, sess Session, prefixes []string) []VMResult {
	ctx, span := o.tracer.Start(ctx, "DestroyRoles", trace.WithAttributes(
		attribute.StringSlice("prefixes", prefixes),
	))
	defer span.End()

	records, err := sess.Query(ctx)
	if err != nil {
		o.logger.Error("failed to query VMs", zap.Error(err))
		return []VMResult{{
			Outcome: OutcomeDestroyFailed,
			Err:     &errdefs.DestructionError{Stage: StageQuery, Err: err},
		}}
	}

	matched := filterRecords(records, prefixes)
	if len(matched) == 0 {
		o.logger.Info("no VMs match", zap.Strings("prefixes", prefixes))
		return nil
	}

	results := make([]VMResult, 0, len(matched))
	for _, rec := range matched {
		if ctx.Err() != nil {
			o.logger.Warn("cancelled, skipping remaining VMs", zap.Int("remaining", len(matched)-len(results)))
			break
		}
		results = append(results, o.destroyVM(ctx, sess, rec))
	}
	return results
}

func (o *Orchestrator) destroyVM(ctx context.Context, sess Session, rec libvirt.VMRecord) (result VMResult) {
	start := o.now()
	ctx, span := o.tracer.Start(ctx, "DestroyVM", trace.WithAttributes(
		attribute.String("vm.name", rec.Name),
		attribute.String("vm.id", rec.ID),
	))
	defer span.End()

	logger := o.logger.With(zap.String("vm", rec.Name), zap.String("id", rec.ID))

	result = VMResult{
		Name:    rec.Name,
		ID:      rec.ID,
		Devices: rec.Devices,
	}
	if rec.Labels != nil {
		result.Role = rec.Labels.Role
		result.DisplayPort = rec.Labels.DisplayPort
	}
	defer func() {
		o.metrics.recordDestroy(ctx, result.Outcome, o.now().Sub(start))
		if result.Err != nil {
			span.RecordError(result.Err)
		}
	}()

	if err := sess.PowerOff(ctx, rec.ID); err != nil && !errors.Is(err, errdefs.ErrNotFound) {
		logger.Warn("failed to power off VM, deleting anyway", zap.Error(err))
	}

	err := sess.Delete(ctx, rec.ID, true)
	switch {
	case err == nil:
		result.Outcome = OutcomeDestroyed
		logger.Info("VM destroyed")
	case errors.Is(err, errdefs.ErrNotFound):
		result.Outcome = OutcomeAlreadyGone
		logger.Info("VM already gone")
	default:
		result.Outcome = OutcomeDestroyFailed
		result.Err = &errdefs.DestructionError{VM: rec.Name, ID: rec.ID, Stage: StageDelete, Err: err}
		logger.Error("failed to destroy VM", zap.Error(err))
	}
	return result
}
