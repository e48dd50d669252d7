package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jbweber/herd/api/v1alpha1"
	"github.com/jbweber/herd/internal/libvirt"
	"github.com/jbweber/herd/internal/loader"
	"github.com/jbweber/herd/internal/naming"
	"github.com/jbweber/herd/internal/template"
)

// DefaultCleanupTimeout bounds a rollback delete, which runs even after the
// invocation has been cancelled.
const DefaultCleanupTimeout = 2 * time.Minute

// Options tune an Orchestrator.
type Options struct {
	// Fleet is recorded in the labels of every created VM.
	Fleet string

	// RunID is recorded in the labels of every created VM. A random id is
	// used when empty.
	RunID string

	// DisplayPassword protects every VM's remote display.
	DisplayPassword string

	// Start boots each VM once its devices are attached.
	Start bool

	// CleanupTimeout bounds each rollback. Defaults to DefaultCleanupTimeout.
	CleanupTimeout time.Duration
}

// Orchestrator runs create and destroy batches. It is not safe for
// concurrent use.
type Orchestrator struct {
	connector Connector
	composer  *template.Composer
	opts      Options
	logger    *zap.Logger
	tracer    trace.Tracer
	metrics   *metrics
	now       func() time.Time
}

// New returns an Orchestrator that opens sessions with connector and
// builds definitions with composer.
func New(connector Connector, composer *template.Composer, opts Options, logger *zap.Logger) (*Orchestrator, error) {
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}

	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	if opts.CleanupTimeout == 0 {
		opts.CleanupTimeout = DefaultCleanupTimeout
	}

	return &Orchestrator{
		connector: connector,
		composer:  composer,
		opts:      opts,
		logger:    logger.With(zap.String("component", "provision")),
		tracer:    otel.Tracer(instrumentationName),
		metrics:   m,
		now:       time.Now,
	}, nil
}

// withSession runs fn with a session that is closed on every exit path.
func (o *Orchestrator) withSession(ctx context.Context, fn func(Session) error) error {
	sess, err := o.connector.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			o.logger.Warn("failed to close session", zap.Error(err))
		}
	}()

	return fn(sess)
}

// Create creates the selected roles of fleet, all roles when roles is
// empty, in document order. The returned error is non-nil only for
// failures that stop the whole batch; per-VM failures are in the Summary.
func (o *Orchestrator) Create(ctx context.Context, fleet *v1alpha1.Fleet, roles []string) (*Summary, error) {
	selected, err := loader.SelectRoles(fleet, roles)
	if err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "Create", trace.WithAttributes(
		attribute.StringSlice("roles", roleNames(selected)),
	))
	defer span.End()

	summary := newSummary(OperationCreate, o.now())
	storage := fleet.Spec.Storage

	err = o.withSession(ctx, func(sess Session) error {
		if storage.EnsurePool {
			if err := sess.EnsurePool(ctx, storage); err != nil {
				return fmt.Errorf("failed to ensure storage pool %s: %w", storage.PoolName, err)
			}
		}

		for _, role := range selected {
			if ctx.Err() != nil {
				o.logger.Warn("cancelled, skipping remaining roles", zap.String("role", role.Name))
				break
			}
			summary.Results = append(summary.Results, o.CreateRole(ctx, sess, role, storage, role.Spec.DisplayPort)...)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return summary, err
	}

	o.logger.Info("create finished",
		zap.Int("created", summary.Count(OutcomeCreated)),
		zap.Int("rolled_back", summary.Count(OutcomeRolledBack)),
		zap.Int("unclean", summary.Unclean()),
		zap.Int("failed", summary.Count(OutcomeFailed)),
	)
	return summary, nil
}

// Destroy removes every VM whose name starts with one of prefixes.
func (o *Orchestrator) Destroy(ctx context.Context, prefixes []string) (*Summary, error) {
	ctx, span := o.tracer.Start(ctx, "Destroy", trace.WithAttributes(
		attribute.StringSlice("prefixes", prefixes),
	))
	defer span.End()

	summary := newSummary(OperationDestroy, o.now())

	err := o.withSession(ctx, func(sess Session) error {
		summary.Results = append(summary.Results, o.DestroyRoles(ctx, sess, prefixes)...)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return summary, err
	}

	o.logger.Info("destroy finished",
		zap.Int("destroyed", summary.Count(OutcomeDestroyed)),
		zap.Int("already_gone", summary.Count(OutcomeAlreadyGone)),
		zap.Int("failed", summary.Count(OutcomeDestroyFailed)),
	)
	return summary, nil
}

// List returns the VMs whose name starts with one of prefixes.
func (o *Orchestrator) List(ctx context.Context, prefixes []string) ([]libvirt.VMRecord, error) {
	var matched []libvirt.VMRecord

	err := o.withSession(ctx, func(sess Session) error {
		records, err := sess.Query(ctx)
		if err != nil {
			return err
		}
		matched = filterRecords(records, prefixes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matched, nil
}

func filterRecords(records []libvirt.VMRecord, prefixes []string) []libvirt.VMRecord {
	matched := make([]libvirt.VMRecord, 0, len(records))
	for _, rec := range records {
		if naming.HasAnyPrefix(rec.Name, prefixes) {
			matched = append(matched, rec)
		}
	}
	return matched
}

func roleNames(roles []v1alpha1.Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names
}
