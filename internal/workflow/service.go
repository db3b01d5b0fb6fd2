// Package workflow is the orchestration layer of the dependency engine.
//
// Service enforces tenant isolation and role checks, reads the slice of the
// persistent graph an operation needs, delegates decisions to the graph and
// cascade packages, and commits every resulting mutation in one transaction.
// Nothing is cached between calls; each operation re-derives state from the
// store.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/workgraph/internal/access"
	"github.com/steveyegge/workgraph/internal/audit"
	"github.com/steveyegge/workgraph/internal/clone"
	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/telemetry"
	"github.com/steveyegge/workgraph/internal/types"
)

const scopeName = "github.com/steveyegge/workgraph/workflow"

// DefaultTimeout bounds a single mutating operation other than cloning.
const DefaultTimeout = 15 * time.Second

// Service implements the graph operations.
type Service struct {
	store   storage.Storage
	cloner  *clone.Cloner
	audit   *audit.Recorder
	log     *slog.Logger
	timeout time.Duration

	sink         audit.Sink
	cloneTimeout time.Duration

	tracer   trace.Tracer
	cascades metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithAuditSink replaces the default in-transaction audit sink.
func WithAuditSink(sink audit.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithTimeout bounds each mutating operation.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithCloneTimeout bounds the instantiate transaction.
func WithCloneTimeout(d time.Duration) Option {
	return func(s *Service) { s.cloneTimeout = d }
}

// New returns a Service over store.
func New(store storage.Storage, opts ...Option) *Service {
	s := &Service{store: store, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	s.audit = audit.NewRecorder(s.sink, s.log)
	s.cloner = clone.New(store, s.audit, s.log, s.cloneTimeout)
	s.tracer = telemetry.Tracer(scopeName)
	s.cascades, _ = telemetry.Meter(scopeName).Int64Counter("wg.cascade.changes",
		metric.WithDescription("Dependent nodes locked or unlocked by status cascades"),
	)
	return s
}

// span starts a span for op; end records err (after classification) and closes it.
func (s *Service) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error) error) {
	ctx, span := s.tracer.Start(ctx, "workflow."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) error {
		err = classify(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		return err
	}
}

// mutate runs fn in one transaction under the per-operation timeout.
func (s *Service) mutate(ctx context.Context, fn func(tx storage.Transaction) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.audit.Run(ctx, s.store, fn)
}

func checkCaller(tc types.TenantContext) error {
	if err := tc.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return nil
}

// loadInstance reads an instance and hides it from other tenants.
func loadInstance(ctx context.Context, tx storage.Transaction, tc types.TenantContext, id string) (*types.Instance, error) {
	inst, err := tx.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.SameTenant(tc, inst.TenantID) {
		return nil, fmt.Errorf("instance %s: %w", id, ErrNotFound)
	}
	return inst, nil
}

// loadNode reads a node with its instance and hides both from other tenants.
func loadNode(ctx context.Context, tx storage.Transaction, tc types.TenantContext, id string) (*types.InstanceNode, *types.Instance, error) {
	node, err := tx.GetNode(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	inst, err := tx.GetInstance(ctx, node.InstanceID)
	if err != nil {
		return nil, nil, err
	}
	if !access.SameTenant(tc, inst.TenantID) {
		return nil, nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return node, inst, nil
}

// aggregateStatus is completed once the instance has task nodes and all of them are done.
func aggregateStatus(nodes []*types.InstanceNode) types.InstanceStatus {
	tasks := 0
	for _, n := range nodes {
		if n.Kind != types.KindTask {
			continue
		}
		tasks++
		if n.Status != types.StatusDone {
			return types.InstanceActive
		}
	}
	if tasks == 0 {
		return types.InstanceActive
	}
	return types.InstanceCompleted
}

// refreshInstanceStatus recomputes and persists the aggregate status.
func refreshInstanceStatus(ctx context.Context, tx storage.Transaction, inst *types.Instance) error {
	nodes, err := tx.GetNodes(ctx, inst.ID)
	if err != nil {
		return err
	}
	status := aggregateStatus(nodes)
	if status == inst.Status {
		return nil
	}
	if err := tx.UpdateInstanceStatus(ctx, inst.ID, status); err != nil {
		return err
	}
	inst.Status = status
	return nil
}
