package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/types"
)

const storageScopeName = "github.com/steveyegge/workgraph/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in wg.storage.* metrics.
// Use WrapStorage to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStorage struct {
	inner         storage.Storage
	tracer        trace.Tracer
	ops           metric.Int64Counter
	dur           metric.Float64Histogram
	errs          metric.Int64Counter
	instanceGauge metric.Int64Gauge
}

var _ storage.Storage = (*InstrumentedStorage)(nil)

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	return newInstrumentedStorage(s)
}

func newInstrumentedStorage(s storage.Storage) *InstrumentedStorage {
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("wg.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("wg.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("wg.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	instanceGauge, _ := m.Int64Gauge("wg.instance.count",
		metric.WithDescription("Instances of a tenant by aggregate status (snapshot from ListInstances)"),
	)
	return &InstrumentedStorage{
		inner:         s,
		tracer:        Tracer(storageScopeName),
		ops:           ops,
		dur:           dur,
		errs:          errs,
		instanceGauge: instanceGauge,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// ── Templates ───────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateTemplateGraph(ctx context.Context, graph *types.TemplateGraph) error {
	attrs := []attribute.KeyValue{
		attribute.Int("wg.template.nodes", len(graph.Nodes)),
		attribute.Int("wg.template.edges", len(graph.Edges)),
	}
	ctx, span, t := s.op(ctx, "CreateTemplateGraph", attrs...)
	err := s.inner.CreateTemplateGraph(ctx, graph)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetTemplate(ctx context.Context, id string) (*types.Template, error) {
	attrs := []attribute.KeyValue{attribute.String("wg.template.id", id)}
	ctx, span, t := s.op(ctx, "GetTemplate", attrs...)
	v, err := s.inner.GetTemplate(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetTemplateGraph(ctx context.Context, id string) (*types.TemplateGraph, error) {
	attrs := []attribute.KeyValue{attribute.String("wg.template.id", id)}
	ctx, span, t := s.op(ctx, "GetTemplateGraph", attrs...)
	v, err := s.inner.GetTemplateGraph(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListTemplates(ctx context.Context, tenantID string) ([]*types.Template, error) {
	attrs := []attribute.KeyValue{attribute.String("wg.tenant", tenantID)}
	ctx, span, t := s.op(ctx, "ListTemplates", attrs...)
	v, err := s.inner.ListTemplates(ctx, tenantID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Instances ───────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetInstance(ctx context.Context, id string) (*types.Instance, error) {
	attrs := []attribute.KeyValue{attribute.String("wg.instance.id", id)}
	ctx, span, t := s.op(ctx, "GetInstance", attrs...)
	v, err := s.inner.GetInstance(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetInstanceGraph(ctx context.Context, id string) (*types.InstanceGraph, error) {
	attrs := []attribute.KeyValue{attribute.String("wg.instance.id", id)}
	ctx, span, t := s.op(ctx, "GetInstanceGraph", attrs...)
	v, err := s.inner.GetInstanceGraph(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListInstances(ctx context.Context, filter types.InstanceFilter) (*types.InstancePage, error) {
	attrs := []attribute.KeyValue{attribute.String("wg.tenant", filter.TenantID)}
	ctx, span, t := s.op(ctx, "ListInstances", attrs...)
	v, err := s.inner.ListInstances(ctx, filter)
	s.done(ctx, span, t, err, attrs...)
	if err == nil && v != nil && filter.Status != nil {
		// Total of a status-filtered listing is a snapshot of that status.
		s.instanceGauge.Record(ctx, int64(v.Total), metric.WithAttributes(
			attribute.String("wg.tenant", filter.TenantID),
			attribute.String("status", string(*filter.Status)),
		))
	}
	return v, err
}

// ── Audit ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetAuditEntries(ctx context.Context, instanceID string, limit int) ([]*types.AuditEntry, error) {
	attrs := []attribute.KeyValue{attribute.String("wg.instance.id", instanceID)}
	ctx, span, t := s.op(ctx, "GetAuditEntries", attrs...)
	v, err := s.inner.GetAuditEntries(ctx, instanceID, limit)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Transactions ─────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	ctx, span, t := s.op(ctx, "RunInTransaction")
	attempts := 0
	err := s.inner.RunInTransaction(ctx, func(tx storage.Transaction) error {
		attempts++
		return fn(tx)
	})
	span.SetAttributes(attribute.Int("wg.tx.attempts", attempts))
	s.done(ctx, span, t, err)
	return err
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
