// Package telemetry wraps the orchestrator's two hot paths — the Agent
// Pool's acquire/release cycle and each agent task — in OpenTelemetry
// spans, following the teacher's span-wrapper idiom: a small struct
// around a trace.Span that exposes only the attributes relevant to its
// phase and closes out with End.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "github.com/iepathos/prodigy/orchestrator"

type Tracer struct {
	tracer trace.Tracer
}

func New() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

func NewWithTracer(t trace.Tracer) *Tracer {
	return &Tracer{tracer: t}
}

// AcquireSpan wraps one Agent Pool Acquire/Release cycle.
type AcquireSpan struct {
	span      trace.Span
	startTime time.Time
}

func (t *Tracer) StartAcquire(ctx context.Context, strategy, task string) (context.Context, *AcquireSpan) {
	ctx, span := t.tracer.Start(ctx, "worktreepool.acquire",
		trace.WithAttributes(
			attribute.String("pool.strategy", strategy),
			attribute.String("pool.task", task),
		),
	)
	return ctx, &AcquireSpan{span: span, startTime: time.Now()}
}

func (s *AcquireSpan) SetWorktree(id, path string, reused bool) {
	s.span.SetAttributes(
		attribute.String("pool.worktree_id", id),
		attribute.String("pool.worktree_path", path),
		attribute.Bool("pool.reused", reused),
	)
}

func (s *AcquireSpan) End(err error) {
	s.span.SetAttributes(attribute.Int64("pool.wait_ms", time.Since(s.startTime).Milliseconds()))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

// ReleaseSpan wraps one Handle.Release call.
type ReleaseSpan struct {
	span      trace.Span
	startTime time.Time
}

func (t *Tracer) StartRelease(ctx context.Context, worktreeID string, failed bool) (context.Context, *ReleaseSpan) {
	ctx, span := t.tracer.Start(ctx, "worktreepool.release",
		trace.WithAttributes(
			attribute.String("pool.worktree_id", worktreeID),
			attribute.Bool("pool.failed", failed),
		),
	)
	return ctx, &ReleaseSpan{span: span, startTime: time.Now()}
}

func (s *ReleaseSpan) SetDisposition(disposition string) {
	s.span.SetAttributes(attribute.String("pool.disposition", disposition))
}

func (s *ReleaseSpan) End(err error) {
	s.span.SetAttributes(attribute.Int64("pool.release_ms", time.Since(s.startTime).Milliseconds()))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

// AgentTaskSpan wraps one RunAgentTask invocation — the scheduler's unit
// of work for a single item.
type AgentTaskSpan struct {
	span      trace.Span
	startTime time.Time
}

func (t *Tracer) StartAgentTask(ctx context.Context, jobID, agentID, itemID string) (context.Context, *AgentTaskSpan) {
	ctx, span := t.tracer.Start(ctx, "orchestrator.agent_task",
		trace.WithAttributes(
			attribute.String("orchestrator.job_id", jobID),
			attribute.String("orchestrator.agent_id", agentID),
			attribute.String("orchestrator.item_id", itemID),
		),
	)
	return ctx, &AgentTaskSpan{span: span, startTime: time.Now()}
}

func (s *AgentTaskSpan) SetStep(stepID string, kind string) {
	s.span.AddEvent("step", trace.WithAttributes(
		attribute.String("orchestrator.step_id", stepID),
		attribute.String("orchestrator.step_kind", kind),
	))
}

func (s *AgentTaskSpan) SetOutcome(outcome string, retryCount int) {
	s.span.SetAttributes(
		attribute.String("orchestrator.outcome", outcome),
		attribute.Int("orchestrator.retry_count", retryCount),
	)
}

func (s *AgentTaskSpan) End(err error) {
	s.span.SetAttributes(attribute.Int64("orchestrator.duration_ms", time.Since(s.startTime).Milliseconds()))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// RecordCheckpoint adds a checkpoint-created event to the span active on
// ctx, used by the scheduler around each interval/phase-transition
// checkpoint without opening a dedicated span for it.
func (t *Tracer) RecordCheckpoint(ctx context.Context, checkpointID, reason string) {
	trace.SpanFromContext(ctx).AddEvent("checkpoint_created", trace.WithAttributes(
		attribute.String("checkpoint.id", checkpointID),
		attribute.String("checkpoint.reason", reason),
	))
}
