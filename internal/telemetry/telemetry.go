// Package telemetry wraps RPC handling in OpenTelemetry spans (its
// caller is the provider's GET-VIEW handler),
// grounded on steveyegge-beads/internal/hooks/hooks_otel.go (which
// attaches hook stdout/stderr as span events); here the "hook output"
// role is played by RPC request/response metadata instead.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/flockgroup/flock")

// StartRPCSpan starts a span around one RPC call, following
// the (stdout, stderr *bytes.Buffer) event-attachment pattern of
// hooks_otel.go but for (op, peer) attributes instead.
func StartRPCSpan(ctx context.Context, op, peer string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "flock.rpc."+op, trace.WithAttributes(
		attribute.String("flock.rpc.op", op),
		attribute.String("flock.rpc.peer", peer),
	))
	return ctx, span
}

// EndRPCSpan records the call's outcome and ends the span, mirroring
// addHookOutputEvents's truncated-event-then-close shape.
func EndRPCSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddGossipEvent records how many gossip entries were piggybacked onto
// one outbound RPC, truncated the way hooks_otel.go truncates hook
// output so a single noisy call can't bloat the trace.
func AddGossipEvent(span trace.Span, entryCount int) {
	if entryCount == 0 {
		return
	}
	span.AddEvent("flock.gossip.piggyback", trace.WithAttributes(
		attribute.Int("entries", clamp(entryCount, 0, 1<<20)),
	))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
