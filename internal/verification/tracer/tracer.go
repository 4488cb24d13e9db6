// Package tracer is a small tracing abstraction for the verification flow.
//
// Services depend on Tracer and Span rather than on OpenTelemetry, so tests run
// with NoopTracer and the server wires OTelTracer.
package tracer

import (
	"context"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span; a non-nil err marks it failed.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
//
//	ctx, span := t.Start(ctx, tracer.SpanOracleCompare,
//	    tracer.Int64(tracer.AttrCredentialID, int64(credentialID)),
//	)
//	defer span.End(err)
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanVerify        = "verification.verify"
	SpanVerifyBatch   = "verification.batch"
	SpanLedgerLookup  = "verification.ledger_lookup"
	SpanOracleCompare = "verification.oracle.compare"
)

// Attribute keys.
const (
	AttrCredentialID  = "credential_id"
	AttrCacheHit      = "cache.hit"
	AttrHasImage      = "has_image"
	AttrReason        = "reason"
	AttrConfidence    = "confidence"
	AttrOracleFailure = "oracle.failure"
	AttrBatchSize     = "batch.size"
)

// Event names.
const (
	EventStateEntered = "state.entered"
)
