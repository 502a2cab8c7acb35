// Package observability provides PayScope-specific instrumentation helpers,
// layered on top of the generic tracer/meter in observability.go.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PayScope semantic convention attributes.
var (
	// Tenant attributes
	AttrBankID = attribute.Key("payscope.bank.id")

	// Ingestion attributes
	AttrArtifactID   = attribute.Key("payscope.artifact.id")
	AttrIngestStage  = attribute.Key("payscope.ingest.stage")
	AttrFileFormat   = attribute.Key("payscope.artifact.file_format")
	AttrJobID        = attribute.Key("payscope.job.id")
	AttrJobStatus    = attribute.Key("payscope.job.status")
	AttrAttemptCount = attribute.Key("payscope.job.attempt_count")

	// RAG query engine attributes
	AttrQueryIntent   = attribute.Key("payscope.rag.intent")
	AttrAgentName     = attribute.Key("payscope.rag.agent")
	AttrConfidence    = attribute.Key("payscope.rag.confidence")
	AttrQueryLatency  = attribute.Key("payscope.rag.latency_ms")
	AttrAgentsInvoked = attribute.Key("payscope.rag.agents_invoked")

	// Audit trail attributes
	AttrAuditSequence = attribute.Key("payscope.audit.sequence")
	AttrAuditHash     = attribute.Key("payscope.audit.hash")
	AttrAuditVerified = attribute.Key("payscope.audit.verified")
)

// IngestStageOperation creates attributes for one pipeline stage transition
// (extract, tag, map, validate, persist, audit) acting on an artifact.
func IngestStageOperation(bankID, artifactID, stage, fileFormat string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrBankID.String(bankID),
		AttrArtifactID.String(artifactID),
		AttrIngestStage.String(stage),
		AttrFileFormat.String(fileFormat),
	}
}

// JobOperation creates attributes for a parse job's lease/claim/complete
// lifecycle events recorded by the orchestrator queue.
func JobOperation(jobID, artifactID, status string, attemptCount int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrJobID.String(jobID),
		AttrArtifactID.String(artifactID),
		AttrJobStatus.String(status),
		AttrAttemptCount.Int64(attemptCount),
	}
}

// RAGQueryOperation creates attributes for a completed chat query: the
// classified intent, which agents the dispatcher ran, and the response's
// confidence, used to correlate slow or low-confidence answers with a trace.
func RAGQueryOperation(bankID, intent string, agentsInvoked int, confidence float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrBankID.String(bankID),
		AttrQueryIntent.String(intent),
		AttrAgentsInvoked.Int(agentsInvoked),
		AttrConfidence.Float64(confidence),
	}
}

// AuditOperation creates attributes for an audit ledger append, recording
// the JCS content hash and chain sequence number written for bankID.
func AuditOperation(bankID string, sequence int64, hash string, verified bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrBankID.String(bankID),
		AttrAuditSequence.Int64(sequence),
		AttrAuditHash.String(hash),
		AttrAuditVerified.Bool(verified),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span, if any.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
