// Package observability provides OpenTelemetry tracing and metrics for
// PayScope's services: the ingestion pipeline, the RAG query engine, and
// the HTTP API.
//
// # Tracing and metrics
//
// Initialize a provider at application startup:
//
//	provider, err := observability.New(ctx, observability.DefaultConfig())
//	defer provider.Shutdown(ctx)
//
// Track an operation end-to-end, recording a span plus RED metrics:
//
//	ctx, finish := provider.TrackOperation(ctx, "ingest.extract",
//		observability.IngestStageOperation(bankID, artifactID, "extract", "csv")...)
//	defer finish(err)
//
// # PayScope attributes
//
// payscope.go exposes helpers that build the attribute sets for ingestion
// stages, parse job transitions, RAG query dispatch, and audit ledger
// writes, keeping span and metric labels consistent across packages.
package observability
