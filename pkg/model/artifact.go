// Package model holds the domain types shared across the ingestion
// pipeline and the RAG query path: artifacts, parse jobs, the intermediate
// document produced by extraction, canonical facts, and audit events.
package model

import "time"

// FileFormat enumerates the artifact formats the extractor accepts.
type FileFormat string

const (
	FileFormatPDFDigital FileFormat = "pdf-digital"
	FileFormatPDFScanned FileFormat = "pdf-scanned"
	FileFormatCSV        FileFormat = "csv"
	FileFormatXLSX       FileFormat = "xlsx"
)

// Artifact is an immutable raw upload. It is created once at upload time
// and never mutated; it is destroyed only by retention policy.
type Artifact struct {
	ArtifactID string     `json:"artifact_id"`
	BankID     string     `json:"bank_id"`
	ObjectKey  string     `json:"object_key"`
	FileFormat FileFormat `json:"file_format"`
	SHA256     string     `json:"sha256"`
	UploadTime time.Time  `json:"upload_time"`
}
