// Package extract implements the extractor (C3): turning a raw artifact's
// bytes into a format-agnostic IntermediateDocument of elements carrying
// text, optional bbox, and optional OCR confidence. Each file_format has
// its own extraction policy (§4.3); a genuinely unreadable file is a
// fatal, non-retryable error so the orchestrator moves the job straight
// to the DLQ instead of retrying something that can never succeed.
package extract

import (
	"context"
	"fmt"

	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
)

// Extractor dispatches to the per-format extraction policy.
type Extractor struct {
	ocr OCREngine
}

// New builds an Extractor. ocr may be nil, in which case a
// StubOCREngine is used for pdf-scanned artifacts.
func New(ocr OCREngine) *Extractor {
	if ocr == nil {
		ocr = StubOCREngine{}
	}
	return &Extractor{ocr: ocr}
}

// Extract turns data (the raw bytes fetched from the object store for
// artifact) into an IntermediateDocument, per artifact.FileFormat's
// policy.
func (e *Extractor) Extract(ctx context.Context, artifact model.Artifact, data []byte) (model.IntermediateDocument, error) {
	switch artifact.FileFormat {
	case model.FileFormatPDFDigital:
		return extractPDFDigital(artifact, data)
	case model.FileFormatPDFScanned:
		return extractPDFScanned(ctx, e.ocr, artifact, data)
	case model.FileFormatCSV:
		return extractCSV(artifact, data)
	case model.FileFormatXLSX:
		return extractXLSX(artifact, data)
	default:
		return model.IntermediateDocument{}, payscopeerr.New(payscopeerr.KindExtractionFailed,
			fmt.Sprintf("extract: unknown file_format %q", artifact.FileFormat))
	}
}
