package extract

import (
	"context"
	"fmt"
	"sort"

	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
)

// OCRLine is one recognized line of text on a rasterized page, in pixel
// coordinates, as returned by an OCREngine.
type OCRLine struct {
	Page       int
	Text       string
	BBox       model.BoundingBox
	Confidence float64
}

// OCREngine rasterizes a scanned-PDF page and recognizes its text. A real
// backend (Tesseract, a cloud OCR API) implements this; StubOCREngine
// provides a deterministic fallback for environments with no OCR
// backend configured, matching the "continue with an error marker on
// partial failure" policy when recognition fails outright.
type OCREngine interface {
	RecognizePage(ctx context.Context, pdfBytes []byte, page int) ([]OCRLine, error)
}

// StubOCREngine returns a single low-confidence marker line per page
// rather than performing real recognition, so pipelines without an OCR
// backend configured still produce a (clearly synthetic) document
// instead of failing every pdf-scanned upload outright.
type StubOCREngine struct{}

// RecognizePage implements OCREngine.
func (StubOCREngine) RecognizePage(_ context.Context, _ []byte, page int) ([]OCRLine, error) {
	return []OCRLine{{
		Page:       page,
		Text:       fmt.Sprintf("[ocr stub: no recognition backend configured for page %d]", page),
		Confidence: 0,
	}}, nil
}

// extractPDFScanned rasterizes each page (delegated to the OCREngine,
// which is responsible for its own rasterization) and sorts recognized
// lines top-to-bottom then left-to-right within a vertical band
// tolerance, per §4.3.
func extractPDFScanned(ctx context.Context, ocr OCREngine, artifact model.Artifact, data []byte) (model.IntermediateDocument, error) {
	pageCount, err := countPDFPages(data)
	if err != nil {
		return model.IntermediateDocument{}, payscopeerr.New(payscopeerr.KindExtractionFailed,
			fmt.Sprintf("extract: pdf-scanned: count pages: %v", err))
	}

	doc := model.IntermediateDocument{ArtifactID: artifact.ArtifactID}
	for page := 1; page <= pageCount; page++ {
		lines, err := ocr.RecognizePage(ctx, data, page)
		if err != nil {
			doc.Elements = append(doc.Elements, errorMarkerElement(artifact, page, err))
			continue
		}
		sortOCRLines(lines)
		for _, line := range lines {
			conf := line.Confidence
			doc.Elements = append(doc.Elements, model.Element{
				Page:          page,
				Type:          model.ElementLine,
				Text:          line.Text,
				BBox:          &line.BBox,
				OCRConfidence: &conf,
				SourceRef:     model.SourceRef{ArtifactID: artifact.ArtifactID, ObjectKey: artifact.ObjectKey, RowOrPage: page},
			})
		}
	}
	return doc, nil
}

// bandTolerance is the vertical pixel window within which two OCR lines
// are considered the same reading band and ordered left-to-right instead
// of strictly by y-coordinate.
const bandTolerance = 6.0

func sortOCRLines(lines []OCRLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		dy := lines[i].BBox.Y0 - lines[j].BBox.Y0
		if dy < -bandTolerance || dy > bandTolerance {
			return lines[i].BBox.Y0 < lines[j].BBox.Y0
		}
		return lines[i].BBox.X0 < lines[j].BBox.X0
	})
}

func countPDFPages(data []byte) (int, error) {
	reader, err := newPDFReaderFromBytes(data)
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}
