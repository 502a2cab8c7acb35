package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
)

// extractPDFDigital partitions a text-layer PDF into per-page, per-row
// elements, preserving reading order. Each row's bbox spans the min/max x
// of its text runs, with y0 == y1 == the row's baseline position.
// Confidence is left nil, matching the "confidence left null" policy for
// digital PDFs.
func extractPDFDigital(artifact model.Artifact, data []byte) (model.IntermediateDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return model.IntermediateDocument{}, payscopeerr.New(payscopeerr.KindExtractionFailed,
			fmt.Sprintf("extract: pdf-digital: open reader: %v", err))
	}

	doc := model.IntermediateDocument{ArtifactID: artifact.ArtifactID}
	totalPages := reader.NumPage()
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			// A single unreadable page is a partial failure, not a fatal
			// one: record a marker element and keep going.
			doc.Elements = append(doc.Elements, errorMarkerElement(artifact, pageNum, err))
			continue
		}
		for _, row := range rows {
			text := joinRowText(row.Content)
			if text == "" {
				continue
			}
			doc.Elements = append(doc.Elements, model.Element{
				Page: pageNum,
				Type: model.ElementLine,
				Text: text,
				BBox: &model.BoundingBox{
					X0: minX(row.Content), Y0: row.Position,
					X1: maxX(row.Content), Y1: row.Position,
				},
				SourceRef: model.SourceRef{ArtifactID: artifact.ArtifactID, ObjectKey: artifact.ObjectKey, RowOrPage: pageNum},
			})
		}
	}
	if len(doc.Elements) == 0 {
		return model.IntermediateDocument{}, payscopeerr.New(payscopeerr.KindExtractionFailed,
			"extract: pdf-digital: no text content found in any page")
	}
	return doc, nil
}

func joinRowText(texts []pdf.Text) string {
	s := ""
	for i, t := range texts {
		if i > 0 {
			s += " "
		}
		s += t.S
	}
	return s
}

func minX(texts []pdf.Text) float64 {
	if len(texts) == 0 {
		return 0
	}
	m := texts[0].X
	for _, t := range texts {
		if t.X < m {
			m = t.X
		}
	}
	return m
}

func maxX(texts []pdf.Text) float64 {
	m := 0.0
	for _, t := range texts {
		right := t.X + t.W
		if right > m {
			m = right
		}
	}
	return m
}

// newPDFReaderFromBytes opens an in-memory PDF for page enumeration,
// shared by the digital and scanned extraction paths (the latter needs
// only the page count; rasterization is delegated to the OCREngine).
func newPDFReaderFromBytes(data []byte) (*pdf.Reader, error) {
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func errorMarkerElement(artifact model.Artifact, page int, cause error) model.Element {
	return model.Element{
		Page:      page,
		Type:      model.ElementText,
		Text:      fmt.Sprintf("[extraction error on page %d: %v]", page, cause),
		SourceRef: model.SourceRef{ArtifactID: artifact.ArtifactID, ObjectKey: artifact.ObjectKey, RowOrPage: page},
	}
}
