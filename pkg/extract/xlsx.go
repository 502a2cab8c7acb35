package extract

import (
	"fmt"

	"github.com/tealeg/xlsx"

	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
)

// extractXLSX iterates every sheet. Each element's Page is the sheet's
// 1-based index, its Text is prefixed with "[sheet name] ", and its source
// reference carries the row number within the sheet; header
// detection/normalization otherwise follows extractCSV (§4.3: "otherwise
// same as CSV").
func extractXLSX(artifact model.Artifact, data []byte) (model.IntermediateDocument, error) {
	file, err := xlsx.OpenBinary(data)
	if err != nil {
		return model.IntermediateDocument{}, payscopeerr.New(payscopeerr.KindExtractionFailed,
			fmt.Sprintf("extract: xlsx: open workbook: %v", err))
	}

	doc := model.IntermediateDocument{ArtifactID: artifact.ArtifactID}
	for sheetIdx, sheet := range file.Sheets {
		rawRows := make([][]string, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			cells := make([]string, len(row.Cells))
			for i, cell := range row.Cells {
				cells[i] = cell.String()
			}
			rawRows = append(rawRows, cells)
		}

		headerRowPresent := true
		if len(rawRows) >= 2 {
			headerRowPresent = headerScore(rawRows[0]) >= headerScore(rawRows[1])
		}

		var headers []string
		for rowNum, cells := range rawRows {
			if rowNum == 0 && headerRowPresent {
				headers = normalizeHeaders(cells)
				continue
			}
			if headers == nil {
				headers = normalizeHeaders(make([]string, len(cells)))
			}
			doc.Elements = append(doc.Elements, model.Element{
				Page: sheetIdx + 1,
				Type: model.ElementTable,
				Text: fmt.Sprintf("[%s] %s", sheet.Name, joinRecordWithHeaders(headers, cells)),
				SourceRef: model.SourceRef{
					ArtifactID: artifact.ArtifactID, ObjectKey: artifact.ObjectKey, RowOrPage: rowNum + 1,
				},
			})
		}
	}
	if len(doc.Elements) == 0 {
		return model.IntermediateDocument{}, payscopeerr.New(payscopeerr.KindExtractionFailed,
			"extract: xlsx: workbook contains no data rows")
	}
	return doc, nil
}
