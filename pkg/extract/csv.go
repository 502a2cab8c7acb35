package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/payscope/payscope/pkg/model"
)

// sniffDelimiter scores comma, semicolon, tab, and pipe by how
// consistently they split the first few lines into the same field count,
// falling back to comma on ambiguity per §4.3 ("sniff ambiguity -> fall
// back to comma + utf-8 with an error marker").
func sniffDelimiter(sample string) (rune, bool) {
	candidates := []rune{',', ';', '\t', '|'}
	lines := strings.SplitN(sample, "\n", 6)
	if len(lines) > 5 {
		lines = lines[:5]
	}

	best := ','
	bestScore := 0
	ambiguous := true
	for _, d := range candidates {
		counts := map[int]int{}
		for _, line := range lines {
			if line == "" {
				continue
			}
			counts[strings.Count(line, string(d))]++
		}
		if len(counts) == 0 {
			continue
		}
		maxAgreement := 0
		for n, c := range counts {
			if n > 0 && c > maxAgreement {
				maxAgreement = c
			}
		}
		if maxAgreement > bestScore {
			bestScore = maxAgreement
			best = d
			ambiguous = false
		}
	}
	return best, !ambiguous
}

// normalizeHeaders lowercases, snake-cases, and de-duplicates header
// names with a numeric suffix, per §4.3.
func normalizeHeaders(raw []string) []string {
	seen := map[string]int{}
	out := make([]string, len(raw))
	for i, h := range raw {
		norm := snakeCase(strings.TrimSpace(h))
		if norm == "" {
			norm = fmt.Sprintf("column_%d", i+1)
		}
		seen[norm]++
		if seen[norm] > 1 {
			norm = fmt.Sprintf("%s_%d", norm, seen[norm])
		}
		out[i] = norm
	}
	return out
}

func snakeCase(s string) string {
	var b strings.Builder
	prevUnderscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		default:
			if !prevUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// headerScore rates how likely a candidate row is to be a header: all
// non-numeric tokens, roughly title- or lower-case words, beats a row
// containing parseable numbers or dates.
func headerScore(fields []string) int {
	score := 0
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		isNumericLike := true
		for _, r := range f {
			if !(r >= '0' && r <= '9' || r == '.' || r == '-' || r == '/' || r == ':' || r == ' ') {
				isNumericLike = false
				break
			}
		}
		if !isNumericLike {
			score++
		}
	}
	return score
}

func extractCSV(artifact model.Artifact, data []byte) (model.IntermediateDocument, error) {
	errorMarker := ""
	if !utf8.Valid(data) {
		errorMarker = "invalid utf-8 encoding, processed with replacement characters"
	}
	text := string(data)

	delim, confident := sniffDelimiter(text)
	if !confident {
		delim = ','
		if errorMarker == "" {
			errorMarker = "delimiter sniff was ambiguous, fell back to comma"
		}
	}

	peekReader := newCSVReader(data, delim)
	var peeked [][]string
	for len(peeked) < 2 {
		record, perr := peekReader.Read()
		if perr != nil {
			break
		}
		peeked = append(peeked, record)
	}

	doc := model.IntermediateDocument{ArtifactID: artifact.ArtifactID}

	headerRowPresent := true
	if len(peeked) >= 2 {
		headerRowPresent = headerScore(peeked[0]) >= headerScore(peeked[1])
	}

	reader := newCSVReader(data, delim)
	rowNum := 0
	var headers []string
	headerConsumed := !headerRowPresent
	for {
		record, rerr := reader.Read()
		if rerr != nil {
			if rerr.Error() == "EOF" {
				break
			}
			// A malformed row is skipped with a per-row error record,
			// preserving the original row number; the file as a whole is
			// not fatal.
			rowNum++
			doc.Elements = append(doc.Elements, rowErrorElement(artifact, rowNum, rerr))
			continue
		}
		rowNum++

		if !headerConsumed {
			headers = normalizeHeaders(record)
			headerConsumed = true
			continue
		}
		if headers == nil {
			headers = normalizeHeaders(make([]string, len(record)))
		}

		doc.Elements = append(doc.Elements, model.Element{
			Page: 1,
			Type: model.ElementTable,
			Text: joinRecordWithHeaders(headers, record),
			SourceRef: model.SourceRef{
				ArtifactID: artifact.ArtifactID, ObjectKey: artifact.ObjectKey, RowOrPage: rowNum,
			},
		})
	}

	if errorMarker != "" && len(doc.Elements) > 0 {
		doc.Elements[0].Text = doc.Elements[0].Text + " [" + errorMarker + "]"
	}
	return doc, nil
}

func newCSVReader(data []byte, delim rune) *csv.Reader {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r
}

func joinRecordWithHeaders(headers, record []string) string {
	var b strings.Builder
	for i, v := range record {
		name := fmt.Sprintf("col%d", i)
		if i < len(headers) {
			name = headers[i]
		}
		if i > 0 {
			b.WriteByte('\t')
		}
		fmt.Fprintf(&b, "%s=%s", name, v)
	}
	return b.String()
}

func rowErrorElement(artifact model.Artifact, row int, cause error) model.Element {
	return model.Element{
		Page:      1,
		Type:      model.ElementText,
		Text:      fmt.Sprintf("[row %d skipped: %v]", row, cause),
		SourceRef: model.SourceRef{ArtifactID: artifact.ArtifactID, ObjectKey: artifact.ObjectKey, RowOrPage: row},
	}
}
