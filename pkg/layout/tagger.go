// Package layout implements the layout tagger (C4): assigning a semantic
// field tag to each extracted element. PDF line elements are scored by a
// regex prior blended with a precomputed anchor-keyword profile standing
// in for a text embedding (see DESIGN.md for why this is a deterministic
// hand-rolled scorer rather than a live embedding call); tabular elements
// (the `key=value` rows extract.go's csv/xlsx policy emits) are scored by
// header-token match and a value-population profile.
package layout

import (
	"regexp"
	"sort"
	"strings"

	"github.com/payscope/payscope/pkg/model"
)

// tieBreakEpsilon is the score window within which two candidate tags are
// considered tied, per §4.4.
const tieBreakEpsilon = 0.03

// tieBreakOrder is the deterministic preference order applied inside the
// epsilon window: transaction_id > date > amount > currency > status.
var tieBreakOrder = []model.FieldTag{
	model.FieldTransactionID, model.FieldDate, model.FieldAmount, model.FieldCurrency, model.FieldStatus,
}

var tieBreakRank = func() map[model.FieldTag]int {
	m := map[model.FieldTag]int{}
	for i, t := range tieBreakOrder {
		m[t] = i
	}
	return m
}()

// fieldPattern pairs a field tag with its regex prior and header-token
// vocabulary.
type fieldPattern struct {
	tag     model.FieldTag
	regex   *regexp.Regexp
	anchors []string
}

var patterns = []fieldPattern{
	{
		tag:     model.FieldTransactionID,
		regex:   regexp.MustCompile(`(?i)\b([a-z0-9]{6,})\b`),
		anchors: []string{"transaction", "id", "txn", "reference", "ref"},
	},
	{
		tag:     model.FieldDate,
		regex:   regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2})?(Z|[+-]\d{2}:?\d{2})?)?\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
		anchors: []string{"date", "time", "timestamp", "posted", "processed"},
	},
	{
		tag:     model.FieldAmount,
		regex:   regexp.MustCompile(`[$€£]?\s*-?\d{1,3}(,\d{3})*(\.\d{1,4})?\s*[$€£]?`),
		anchors: []string{"amount", "total", "value", "sum", "charge"},
	},
	{
		tag:     model.FieldCurrency,
		regex:   regexp.MustCompile(`(?i)\b(USD|EUR|GBP|JPY|CAD|AUD|CHF|CNY|INR|MXN)\b`),
		anchors: []string{"currency", "ccy", "cur"},
	},
	{
		tag:     model.FieldStatus,
		regex:   regexp.MustCompile(`(?i)\b(AUTH|AUTHORIZED|CLEARING|CLEARED|SETTLEMENT|SETTLED|DECLINED|DISPUTED|PENDING)\b`),
		anchors: []string{"status", "state", "stage", "lifecycle"},
	},
}

// candidate is one field tag's score for an element, before tie-breaking.
type candidate struct {
	tag   model.FieldTag
	score float64
}

// Tagger assigns field tags to extracted elements.
type Tagger struct{}

// New builds a Tagger. It holds no state; scoring is pure functions of
// element content, so a single shared instance is safe for concurrent use.
func New() *Tagger {
	return &Tagger{}
}

// Tag scores and assigns a field tag to every element in doc.
func (t *Tagger) Tag(doc model.IntermediateDocument) []model.LayoutTaggedElement {
	out := make([]model.LayoutTaggedElement, 0, len(doc.Elements))
	for _, el := range doc.Elements {
		tag, confidence := classify(el)
		out = append(out, model.LayoutTaggedElement{
			Element:       el,
			FieldTag:      tag,
			TagConfidence: confidence,
		})
	}
	return out
}

func classify(el model.Element) (model.FieldTag, float64) {
	if strings.TrimSpace(el.Text) == "" {
		return model.FieldNone, 0
	}

	candidates := make([]candidate, 0, len(patterns))
	for _, p := range patterns {
		candidates = append(candidates, candidate{tag: p.tag, score: score(el, p)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return tieBreakRank[candidates[i].tag] < tieBreakRank[candidates[j].tag]
	})

	best := candidates[0]
	if best.score <= 0 {
		return model.FieldNone, 0
	}

	// Apply the explicit tie-break when the top two candidates are within
	// epsilon of each other, even if sort's stability already picked the
	// preferred tag — this keeps the rule visible and correct regardless
	// of how many candidates tie.
	for _, c := range candidates[1:] {
		if best.score-c.score > tieBreakEpsilon {
			break
		}
		if tieBreakRank[c.tag] < tieBreakRank[best.tag] {
			best = c
		}
	}
	return best.tag, best.score
}

// score blends regex match, header/anchor token overlap, and OCR
// confidence into a single monotone value in [0, 1], per §4.4's "monotone
// combination of cosine similarity, regex match, and OCR confidence" —
// anchor token overlap stands in for cosine similarity against a
// precomputed embedding (see package doc).
func score(el model.Element, p fieldPattern) float64 {
	text := el.Text
	lower := strings.ToLower(text)

	regexScore := 0.0
	if p.regex.MatchString(text) {
		regexScore = 0.6
	}

	anchorScore := 0.0
	for _, a := range p.anchors {
		if strings.Contains(lower, a) {
			anchorScore = 0.4
			break
		}
	}

	total := regexScore + anchorScore
	if total > 1 {
		total = 1
	}
	if el.OCRConfidence != nil {
		total *= 0.5 + 0.5*(*el.OCRConfidence)
	}
	return total
}
