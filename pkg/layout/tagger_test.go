package layout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payscope/payscope/pkg/layout"
	"github.com/payscope/payscope/pkg/model"
)

func TestTag_AssignsAmountToMonetaryLine(t *testing.T) {
	tagger := layout.New()
	doc := model.IntermediateDocument{
		ArtifactID: "art-1",
		Elements:   []model.Element{{Type: model.ElementLine, Text: "Total Amount: $1,204.55"}},
	}
	tagged := tagger.Tag(doc)
	require.Len(t, tagged, 1)
	assert.Equal(t, model.FieldAmount, tagged[0].FieldTag)
	assert.Greater(t, tagged[0].TagConfidence, 0.0)
}

func TestTag_AssignsCurrencyCode(t *testing.T) {
	tagger := layout.New()
	doc := model.IntermediateDocument{Elements: []model.Element{{Type: model.ElementLine, Text: "Currency: USD"}}}
	tagged := tagger.Tag(doc)
	require.Len(t, tagged, 1)
	assert.Equal(t, model.FieldCurrency, tagged[0].FieldTag)
}

func TestTag_AssignsStatusFromLifecycleKeyword(t *testing.T) {
	tagger := layout.New()
	doc := model.IntermediateDocument{Elements: []model.Element{{Type: model.ElementLine, Text: "Status: SETTLED"}}}
	tagged := tagger.Tag(doc)
	require.Len(t, tagged, 1)
	assert.Equal(t, model.FieldStatus, tagged[0].FieldTag)
}

func TestTag_EmptyTextYieldsNoneTag(t *testing.T) {
	tagger := layout.New()
	doc := model.IntermediateDocument{Elements: []model.Element{{Type: model.ElementLine, Text: "   "}}}
	tagged := tagger.Tag(doc)
	require.Len(t, tagged, 1)
	assert.Equal(t, model.FieldNone, tagged[0].FieldTag)
	assert.Equal(t, 0.0, tagged[0].TagConfidence)
}

func TestTag_LowOCRConfidenceDampensScore(t *testing.T) {
	tagger := layout.New()
	lowConf := 0.1
	highConf := 0.9
	lowDoc := model.IntermediateDocument{Elements: []model.Element{{Type: model.ElementLine, Text: "Status: SETTLED", OCRConfidence: &lowConf}}}
	highDoc := model.IntermediateDocument{Elements: []model.Element{{Type: model.ElementLine, Text: "Status: SETTLED", OCRConfidence: &highConf}}}
	lowTagged := tagger.Tag(lowDoc)
	highTagged := tagger.Tag(highDoc)
	assert.Less(t, lowTagged[0].TagConfidence, highTagged[0].TagConfidence)
}
