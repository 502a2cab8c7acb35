package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payscope/payscope/pkg/model"
)

func TestExtractCSV_HappyPath(t *testing.T) {
	data := []byte("Transaction ID,Amount,Currency\nT1,100.00,USD\nT2,200.00,USD\n")
	doc, err := extractCSV(model.Artifact{ArtifactID: "art-1", ObjectKey: "raw/b1/art-1/f.csv"}, data)
	require.NoError(t, err)
	require.Len(t, doc.Elements, 2)
	assert.Contains(t, doc.Elements[0].Text, "transaction_id=T1")
	assert.Equal(t, 2, doc.Elements[0].SourceRef.RowOrPage)
}

func TestExtractCSV_SingleDataRowWithHeader(t *testing.T) {
	data := []byte("transaction_id,amount\nT1,1.00\n")
	doc, err := extractCSV(model.Artifact{ArtifactID: "art-1"}, data)
	require.NoError(t, err)
	require.Len(t, doc.Elements, 1)
}

func TestExtractCSV_MalformedRowRecordedAndSkipped(t *testing.T) {
	data := []byte("a,b,c\n1,2,3\n\"unterminated,4,5\n6,7,8\n")
	doc, err := extractCSV(model.Artifact{ArtifactID: "art-1"}, data)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(doc.Elements), 2)
}

func TestSniffDelimiter_Semicolon(t *testing.T) {
	d, confident := sniffDelimiter("a;b;c\n1;2;3\n4;5;6\n")
	assert.True(t, confident)
	assert.Equal(t, ';', d)
}

func TestNormalizeHeaders_DedupesAndSnakeCases(t *testing.T) {
	out := normalizeHeaders([]string{"Transaction ID", "Amount", "Amount"})
	assert.Equal(t, []string{"transaction_id", "amount", "amount_2"}, out)
}

func TestHeaderScore_HeaderBeatsDataRow(t *testing.T) {
	header := []string{"transaction_id", "amount"}
	dataRow := []string{"123", "45.67"}
	assert.Greater(t, headerScore(header), headerScore(dataRow))
}
