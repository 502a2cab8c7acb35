package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payscope/payscope/pkg/model"
)

func TestSortOCRLines_TopToBottomThenLeftToRight(t *testing.T) {
	lines := []OCRLine{
		{Text: "b", BBox: model.BoundingBox{X0: 50, Y0: 10}},
		{Text: "a", BBox: model.BoundingBox{X0: 10, Y0: 10}},
		{Text: "c", BBox: model.BoundingBox{X0: 10, Y0: 100}},
	}
	sortOCRLines(lines)
	require.Len(t, lines, 3)
	assert.Equal(t, "a", lines[0].Text)
	assert.Equal(t, "b", lines[1].Text)
	assert.Equal(t, "c", lines[2].Text)
}

func TestStubOCREngine_ReturnsLowConfidenceMarker(t *testing.T) {
	lines, err := StubOCREngine{}.RecognizePage(context.Background(), nil, 3)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 0.0, lines[0].Confidence)
	assert.Equal(t, 3, lines[0].Page)
}
