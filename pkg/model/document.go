package model

// ElementType is the kind of content an extracted element represents.
type ElementType string

const (
	ElementText  ElementType = "text"
	ElementTable ElementType = "table"
	ElementLine  ElementType = "line"
	ElementCell  ElementType = "cell"
)

// BoundingBox gives an element's position in page coordinates. Only
// meaningful for formats with a real page geometry (pdf-digital,
// pdf-scanned); zero value for row-oriented formats (csv, xlsx).
type BoundingBox struct {
	X0, Y0, X1, Y1 float64
}

// SourceRef points an element back to the artifact and location it came
// from, so downstream errors and audit records can cite a precise origin.
type SourceRef struct {
	ArtifactID string `json:"artifact_id"`
	ObjectKey  string `json:"object_key"`
	RowOrPage  int    `json:"row_or_page"`
}

// Element is one extracted unit of content: a line of text, a table, or a
// single cell, depending on the source format.
type Element struct {
	Page          int          `json:"page"`
	Type          ElementType  `json:"type"`
	Text          string       `json:"text"`
	BBox          *BoundingBox `json:"bbox,omitempty"`
	OCRConfidence *float64     `json:"ocr_confidence,omitempty"`
	SourceRef     SourceRef    `json:"source_ref"`
}

// IntermediateDocument is the extractor's output: a per-page ordered
// sequence of elements, format-agnostic.
type IntermediateDocument struct {
	ArtifactID string    `json:"artifact_id"`
	Elements   []Element `json:"elements"`
}

// FieldTag is the semantic role the layout tagger assigns to an element.
type FieldTag string

const (
	FieldAmount        FieldTag = "amount"
	FieldCurrency      FieldTag = "currency"
	FieldTransactionID FieldTag = "transaction_id"
	FieldDate          FieldTag = "date"
	FieldStatus        FieldTag = "status"
	FieldNone          FieldTag = "none"
)

// LayoutTaggedElement is an Element plus the layout tagger's field
// assignment and its confidence.
type LayoutTaggedElement struct {
	Element
	FieldTag      FieldTag `json:"field_tag"`
	TagConfidence float64  `json:"tag_confidence"`
}
