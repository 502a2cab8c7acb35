// Package mapper implements the semantic mapper (C5): LLM-assisted
// mapping from raw tagged columns to the canonical transaction schema,
// plus lifecycle-stage inference, with confidence thresholding and a
// deterministic rule-based fallback when the model is unavailable or its
// output fails schema validation (§4.5).
package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/payscope/payscope/pkg/llm"
	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
)

// FieldMapping is one raw-column-to-canonical-field assignment.
type FieldMapping struct {
	SourceColumn   string  `json:"source_column"`
	CanonicalField string  `json:"canonical_field"`
	Confidence     float64 `json:"confidence"`
}

// LifecycleGuess is the inferred lifecycle stage for an artifact's rows.
type LifecycleGuess struct {
	Stage      string  `json:"stage"`
	Confidence float64 `json:"confidence"`
}

// MappingResponse is C5's output contract.
type MappingResponse struct {
	Lifecycle LifecycleGuess       `json:"lifecycle"`
	Mappings  []FieldMapping       `json:"mappings"`
	Source    model.MappingSource  `json:"-"`
}

// SampleRow is one representative raw row (header -> value) the mapper
// shows the model for few-shot grounding.
type SampleRow map[string]string

var responseSchema = func() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("mapping-response.json", strings.NewReader(responseSchemaJSON)); err != nil {
		panic(fmt.Sprintf("mapper: invalid embedded schema: %v", err))
	}
	schema, err := compiler.Compile("mapping-response.json")
	if err != nil {
		panic(fmt.Sprintf("mapper: compile embedded schema: %v", err))
	}
	return schema
}()

// headerVocabulary lists the targets mappings may point to, each with the
// header tokens the rule-based fallback matches against it.
var headerVocabulary = map[string][]string{
	"transaction_id": {"transaction_id", "txn_id", "transactionid", "id", "reference"},
	"amount":         {"amount", "total", "value", "charge"},
	"currency":       {"currency", "ccy", "cur"},
	"timestamp_utc":  {"date", "timestamp", "time", "posted", "processed_at"},
	"merchant_id":    {"merchant_id", "merchant", "mid"},
	"card_network":   {"card_network", "network", "scheme"},
}

// Mapper issues the model call and falls back to the rule-based
// classifier on unavailability or schema violation.
type Mapper struct {
	client               llm.Client
	confidenceThreshold  float64
	lifecycleMinConfidence float64
}

// New builds a Mapper. client may be nil, in which case Map always uses
// the rule-based fallback (matching "if the model is unavailable" in
// §4.5 — a nil client is the degenerate case of unavailability).
func New(client llm.Client, confidenceThreshold float64) *Mapper {
	return &Mapper{client: client, confidenceThreshold: confidenceThreshold, lifecycleMinConfidence: confidenceThreshold}
}

// Map produces a MappingResponse for one artifact's tagged elements and
// representative sample rows.
func (m *Mapper) Map(ctx context.Context, tagged []model.LayoutTaggedElement, samples []SampleRow) (MappingResponse, error) {
	headers := headersFrom(samples)

	resp, err := m.mapViaModel(ctx, headers, samples)
	if err != nil {
		resp = m.mapViaRules(headers)
	}

	resp.Mappings = dropLowConfidence(resp.Mappings, m.confidenceThreshold)

	if resp.Lifecycle.Confidence < m.lifecycleMinConfidence {
		return MappingResponse{}, payscopeerr.New(payscopeerr.KindMappingLowConfidence,
			fmt.Sprintf("lifecycle_inference_low_confidence: stage=%q confidence=%.2f below threshold %.2f",
				resp.Lifecycle.Stage, resp.Lifecycle.Confidence, m.lifecycleMinConfidence))
	}
	return resp, nil
}

func headersFrom(samples []SampleRow) []string {
	if len(samples) == 0 {
		return nil
	}
	headers := make([]string, 0, len(samples[0]))
	for h := range samples[0] {
		headers = append(headers, h)
	}
	return headers
}

func dropLowConfidence(mappings []FieldMapping, threshold float64) []FieldMapping {
	out := mappings[:0]
	for _, f := range mappings {
		if f.Confidence >= threshold {
			out = append(out, f)
		}
	}
	return out
}

// mapViaModel issues the chat completion at temperature 0 / top-p 1 and
// validates the decoded JSON against the embedded schema before trusting
// it, per §4.5.
func (m *Mapper) mapViaModel(ctx context.Context, headers []string, samples []SampleRow) (MappingResponse, error) {
	if m.client == nil {
		return MappingResponse{}, fmt.Errorf("mapper: no model client configured")
	}

	prompt := buildPrompt(headers, samples)
	result, err := m.client.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You map payment report columns to a canonical schema. Respond with JSON only."},
		{Role: "user", Content: prompt},
	}, nil, &llm.SamplingOptions{Temperature: 0, TopP: 1, Seed: 1})
	if err != nil {
		return MappingResponse{}, fmt.Errorf("mapper: model call: %w", err)
	}

	var decoded any
	if err := json.Unmarshal([]byte(result.Content), &decoded); err != nil {
		return MappingResponse{}, fmt.Errorf("mapper: model response is not valid JSON: %w", err)
	}
	if err := responseSchema.Validate(decoded); err != nil {
		return MappingResponse{}, fmt.Errorf("mapper: model response failed schema validation: %w", err)
	}

	var resp MappingResponse
	if err := json.Unmarshal([]byte(result.Content), &resp); err != nil {
		return MappingResponse{}, fmt.Errorf("mapper: decode validated response: %w", err)
	}
	resp.Source = model.MappingSourceModel
	return resp, nil
}

func buildPrompt(headers []string, samples []SampleRow) string {
	var b strings.Builder
	b.WriteString("Columns: ")
	b.WriteString(strings.Join(headers, ", "))
	b.WriteString("\nSample rows:\n")
	for i, s := range samples {
		if i >= 3 {
			break
		}
		row, _ := json.Marshal(s)
		b.Write(row)
		b.WriteByte('\n')
	}
	return b.String()
}

// mapViaRules is the deterministic header-match fallback, marked
// mapping_source="rule" per §4.5's determinism requirement.
func (m *Mapper) mapViaRules(headers []string) MappingResponse {
	var mappings []FieldMapping
	statusHeader := ""
	for _, h := range headers {
		norm := strings.ToLower(h)
		for field, vocab := range headerVocabulary {
			for _, v := range vocab {
				if strings.Contains(norm, v) {
					mappings = append(mappings, FieldMapping{SourceColumn: h, CanonicalField: field, Confidence: 0.9})
					break
				}
			}
		}
		if strings.Contains(norm, "status") || strings.Contains(norm, "stage") {
			statusHeader = h
		}
	}

	lifecycle := LifecycleGuess{Stage: "AUTH", Confidence: 0.5}
	if statusHeader != "" {
		lifecycle.Confidence = 0.85
	}

	return MappingResponse{Lifecycle: lifecycle, Mappings: mappings, Source: model.MappingSourceRule}
}
