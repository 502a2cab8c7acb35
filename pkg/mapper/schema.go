package mapper

// responseSchemaJSON is the strict JSON schema the model's mapping
// response must satisfy, validated with santhosh-tekuri/jsonschema/v5
// before the response is trusted (§4.5).
const responseSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["lifecycle", "mappings"],
	"properties": {
		"lifecycle": {
			"type": "object",
			"required": ["stage", "confidence"],
			"properties": {
				"stage": {"type": "string", "enum": ["AUTH", "CLEARING", "SETTLEMENT"]},
				"confidence": {"type": "number", "minimum": 0, "maximum": 1}
			}
		},
		"mappings": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["source_column", "canonical_field", "confidence"],
				"properties": {
					"source_column": {"type": "string"},
					"canonical_field": {
						"type": "string",
						"enum": ["transaction_id", "amount", "currency", "timestamp_utc", "merchant_id", "card_network"]
					},
					"confidence": {"type": "number", "minimum": 0, "maximum": 1}
				}
			}
		}
	}
}`
