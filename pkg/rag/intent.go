package rag

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/payscope/payscope/pkg/llm"
	"github.com/payscope/payscope/pkg/model"
)

// anomalyKeywords always win classification when present, per §4.11.
var anomalyKeywords = []string{"fraud", "anomaly", "suspicious", "spike", "irregular"}

type keywordPrior struct {
	intent   model.Intent
	keywords []string
}

// keywordPriors is ordered so classification is deterministic regardless
// of how many intents' keywords a query happens to match.
var keywordPriors = []keywordPrior{
	{model.IntentCompare, []string{"compare", "versus", " vs ", "difference between"}},
	{model.IntentForecast, []string{"forecast", "predict", "projection", "next month", "next quarter", "trend"}},
	{model.IntentWhatIf, []string{"what if", "simulate", "scenario"}},
	{model.IntentDescribe, []string{"describe", "summarize", "summary", "overview", "show me", "what is"}},
}

func classifyByKeyword(query string) model.IntentClassification {
	lower := strings.ToLower(query)
	for _, kw := range anomalyKeywords {
		if strings.Contains(lower, kw) {
			return model.IntentClassification{Intent: model.IntentAnomaly, Confidence: 0.9}
		}
	}
	for _, prior := range keywordPriors {
		for _, kw := range prior.keywords {
			if strings.Contains(lower, kw) {
				return model.IntentClassification{Intent: prior.intent, Confidence: 0.75}
			}
		}
	}
	return model.IntentClassification{Intent: model.IntentDescribe, Confidence: 0.4}
}

func validIntent(intent model.Intent) bool {
	switch intent {
	case model.IntentDescribe, model.IntentCompare, model.IntentAnomaly, model.IntentForecast, model.IntentWhatIf:
		return true
	default:
		return false
	}
}

// ClassifyIntent implements classify_intent: the ANOMALY keyword prior
// wins outright when it matches; otherwise a model call is attempted and
// falls back to the keyword classifier when no client is configured, the
// call fails, or its answer doesn't decode to a known intent.
func (e *Engine) ClassifyIntent(ctx context.Context, query string) model.IntentClassification {
	lower := strings.ToLower(query)
	for _, kw := range anomalyKeywords {
		if strings.Contains(lower, kw) {
			return model.IntentClassification{Intent: model.IntentAnomaly, Confidence: 0.9}
		}
	}

	if e.IntentClient == nil {
		return classifyByKeyword(query)
	}

	resp, err := e.IntentClient.Chat(ctx, []llm.Message{
		{Role: "system", Content: "Classify the user's query into exactly one intent: DESCRIBE, COMPARE, FORECAST, or WHAT_IF. Respond with JSON {\"intent\":\"...\",\"confidence\":0.0-1.0}."},
		{Role: "user", Content: query},
	}, nil, &llm.SamplingOptions{Temperature: 0, TopP: 1, Seed: 1})
	if err != nil {
		return classifyByKeyword(query)
	}

	var decoded model.IntentClassification
	if err := json.Unmarshal([]byte(resp.Content), &decoded); err != nil {
		return classifyByKeyword(query)
	}
	if !validIntent(decoded.Intent) {
		return classifyByKeyword(query)
	}
	return decoded
}
