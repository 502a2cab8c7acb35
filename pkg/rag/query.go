package rag

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
	"github.com/payscope/payscope/pkg/tenant"
)

// Query runs the full classify -> retrieve -> dispatch -> compose
// pipeline for one POST /chat/query request.
func (e *Engine) Query(ctx context.Context, scope *tenant.Scope, query, timeRangeRaw string) (model.StructuredResponse, error) {
	if scope == nil {
		return model.StructuredResponse{}, payscopeerr.New(payscopeerr.KindTenantNotBound, "rag: Query called without a bound tenant scope")
	}

	tr, err := ParseTimeRange(timeRangeRaw, time.Now())
	if err != nil {
		return model.StructuredResponse{}, err
	}

	classification := e.ClassifyIntent(ctx, query)

	evidence, err := e.Retrieve(ctx, scope, query, tr)
	if err != nil {
		return model.StructuredResponse{}, err
	}

	taskID := uuid.NewString()
	results := e.Dispatch(ctx, classification.Intent, evidence, taskID, query, tr, scope.BankID())

	return Compose(classification.Intent, evidence, results), nil
}
