// Package pipeline wires the extract, tag, map, validate, persist, and
// audit stages (C3-C7, C10) into the orchestrator.Pipeline a Runner
// drives each ParseJob through. Every stage is stateless between calls:
// it re-derives what it needs from the object store and the artifacts
// store by job.ArtifactID rather than carrying state in memory, so a
// crashed worker can resume a job from wherever the lease lands it.
package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/payscope/payscope/pkg/audit"
	"github.com/payscope/payscope/pkg/extract"
	"github.com/payscope/payscope/pkg/layout"
	"github.com/payscope/payscope/pkg/mapper"
	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/objectstore"
	"github.com/payscope/payscope/pkg/orchestrator"
	"github.com/payscope/payscope/pkg/persist"
	"github.com/payscope/payscope/pkg/stores/artifacts"
	"github.com/payscope/payscope/pkg/tenant"
	"github.com/payscope/payscope/pkg/validate"
)

// Builder holds every dependency the five ingestion stages share. Build
// returns the orchestrator.Pipeline a Runner drives jobs through.
type Builder struct {
	DB        *sql.DB
	Objects   objectstore.Backend
	Artifacts *artifacts.Store
	Extractor *extract.Extractor
	Tagger    *layout.Tagger
	Mapper    *mapper.Mapper
	Persister *persist.Persister
	Ledger    *audit.Ledger
}

// Build assembles the fixed extract -> tag -> map_validate -> persist ->
// audit pipeline (§3).
func (b *Builder) Build() orchestrator.Pipeline {
	return orchestrator.Pipeline{
		{Name: "extract", Run: b.extractStage},
		{Name: "tag", Run: b.tagStage},
		{Name: "map_validate", Run: b.mapValidateStage},
		{Name: "persist", Run: b.persistStage},
		{Name: "audit", Run: b.auditStage},
	}
}

func (b *Builder) acquire(ctx context.Context, bankID string) (*tenant.Scope, error) {
	return tenant.Acquire(ctx, b.DB, bankID)
}

func (b *Builder) extractStage(ctx context.Context, job model.ParseJob) error {
	scope, err := b.acquire(ctx, job.BankID)
	if err != nil {
		return fmt.Errorf("extract: acquire tenant scope: %w", err)
	}
	defer scope.Release()

	artifact, err := b.Artifacts.Get(ctx, scope, job.ArtifactID)
	if err != nil {
		return fmt.Errorf("extract: load artifact record: %w", err)
	}

	data, err := b.Objects.Get(ctx, artifact.ObjectKey)
	if err != nil {
		return fmt.Errorf("extract: fetch raw bytes: %w", err)
	}

	doc, err := b.Extractor.Extract(ctx, artifact, data)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("extract: marshal intermediate document: %w", err)
	}
	if _, err := b.Objects.Put(ctx, objectstore.ExtractedKey(job.ArtifactID), payload); err != nil {
		return fmt.Errorf("extract: store intermediate document: %w", err)
	}
	return nil
}

func (b *Builder) tagStage(ctx context.Context, job model.ParseJob) error {
	raw, err := b.Objects.Get(ctx, objectstore.ExtractedKey(job.ArtifactID))
	if err != nil {
		return fmt.Errorf("tag: fetch intermediate document: %w", err)
	}
	var doc model.IntermediateDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("tag: decode intermediate document: %w", err)
	}

	tagged := b.Tagger.Tag(doc)

	payload, err := json.Marshal(tagged)
	if err != nil {
		return fmt.Errorf("tag: marshal tagged elements: %w", err)
	}
	if _, err := b.Objects.Put(ctx, objectstore.TaggedKey(job.ArtifactID), payload); err != nil {
		return fmt.Errorf("tag: store tagged elements: %w", err)
	}
	return nil
}

// rowFromElement decodes the extractor's "header=value\theader=value"
// encoding (see extract.joinRecordWithHeaders) back into a header->value
// map, the shape the mapper and validator both expect a row in.
func rowFromElement(el model.Element) map[string]string {
	row := make(map[string]string)
	for _, field := range strings.Split(el.Text, "\t") {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		row[name] = value
	}
	return row
}

func (b *Builder) mapValidateStage(ctx context.Context, job model.ParseJob) error {
	raw, err := b.Objects.Get(ctx, objectstore.TaggedKey(job.ArtifactID))
	if err != nil {
		return fmt.Errorf("map_validate: fetch tagged elements: %w", err)
	}
	var tagged []model.LayoutTaggedElement
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return fmt.Errorf("map_validate: decode tagged elements: %w", err)
	}

	rows := make([]map[string]string, 0, len(tagged))
	for _, el := range tagged {
		if el.Type != model.ElementTable {
			continue
		}
		rows = append(rows, rowFromElement(el.Element))
	}

	samples := make([]mapper.SampleRow, 0, len(rows))
	for i, row := range rows {
		if i >= 5 {
			break
		}
		samples = append(samples, mapper.SampleRow(row))
	}

	resp, err := b.Mapper.Map(ctx, tagged, samples)
	if err != nil {
		return err
	}

	columnFor := make(map[string]string, len(resp.Mappings))
	for _, m := range resp.Mappings {
		columnFor[m.CanonicalField] = m.SourceColumn
	}

	scope, err := b.acquire(ctx, job.BankID)
	if err != nil {
		return fmt.Errorf("map_validate: acquire tenant scope: %w", err)
	}
	defer scope.Release()

	artifact, err := b.Artifacts.Get(ctx, scope, job.ArtifactID)
	if err != nil {
		return fmt.Errorf("map_validate: load artifact record: %w", err)
	}

	var transactions []model.CanonicalTransaction
	for i, row := range rows {
		rowOrPage := i + 1
		raw := validate.RawRow{
			TransactionID:   row[columnFor["transaction_id"]],
			Amount:          row[columnFor["amount"]],
			Currency:        row[columnFor["currency"]],
			TimestampUTC:    row[columnFor["timestamp_utc"]],
			LifecycleStage:  resp.Lifecycle.Stage,
			MerchantID:      row[columnFor["merchant_id"]],
			CardNetwork:     row[columnFor["card_network"]],
			BankID:          job.BankID,
			SchemaVersion:   audit.SchemaVersion,
			ConfidenceScore: resp.Lifecycle.Confidence,
			RawSourceRef: model.RawSourceRef{
				ArtifactID: artifact.ArtifactID,
				ObjectKey:  artifact.ObjectKey,
				RowOrPage:  rowOrPage,
			},
		}
		txn, rowErr := validate.ValidateRow(raw)
		if rowErr != nil {
			// A row failure never fails the job (§7: validation_row_failed
			// is per-row); the artifact's remaining rows still proceed.
			continue
		}
		transactions = append(transactions, txn)
	}
	transactions = validate.Dedupe(transactions)

	report := model.CanonicalReport{
		ReportID:      uuid.NewSHA1(uuid.NameSpaceOID, []byte("report|"+job.BankID+"|"+job.ArtifactID)).String(),
		ReportType:    string(artifact.FileFormat),
		IngestionTime: time.Now().UTC(),
		SourceNetwork: row0CardNetwork(rows, columnFor),
		RecordCount:   len(transactions),
		SchemaVersion: audit.SchemaVersion,
		BankID:        job.BankID,
	}
	result := persist.NormalizedResult{Report: report, Transactions: transactions}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("map_validate: marshal normalized result: %w", err)
	}
	if _, err := b.Objects.Put(ctx, objectstore.NormalizedKey(job.ArtifactID), payload); err != nil {
		return fmt.Errorf("map_validate: store normalized result: %w", err)
	}
	return nil
}

// row0CardNetwork takes the first row's card_network value as the
// report's source_network; a report mixing networks is rare in practice
// and mis-tagging it is cosmetic, not a correctness issue.
func row0CardNetwork(rows []map[string]string, columnFor map[string]string) string {
	if len(rows) == 0 {
		return ""
	}
	return rows[0][columnFor["card_network"]]
}

func (b *Builder) loadNormalized(ctx context.Context, artifactID string) (persist.NormalizedResult, error) {
	raw, err := b.Objects.Get(ctx, objectstore.NormalizedKey(artifactID))
	if err != nil {
		return persist.NormalizedResult{}, err
	}
	var result persist.NormalizedResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return persist.NormalizedResult{}, err
	}
	return result, nil
}

func (b *Builder) persistStage(ctx context.Context, job model.ParseJob) error {
	result, err := b.loadNormalized(ctx, job.ArtifactID)
	if err != nil {
		return fmt.Errorf("persist: load normalized result: %w", err)
	}

	scope, err := b.acquire(ctx, job.BankID)
	if err != nil {
		return fmt.Errorf("persist: acquire tenant scope: %w", err)
	}
	defer scope.Release()

	if err := b.Persister.PersistResult(ctx, scope, result); err != nil {
		return err
	}
	return nil
}

func (b *Builder) auditStage(ctx context.Context, job model.ParseJob) error {
	if b.Ledger == nil {
		return nil
	}
	result, err := b.loadNormalized(ctx, job.ArtifactID)
	if err != nil {
		return fmt.Errorf("audit: load normalized result: %w", err)
	}

	scope, err := b.acquire(ctx, job.BankID)
	if err != nil {
		return fmt.Errorf("audit: acquire tenant scope: %w", err)
	}
	defer scope.Release()

	artifact, err := b.Artifacts.Get(ctx, scope, job.ArtifactID)
	if err != nil {
		return fmt.Errorf("audit: load artifact record: %w", err)
	}

	event, err := audit.BuildIngestEvent(audit.SchemaVersion, result, time.Now())
	if err != nil {
		return fmt.Errorf("audit: build ingest event: %w", err)
	}

	companion := &audit.Companion{
		SchemaVersion: audit.SchemaVersion,
		InputHash:     artifact.SHA256,
		OutputHash:    event.ArtifactHash,
		Confidence:    confidenceOf(result),
		LedgerEventID: event.EventID,
		BankID:        job.BankID,
	}

	if _, err := b.Ledger.PutEvent(ctx, event, companion); err != nil {
		return err
	}
	return nil
}

func confidenceOf(result persist.NormalizedResult) float64 {
	if len(result.Transactions) == 0 {
		return 0
	}
	var sum float64
	for _, t := range result.Transactions {
		sum += t.ConfidenceScore
	}
	return sum / float64(len(result.Transactions))
}
