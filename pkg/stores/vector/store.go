// Package vector implements the vector store (part of C2): a Pinecone
// index holding embeddings of canonical transactions and report
// narratives, namespaced and metadata-filtered by bank_id so a query
// issued under one tenant can never surface another tenant's vectors
// (invariant 5).
package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
)

// Record is one embedded unit submitted for upsert: a transaction row or
// a chunk of report narrative, along with the metadata the RAG engine's
// retrieve step filters and displays on.
type Record struct {
	ID             string
	Values         []float32
	BankID         string
	ReportID       string
	TransactionPK  string
	LifecycleStage model.LifecycleStage
	SourceType     string // "transaction" | "narrative"
	SourceID       string
	Text           string
}

// Match is one scored result from Query.
type Match struct {
	ID             string
	Score          float32
	BankID         string
	ReportID       string
	TransactionPK  string
	LifecycleStage model.LifecycleStage
	SourceType     string
	SourceID       string
	Text           string
}

// Store wraps a Pinecone index connection scoped to a namespace. Config
// (VECTOR_ENDPOINT/KEY/INDEX/NAMESPACE) selects the host and namespace at
// construction time; every tenant still gets an explicit bank_id metadata
// filter on top of the namespace, since a namespace may be shared across
// banks in smaller deployments.
type Store struct {
	conn *pinecone.IndexConnection
}

// New wraps an already-dialed index connection (see Dial).
func New(conn *pinecone.IndexConnection) *Store {
	return &Store{conn: conn}
}

// Dial builds a Pinecone client and opens a connection to indexHost under
// namespace, using apiKey for auth.
func Dial(ctx context.Context, apiKey, indexHost, namespace string) (*pinecone.IndexConnection, error) {
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("vector: new pinecone client: %w", err)
	}
	conn, err := client.Index(pinecone.NewIndexConnParams{Host: indexHost, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("vector: dial index: %w", err)
	}
	return conn, nil
}

// DeterministicID derives the vector id used when a Record carries no
// explicit ID, so re-embedding the same source artifact overwrites its
// prior vector instead of accumulating duplicates.
func DeterministicID(bankID, sourceType, sourceID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(bankID+"|"+sourceType+"|"+sourceID)).String()
}

// metadataOf builds the metadata struct invariant 5 requires every vector
// record to embed: {report_id, transaction_pk, lifecycle_stage,
// source_type, bank_id}.
func metadataOf(r Record) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"bank_id":         r.BankID,
		"report_id":       r.ReportID,
		"transaction_pk":  r.TransactionPK,
		"lifecycle_stage": string(r.LifecycleStage),
		"source_type":     r.SourceType,
		"source_id":       r.SourceID,
		"text":            r.Text,
	})
}

// Upsert writes records, assigning a deterministic id from (bank_id,
// source_type, source_id) when r.ID is empty so re-embedding the same
// artifact overwrites rather than duplicates its vector.
func (s *Store) Upsert(ctx context.Context, records []Record) error {
	vectors := make([]*pinecone.Vector, 0, len(records))
	for _, r := range records {
		if r.BankID == "" {
			return payscopeerr.New(payscopeerr.KindTenantNotBound, "vector: upsert record missing bank_id")
		}
		id := r.ID
		if id == "" {
			id = DeterministicID(r.BankID, r.SourceType, r.SourceID)
		}
		meta, err := metadataOf(r)
		if err != nil {
			return fmt.Errorf("vector: build metadata: %w", err)
		}
		vectors = append(vectors, &pinecone.Vector{
			Id:       id,
			Values:   &r.Values,
			Metadata: meta,
		})
	}
	if _, err := s.conn.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("vector: upsert vectors: %w", err)
	}
	return nil
}

// Query runs a top-k similarity search restricted to bankID via a
// metadata filter, never via namespace alone (invariant 5, design note
// 9.3: "every retrieval call binds a tenant filter even when the
// namespace already happens to match"). A non-empty lifecycleStage adds a
// second $eq predicate so callers asking about one stage of the lifecycle
// (e.g. "what's outstanding in AUTH") never see CLEARING/SETTLEMENT noise
// (§4.11: "vector similarity with bank_id and lifecycle_stage filters").
// An empty lifecycleStage applies no stage filter.
func (s *Store) Query(ctx context.Context, bankID string, lifecycleStage model.LifecycleStage, embedding []float32, topK uint32) ([]Match, error) {
	if bankID == "" {
		return nil, payscopeerr.New(payscopeerr.KindTenantNotBound, "vector: Query called without bank_id")
	}
	filterFields := map[string]any{
		"bank_id": map[string]any{"$eq": bankID},
	}
	if lifecycleStage != "" {
		filterFields["lifecycle_stage"] = map[string]any{"$eq": string(lifecycleStage)}
	}
	filter, err := structpb.NewStruct(filterFields)
	if err != nil {
		return nil, fmt.Errorf("vector: build filter: %w", err)
	}

	res, err := s.conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          embedding,
		TopK:            topK,
		Filter:          filter,
		IncludeValues:   false,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vector: query: %w", err)
	}

	out := make([]Match, 0, len(res.Matches))
	for _, m := range res.Matches {
		match := Match{ID: m.Vector.Id, Score: m.Score}
		if fields := m.Vector.Metadata.GetFields(); fields != nil {
			match.BankID = fields["bank_id"].GetStringValue()
			match.ReportID = fields["report_id"].GetStringValue()
			match.TransactionPK = fields["transaction_pk"].GetStringValue()
			match.LifecycleStage = model.LifecycleStage(fields["lifecycle_stage"].GetStringValue())
			match.SourceType = fields["source_type"].GetStringValue()
			match.SourceID = fields["source_id"].GetStringValue()
			match.Text = fields["text"].GetStringValue()
		}
		if match.BankID != bankID {
			// Defense in depth: the metadata filter above should make this
			// unreachable, but a query never returns a cross-tenant match.
			continue
		}
		if lifecycleStage != "" && match.LifecycleStage != lifecycleStage {
			continue
		}
		out = append(out, match)
	}
	return out, nil
}

// Count approximates how many vectors are visible to bankID by querying
// the zero vector at a high top_k. Pinecone exposes no cheap exact count
// under a metadata filter, so this is a bounded estimate for the admin
// validate-datasets endpoint, never used on the retrieval path.
func (s *Store) Count(ctx context.Context, bankID string, dimension int) (int, error) {
	zero := make([]float32, dimension)
	matches, err := s.Query(ctx, bankID, "", zero, 10000)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

// DeleteByReport removes every vector tied to reportID, used when a
// report is retracted.
func (s *Store) DeleteByReport(ctx context.Context, bankID, reportID string) error {
	if bankID == "" {
		return payscopeerr.New(payscopeerr.KindTenantNotBound, "vector: DeleteByReport called without bank_id")
	}
	filter, err := structpb.NewStruct(map[string]any{
		"bank_id":   map[string]any{"$eq": bankID},
		"report_id": map[string]any{"$eq": reportID},
	})
	if err != nil {
		return fmt.Errorf("vector: build delete filter: %w", err)
	}
	if err := s.conn.DeleteVectorsByFilter(ctx, filter); err != nil {
		return fmt.Errorf("vector: delete by report: %w", err)
	}
	return nil
}
