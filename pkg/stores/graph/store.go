// Package graph implements the graph store (part of C2): Transaction and
// Merchant nodes, with CLEARED/SETTLED edges from a transaction's earlier
// lifecycle-stage node to its later one. No write path creates Bank or
// Network nodes, a DISPUTED edge, or an edge to a merchant, and
// edgeForTransition returns AUTHORIZED only for a target of AUTH, which
// MergeLifecycleEdge never accepts. Every node carries bank_id and every traversal
// predicate includes it (§4.2), and edge uniqueness is derived from a
// deterministic edge identity so re-running ingestion never creates a
// duplicate edge (§3 invariant 4).
package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
)

// EdgeKind is one of the lifecycle-transition edge labels.
type EdgeKind string

const (
	EdgeAuthorized EdgeKind = "AUTHORIZED"
	EdgeCleared    EdgeKind = "CLEARED"
	EdgeSettled    EdgeKind = "SETTLED"
	EdgeDisputed   EdgeKind = "DISPUTED"
)

// edgeForTransition returns the edge label for a source->target lifecycle
// transition, per the routing implied by §4.2/§4.7.
func edgeForTransition(source, target model.LifecycleStage) EdgeKind {
	switch target {
	case model.StageClearing:
		return EdgeCleared
	case model.StageSettlement:
		return EdgeSettled
	default:
		return EdgeAuthorized
	}
}

// EdgeID derives the deterministic identity required by invariant 4:
// unique by (transaction_pk, source_stage, target_stage).
func EdgeID(transactionPK string, source, target model.LifecycleStage) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", transactionPK, source, target)))
	return hex.EncodeToString(h[:])
}

// Store wraps a neo4j.DriverWithContext scoped by bank_id on every query.
type Store struct {
	driver neo4j.DriverWithContext
}

// New wraps an already-constructed driver (built from GRAPH_URI/USER/PASSWORD).
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver}
}

// NewDriver builds a bolt driver from the pkg/config GRAPH_* settings.
func NewDriver(uri, user, password string) (neo4j.DriverWithContext, error) {
	return neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode})
}

// MergeTransactionNode upserts a Transaction node keyed by (bank_id,
// transaction_id, lifecycle_stage, schema_version) — the same natural key
// as the facts store, so graph and facts stay addressable by the same
// identity.
func (s *Store) MergeTransactionNode(ctx context.Context, txn model.CanonicalTransaction) error {
	if txn.BankID == "" {
		return payscopeerr.New(payscopeerr.KindTenantNotBound, "graph: transaction has no bank_id")
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer func() { _ = session.Close(ctx) }()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (t:Transaction {bank_id: $bank_id, transaction_id: $transaction_id, lifecycle_stage: $lifecycle_stage, schema_version: $schema_version})
			SET t.amount = $amount, t.currency = $currency, t.timestamp_utc = $timestamp_utc, t.merchant_id = $merchant_id, t.card_network = $card_network
		`, map[string]any{
			"bank_id":         txn.BankID,
			"transaction_id":  txn.TransactionID,
			"lifecycle_stage": string(txn.LifecycleStage),
			"schema_version":  txn.SchemaVersion,
			"amount":          txn.Amount.String(),
			"currency":        txn.Currency,
			"timestamp_utc":   txn.TimestampUTC.Format("2006-01-02T15:04:05Z07:00"),
			"merchant_id":     txn.MerchantID,
			"card_network":    txn.CardNetwork,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graph: merge transaction node: %w", err)
	}
	return nil
}

// MergeMerchantNode upserts a Merchant node scoped to bank_id.
func (s *Store) MergeMerchantNode(ctx context.Context, bankID, merchantID string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer func() { _ = session.Close(ctx) }()
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `MERGE (m:Merchant {bank_id: $bank_id, merchant_id: $merchant_id})`,
			map[string]any{"bank_id": bankID, "merchant_id": merchantID})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graph: merge merchant node: %w", err)
	}
	return nil
}

// TransactionPK builds the natural-key string EdgeID hashes over, and the
// same identity the vector store embeds in a record's transaction_pk
// metadata field (invariant 5) so graph and vector evidence can be joined
// on one value.
func TransactionPK(bankID, transactionID, schemaVersion string) string {
	return bankID + "|" + transactionID + "|" + schemaVersion
}

// MergeLifecycleEdge connects the source and target stage nodes of the
// same transaction with a uniquely-identified edge, rejecting the
// transition if target does not strictly follow source (invariant 5:
// "non-decreasing along AUTH -> CLEARING -> SETTLEMENT").
func (s *Store) MergeLifecycleEdge(ctx context.Context, bankID, transactionID, schemaVersion string, source, target model.LifecycleStage) error {
	if !source.Precedes(target) {
		return fmt.Errorf("graph: refusing out-of-order edge %s -> %s for transaction %s", source, target, transactionID)
	}
	pk := TransactionPK(bankID, transactionID, schemaVersion)
	edgeID := EdgeID(pk, source, target)
	kind := edgeForTransition(source, target)

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer func() { _ = session.Close(ctx) }()

	cypher := fmt.Sprintf(`
		MATCH (a:Transaction {bank_id: $bank_id, transaction_id: $transaction_id, lifecycle_stage: $source_stage, schema_version: $schema_version})
		MATCH (b:Transaction {bank_id: $bank_id, transaction_id: $transaction_id, lifecycle_stage: $target_stage, schema_version: $schema_version})
		MERGE (a)-[e:%s {edge_id: $edge_id}]->(b)
	`, kind)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, cypher, map[string]any{
			"bank_id":        bankID,
			"transaction_id": transactionID,
			"schema_version": schemaVersion,
			"source_stage":   string(source),
			"target_stage":   string(target),
			"edge_id":        edgeID,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graph: merge lifecycle edge: %w", err)
	}
	return nil
}

// NeighborhoodResult is one row of a merchant/lifecycle neighborhood
// traversal starting from a ranked transaction, consumed by the RAG
// engine's retrieve step.
type NeighborhoodResult struct {
	TransactionID  string
	LifecycleStage string
	MerchantID     string
	Amount         string
}

// TraverseFromTransactions fans a MATCH out from the given transaction_pks
// to their merchant/lifecycle neighborhood, with bank_id bound on every
// predicate (invariant 5 / design note 9.3).
func (s *Store) TraverseFromTransactions(ctx context.Context, bankID string, transactionIDs []string) ([]NeighborhoodResult, error) {
	if bankID == "" {
		return nil, payscopeerr.New(payscopeerr.KindTenantNotBound, "graph: TraverseFromTransactions called without bank_id")
	}
	session := s.session(ctx, neo4j.AccessModeRead)
	defer func() { _ = session.Close(ctx) }()

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (t:Transaction {bank_id: $bank_id})
			WHERE t.transaction_id IN $transaction_ids
			RETURN t.transaction_id AS transaction_id, t.lifecycle_stage AS lifecycle_stage, t.merchant_id AS merchant_id, t.amount AS amount
		`, map[string]any{"bank_id": bankID, "transaction_ids": transactionIDs})
		if err != nil {
			return nil, err
		}
		var out []NeighborhoodResult
		for res.Next(ctx) {
			rec := res.Record()
			txID, _ := rec.Get("transaction_id")
			stage, _ := rec.Get("lifecycle_stage")
			merchant, _ := rec.Get("merchant_id")
			amount, _ := rec.Get("amount")
			out = append(out, NeighborhoodResult{
				TransactionID:  fmt.Sprint(txID),
				LifecycleStage: fmt.Sprint(stage),
				MerchantID:     fmt.Sprint(merchant),
				Amount:         fmt.Sprint(amount),
			})
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph: traverse from transactions: %w", err)
	}
	return result.([]NeighborhoodResult), nil
}

// NodeCount returns the number of Transaction nodes for bankID, used by
// /admin/validate-datasets.
func (s *Store) NodeCount(ctx context.Context, bankID string) (int64, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer func() { _ = session.Close(ctx) }()
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (t:Transaction {bank_id: $bank_id}) RETURN count(t) AS c`, map[string]any{"bank_id": bankID})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		c, _ := rec.Get("c")
		count, _ := c.(int64)
		return count, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}
