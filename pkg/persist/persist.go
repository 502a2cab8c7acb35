// Package persist implements the persister (C7): it writes a normalized
// ingestion result to the facts store and then an outbox row, as separate
// statements on the tenant-bound connection rather than one database
// transaction (each write is a natural-key upsert, so re-running
// PersistResult completes a partial write), then a drainer worker fans
// that outbox row out to the
// time-series, graph, vector, and audit stores with per-destination
// idempotency so the fan-out is at-least-once without ever being a
// distributed transaction (design note 9.2).
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/payscope/payscope/pkg/audit"
	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
	"github.com/payscope/payscope/pkg/stores/facts"
	"github.com/payscope/payscope/pkg/stores/graph"
	"github.com/payscope/payscope/pkg/stores/timeseries"
	"github.com/payscope/payscope/pkg/stores/vector"
	"github.com/payscope/payscope/pkg/tenant"
)

// NormalizedResult is the persister's input: the validated, deduplicated
// output of C6 for one artifact, ready to become authoritative facts.
type NormalizedResult struct {
	Report       model.CanonicalReport
	Transactions []model.CanonicalTransaction
}

// outboxPayload is the JSON shape written into facts.Store's outbox
// table and later decoded by the drainer. It captures just enough of the
// normalized result for the fan-out stores to do their writes without a
// second round trip to the facts store.
type outboxPayload struct {
	Report       model.CanonicalReport        `json:"report"`
	Transactions []model.CanonicalTransaction `json:"transactions"`
}

// Persister is the facts-store-transaction half of C7: PersistResult is
// called once per successfully validated artifact.
type Persister struct {
	factsDB *facts.Store
}

// New builds a Persister over an initialized facts store.
func New(factsDB *facts.Store) *Persister {
	return &Persister{factsDB: factsDB}
}

// PersistResult writes result's report and transactions to the facts
// store and enqueues one outbox row, all under scope's tenant binding.
// Calling this twice with the same report_id and identical transactions
// produces no additional rows (§8 idempotence) because both the facts
// writes and the outbox insert are natural-key upserts.
func (p *Persister) PersistResult(ctx context.Context, scope *tenant.Scope, result NormalizedResult) error {
	if scope == nil {
		return payscopeerr.New(payscopeerr.KindTenantNotBound, "persist: PersistResult called without a bound tenant scope")
	}
	if err := p.factsDB.UpsertReport(ctx, scope, result.Report); err != nil {
		return fmt.Errorf("persist: upsert report: %w", err)
	}
	for _, txn := range result.Transactions {
		if err := p.factsDB.UpsertTransaction(ctx, scope, txn, result.Report.ReportID); err != nil {
			return fmt.Errorf("persist: upsert transaction %s: %w", txn.TransactionID, err)
		}
	}

	payload, err := json.Marshal(outboxPayload{Report: result.Report, Transactions: result.Transactions})
	if err != nil {
		return fmt.Errorf("persist: marshal outbox payload: %w", err)
	}
	outboxID := uuid.NewSHA1(uuid.NameSpaceOID, []byte("outbox|"+result.Report.BankID+"|"+result.Report.ReportID)).String()
	if err := p.factsDB.EnqueueOutbox(ctx, scope, outboxID, result.Report.ReportID, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("persist: enqueue outbox: %w", err)
	}
	return nil
}

// Destinations bundles the fan-out targets a Drainer writes to. Any of
// them may be nil in a deployment that has not provisioned that store;
// the drainer skips a nil destination's write rather than failing the
// whole batch; a skip is not logged.
type Destinations struct {
	TimeSeries *timeseries.Store
	Graph      *graph.Store
	Vector     *vector.Store
	Ledger     *audit.Ledger
}

// Drainer is the single fan-out worker described in design note 9.2: "a
// single drainer guarantees at-least-once delivery order per artifact
// without needing cross-worker coordination."
type Drainer struct {
	factsDB *facts.Store
	dest    Destinations
	logger  *slog.Logger
}

// NewDrainer builds a Drainer reading from factsDB's outbox and writing
// to dest.
func NewDrainer(factsDB *facts.Store, dest Destinations) *Drainer {
	return &Drainer{factsDB: factsDB, dest: dest, logger: slog.Default().With("component", "persist.drainer")}
}

// DrainOnce pulls up to batchSize pending outbox rows and fans each out
// to every configured destination, marking the row done only once every
// configured destination has acknowledged the write (or been skipped
// because it is not configured).
func (d *Drainer) DrainOnce(ctx context.Context, batchSize int, maxRetries int) error {
	rows, err := d.factsDB.PollPending(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("persist: poll outbox: %w", err)
	}
	for _, row := range rows {
		if err := d.drainOne(ctx, row); err != nil {
			d.logger.Warn("outbox row failed", "outbox_id", row.OutboxID, "bank_id", row.BankID, "error", err)
			if markErr := d.factsDB.MarkFailed(ctx, row.OutboxID, row.Attempts+1, maxRetries); markErr != nil {
				d.logger.Error("failed to record outbox failure", "outbox_id", row.OutboxID, "error", markErr)
			}
			continue
		}
		if err := d.factsDB.MarkDone(ctx, row.OutboxID); err != nil {
			d.logger.Error("failed to mark outbox row done", "outbox_id", row.OutboxID, "error", err)
		}
	}
	return nil
}

func (d *Drainer) drainOne(ctx context.Context, row facts.OutboxRecord) error {
	var payload outboxPayload
	if err := json.Unmarshal(row.PayloadJSON, &payload); err != nil {
		return payscopeerr.New(payscopeerr.KindPersistenceConflict, fmt.Sprintf("outbox payload for %s is not valid JSON: %v", row.OutboxID, err))
	}

	if d.dest.TimeSeries != nil {
		if err := d.drainTimeSeries(ctx, payload); err != nil {
			return fmt.Errorf("timeseries: %w", err)
		}
	}
	if d.dest.Graph != nil {
		if err := d.drainGraph(ctx, payload); err != nil {
			return fmt.Errorf("graph: %w", err)
		}
	}
	if d.dest.Vector != nil {
		if err := d.drainVector(ctx, payload); err != nil {
			return fmt.Errorf("vector: %w", err)
		}
	}
	if d.dest.Ledger != nil {
		if err := d.drainAudit(ctx, payload); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
	}
	return nil
}

func (d *Drainer) drainTimeSeries(ctx context.Context, payload outboxPayload) error {
	if len(payload.Transactions) == 0 {
		return nil
	}
	scope, err := tenant.Acquire(ctx, d.dest.TimeSeries.DB(), payload.Report.BankID)
	if err != nil {
		return err
	}
	defer func() { _ = scope.Release() }()

	buckets := map[string]timeseries.VolumeBucket{}
	for _, txn := range payload.Transactions {
		key := txn.CardNetwork + "|" + string(txn.LifecycleStage)
		b, ok := buckets[key]
		if !ok {
			b = timeseries.VolumeBucket{
				BucketTime:     txn.TimestampUTC.Truncate(time.Hour),
				BankID:         txn.BankID,
				SourceNetwork:  txn.CardNetwork,
				LifecycleStage: string(txn.LifecycleStage),
				TotalAmount:    "0",
			}
		}
		b.Count++
		buckets[key] = b
	}
	for _, b := range buckets {
		if err := d.dest.TimeSeries.AppendVolume(ctx, scope, b); err != nil {
			return err
		}
	}
	return nil
}

// transactionStages keys a group of same-transaction rows across lifecycle
// stages, so the edges below can be derived per natural transaction
// identity rather than per row.
type transactionStages struct {
	bankID, transactionID, schemaVersion string
}

// drainGraph merges every transaction/merchant node in the batch, then
// merges one lifecycle edge per consecutive stage transition observed for
// each transaction (§4.7 step 4, invariant 4). Edges are only ever merged
// between stages that are actually present in this batch and in
// non-decreasing order, so MergeLifecycleEdge's out-of-order rejection is
// a backstop against a future caller, not something this path can trigger
// on its own.
func (d *Drainer) drainGraph(ctx context.Context, payload outboxPayload) error {
	byTransaction := map[transactionStages][]model.CanonicalTransaction{}

	for _, txn := range payload.Transactions {
		if err := d.dest.Graph.MergeTransactionNode(ctx, txn); err != nil {
			return err
		}
		if txn.MerchantID != "" {
			if err := d.dest.Graph.MergeMerchantNode(ctx, txn.BankID, txn.MerchantID); err != nil {
				return err
			}
		}
		key := transactionStages{bankID: txn.BankID, transactionID: txn.TransactionID, schemaVersion: txn.SchemaVersion}
		byTransaction[key] = append(byTransaction[key], txn)
	}

	for key, stages := range byTransaction {
		sort.Slice(stages, func(i, j int) bool {
			return stages[i].LifecycleStage.Precedes(stages[j].LifecycleStage)
		})
		for i := 1; i < len(stages); i++ {
			source, target := stages[i-1].LifecycleStage, stages[i].LifecycleStage
			if source == target {
				continue
			}
			if err := d.dest.Graph.MergeLifecycleEdge(ctx, key.bankID, key.transactionID, key.schemaVersion, source, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Drainer) drainVector(ctx context.Context, payload outboxPayload) error {
	records := make([]vector.Record, 0, len(payload.Transactions))
	for _, txn := range payload.Transactions {
		// One vector id per (transaction, stage): re-ingesting the same
		// artifact overwrites its vector, but AUTH/CLEARING/SETTLEMENT rows
		// for the same transaction_id stay distinct records.
		id := vector.DeterministicID(txn.BankID, "transaction", txn.TransactionID+"|"+string(txn.LifecycleStage))
		records = append(records, vector.Record{
			ID:             id,
			BankID:         txn.BankID,
			ReportID:       payload.Report.ReportID,
			TransactionPK:  graph.TransactionPK(txn.BankID, txn.TransactionID, txn.SchemaVersion),
			LifecycleStage: txn.LifecycleStage,
			SourceType:     "transaction",
			SourceID:       txn.TransactionID,
			Text:           fmt.Sprintf("%s %s %s %s at %s", txn.TransactionID, txn.Amount.String(), txn.Currency, txn.LifecycleStage, txn.MerchantID),
		})
	}
	if len(records) == 0 {
		return nil
	}
	return d.dest.Vector.Upsert(ctx, records)
}

func (d *Drainer) drainAudit(ctx context.Context, payload outboxPayload) error {
	event, err := audit.BuildIngestEvent(payload.Report.SchemaVersion, payload, time.Now().UTC())
	if err != nil {
		return err
	}
	_, err = d.dest.Ledger.PutEvent(ctx, event, &audit.Companion{
		SchemaVersion: payload.Report.SchemaVersion,
		BankID:        payload.Report.BankID,
		LedgerEventID: event.EventID,
	})
	return err
}

// DrainLoop runs DrainOnce on a ticker until ctx is cancelled, the
// single-worker process described in design note 9.2.
func (d *Drainer) DrainLoop(ctx context.Context, interval time.Duration, batchSize, maxRetries int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.DrainOnce(ctx, batchSize, maxRetries); err != nil {
				d.logger.Error("drain batch failed", "error", err)
			}
		}
	}
}
