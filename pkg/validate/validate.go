// Package validate implements the validator/deduper (C6): per-row hard
// validation of amount/currency/timestamp, and deduplication by
// (transaction_id, lifecycle_stage) keeping the highest-confidence row
// with earliest-timestamp tie-break (§4.6).
package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
)

// roundingScale is the fractional-digit scale amounts are rounded to,
// using banker's rounding (round-half-to-even), per §4.6.
const roundingScale = 6

// RawRow is one pre-validation candidate row, already mapped to
// canonical field names by C5 but not yet type-checked or deduplicated.
type RawRow struct {
	TransactionID   string
	Amount          string
	Currency        string
	TimestampUTC    string
	LifecycleStage  string
	MerchantID      string
	CardNetwork     string
	BankID          string
	SchemaVersion   string
	ConfidenceScore float64
	RawSourceRef    model.RawSourceRef
	IsCredit        bool
}

// RowError is a per-row validation failure. It is not a job failure
// (§7: "validation_row_failed: per-row; not a job failure") — rows with
// a RowError are dropped from the artifact's canonical output but the
// artifact as a whole still proceeds.
type RowError struct {
	Row     RawRow
	Kind    payscopeerr.Kind
	Detail  string
}

func (e RowError) Error() string {
	return fmt.Sprintf("validation_row_failed: %s", e.Detail)
}

// ValidateRow hard-validates raw and returns a CanonicalTransaction, or a
// RowError describing why the row cannot be canonicalized.
func ValidateRow(raw RawRow) (model.CanonicalTransaction, *RowError) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw.Amount))
	if err != nil {
		return model.CanonicalTransaction{}, &RowError{Row: raw, Kind: payscopeerr.KindValidationRowFailed,
			Detail: fmt.Sprintf("unparseable amount %q: %v", raw.Amount, err)}
	}
	amount = amount.RoundBank(roundingScale)
	if amount.IsNegative() && !raw.IsCredit {
		return model.CanonicalTransaction{}, &RowError{Row: raw, Kind: payscopeerr.KindValidationRowFailed,
			Detail: fmt.Sprintf("negative amount %s on a non-credit row", amount.String())}
	}

	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if !IsValidCurrency(currency) {
		return model.CanonicalTransaction{}, &RowError{Row: raw, Kind: payscopeerr.KindValidationRowFailed,
			Detail: fmt.Sprintf("currency %q is not in the ISO-4217 allowlist", currency)}
	}

	ts, err := parseUTCTimestamp(raw.TimestampUTC)
	if err != nil {
		return model.CanonicalTransaction{}, &RowError{Row: raw, Kind: payscopeerr.KindValidationRowFailed,
			Detail: fmt.Sprintf("unparseable or tz-less timestamp %q: %v", raw.TimestampUTC, err)}
	}

	stage := model.LifecycleStage(strings.ToUpper(raw.LifecycleStage))

	return model.CanonicalTransaction{
		TransactionID:   raw.TransactionID,
		BankID:          raw.BankID,
		Amount:          amount,
		Currency:        currency,
		TimestampUTC:    ts,
		LifecycleStage:  stage,
		MerchantID:      raw.MerchantID,
		CardNetwork:     raw.CardNetwork,
		RawSourceRef:    raw.RawSourceRef,
		ConfidenceScore: raw.ConfidenceScore,
		SchemaVersion:   raw.SchemaVersion,
	}, nil
}

// parseUTCTimestamp accepts only timestamps carrying explicit zone
// information, normalizing DST-boundary values to UTC without drift;
// tz-less inputs are rejected per §4.6.
func parseUTCTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05Z0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp must carry explicit zone information (RFC-3339)")
}

// dedupeKey is the (transaction_id, lifecycle_stage) grouping key.
type dedupeKey struct {
	TransactionID  string
	LifecycleStage model.LifecycleStage
}

// Dedupe groups rows by (transaction_id, lifecycle_stage) and keeps the
// highest-confidence row per group, breaking ties by earliest
// timestamp_utc. The result order follows each group's first
// appearance, making Dedupe idempotent: Dedupe(Dedupe(rows)) ==
// Dedupe(rows).
func Dedupe(rows []model.CanonicalTransaction) []model.CanonicalTransaction {
	best := map[dedupeKey]model.CanonicalTransaction{}
	order := make([]dedupeKey, 0, len(rows))

	for _, row := range rows {
		key := dedupeKey{TransactionID: row.TransactionID, LifecycleStage: row.LifecycleStage}
		existing, ok := best[key]
		if !ok {
			best[key] = row
			order = append(order, key)
			continue
		}
		if isBetter(row, existing) {
			best[key] = row
		}
	}

	out := make([]model.CanonicalTransaction, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

func isBetter(candidate, current model.CanonicalTransaction) bool {
	if candidate.ConfidenceScore != current.ConfidenceScore {
		return candidate.ConfidenceScore > current.ConfidenceScore
	}
	return candidate.TimestampUTC.Before(current.TimestampUTC)
}
