package audit_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payscope/payscope/pkg/audit"
	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
)

// memStore is an in-memory audit.Store for fast unit tests of idempotency
// semantics, independent of the SQL-backed implementation.
type memStore struct {
	entries map[string]struct {
		hash string
		tx   string
	}
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]struct {
		hash string
		tx   string
	})}
}

func (m *memStore) Get(_ context.Context, eventID string) (string, string, bool, error) {
	e, ok := m.entries[eventID]
	if !ok {
		return "", "", false, nil
	}
	return e.hash, e.tx, true, nil
}

func (m *memStore) Put(_ context.Context, eventID, payloadHash, txID string, _ model.AuditEvent, _ *audit.Companion) error {
	m.entries[eventID] = struct {
		hash string
		tx   string
	}{payloadHash, txID}
	return nil
}

func sampleEvent(artifactHash string) model.AuditEvent {
	return model.AuditEvent{
		EventID:       uuid.NewString(),
		EventType:     model.AuditIngest,
		ArtifactHash:  artifactHash,
		SchemaVersion: "1.0",
		Timestamp:     time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestPutEvent_FirstWriteSucceeds(t *testing.T) {
	ledger := audit.New(newMemStore())
	event := sampleEvent(strings.Repeat("a", 64))

	result, err := ledger.PutEvent(context.Background(), event, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.TxID)
	assert.False(t, result.Replayed)
}

func TestPutEvent_IdenticalReplayReturnsSameTxID(t *testing.T) {
	ledger := audit.New(newMemStore())
	event := sampleEvent(strings.Repeat("b", 64))

	first, err := ledger.PutEvent(context.Background(), event, nil)
	require.NoError(t, err)

	second, err := ledger.PutEvent(context.Background(), event, nil)
	require.NoError(t, err)

	assert.Equal(t, first.TxID, second.TxID)
	assert.True(t, second.Replayed)
}

func TestPutEvent_ConflictingPayloadIsRejected(t *testing.T) {
	ledger := audit.New(newMemStore())
	event := sampleEvent(strings.Repeat("c", 64))
	_, err := ledger.PutEvent(context.Background(), event, nil)
	require.NoError(t, err)

	mutated := event
	mutated.ArtifactHash = strings.Repeat("d", 64)
	_, err = ledger.PutEvent(context.Background(), mutated, nil)
	require.Error(t, err)
	kind, ok := payscopeerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, payscopeerr.KindIdempotencyViolation, kind)
}

func TestValidate_RejectsBadArtifactHash(t *testing.T) {
	event := sampleEvent("not-64-hex-chars")
	err := audit.Validate(event)
	require.Error(t, err)
}

func TestValidate_RejectsNonUUIDEventID(t *testing.T) {
	event := sampleEvent(strings.Repeat("e", 64))
	event.EventID = "not-a-uuid"
	err := audit.Validate(event)
	require.Error(t, err)
}

func TestValidate_RejectsNewerMajorSchemaVersion(t *testing.T) {
	event := sampleEvent(strings.Repeat("f", 64))
	event.SchemaVersion = "2.0"
	err := audit.Validate(event)
	require.Error(t, err)
}

func TestCompatibleSchemaVersion_SameMajorIsCompatible(t *testing.T) {
	assert.True(t, audit.CompatibleSchemaVersion("1.3", "1.0"))
}

func TestCompatibleSchemaVersion_NewerMajorIsIncompatible(t *testing.T) {
	assert.False(t, audit.CompatibleSchemaVersion("1.0", "2.0"))
}

func TestCanonicalHash_IsDeterministic(t *testing.T) {
	event := sampleEvent(strings.Repeat("f", 64))
	h1, err := audit.CanonicalHash(event)
	require.NoError(t, err)
	h2, err := audit.CanonicalHash(event)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
