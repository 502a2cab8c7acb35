// Package artifacts persists the immutable raw-upload record (§3:
// "Artifact") that the API layer writes once at POST /upload time and the
// pipeline's extract stage reads back by artifact_id to locate the object
// store key and declared file format.
package artifacts

import (
	"context"
	"database/sql"

	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/payscopeerr"
	"github.com/payscope/payscope/pkg/tenant"
)

// Schema creates the artifacts table, row-scoped by bank_id like every
// other facts-adjacent table in the store.
const Schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	artifact_id TEXT PRIMARY KEY,
	bank_id     TEXT NOT NULL,
	object_key  TEXT NOT NULL,
	file_format TEXT NOT NULL,
	sha256      TEXT NOT NULL,
	upload_time TIMESTAMP NOT NULL
);
`

// Store is the artifact metadata client.
type Store struct {
	db *sql.DB
}

// New wraps an open *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init creates the schema if absent.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// Insert records artifact once. A re-upload of identical bytes still gets
// a fresh artifact_id from the caller, so this is a plain insert rather
// than an upsert; the idempotence guarantee for duplicate content lives
// downstream, at the facts/graph/vector writers (§8).
func (s *Store) Insert(ctx context.Context, scope *tenant.Scope, artifact model.Artifact) error {
	if scope == nil {
		return payscopeerr.New(payscopeerr.KindTenantNotBound, "artifacts: Insert called without a bound tenant scope")
	}
	if artifact.BankID != scope.BankID() {
		return payscopeerr.New(payscopeerr.KindTenantMismatch, "artifacts: artifact bank_id does not match bound scope")
	}
	_, err := scope.Conn().ExecContext(ctx, `
		INSERT INTO artifacts (artifact_id, bank_id, object_key, file_format, sha256, upload_time)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, artifact.ArtifactID, artifact.BankID, artifact.ObjectKey, string(artifact.FileFormat), artifact.SHA256, artifact.UploadTime)
	return err
}

// Get looks up artifact by id, scoped to the bound bank.
func (s *Store) Get(ctx context.Context, scope *tenant.Scope, artifactID string) (model.Artifact, error) {
	if scope == nil {
		return model.Artifact{}, payscopeerr.New(payscopeerr.KindTenantNotBound, "artifacts: Get called without a bound tenant scope")
	}
	var a model.Artifact
	var fileFormat string
	err := scope.Conn().QueryRowContext(ctx, `
		SELECT artifact_id, bank_id, object_key, file_format, sha256, upload_time
		FROM artifacts WHERE artifact_id = $1 AND bank_id = $2
	`, artifactID, scope.BankID()).Scan(&a.ArtifactID, &a.BankID, &a.ObjectKey, &fileFormat, &a.SHA256, &a.UploadTime)
	if err != nil {
		return model.Artifact{}, err
	}
	a.FileFormat = model.FileFormat(fileFormat)
	return a, nil
}

// CountByBank returns how many artifacts the bound bank has uploaded,
// used by the admin validate-datasets endpoint.
func (s *Store) CountByBank(ctx context.Context, scope *tenant.Scope) (int, error) {
	if scope == nil {
		return 0, payscopeerr.New(payscopeerr.KindTenantNotBound, "artifacts: CountByBank called without a bound tenant scope")
	}
	var n int
	err := scope.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts WHERE bank_id = $1`, scope.BankID()).Scan(&n)
	return n, err
}
