package api

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/objectstore"
	"github.com/payscope/payscope/pkg/orchestrator"
	"github.com/payscope/payscope/pkg/payscopeerr"
	"github.com/payscope/payscope/pkg/rag"
	"github.com/payscope/payscope/pkg/stores/artifacts"
	"github.com/payscope/payscope/pkg/tenant"
)

// DependencyChecker probes one backing dependency for GET /health/ready.
// It returns nil when the dependency answered within ctx's deadline.
type DependencyChecker func(ctx context.Context) error

// Server holds every dependency PayScope's HTTP handlers need. It carries
// no behavior of its own beyond routing requests into the packages that
// actually implement ingestion, retrieval, and storage.
type Server struct {
	DB       *sql.DB
	Objects  objectstore.Backend
	Bucket   string
	Queue    orchestrator.Queue
	Artifact *artifacts.Store
	RAG      *rag.Engine

	MaxUploadBytes     int64
	QueueHighWatermark int

	// DependencyCheckers maps the §6 health-check names (facts, ts, graph,
	// vector, object, queue) to a probe. A name absent from the map is
	// reported "not_configured" rather than "error".
	DependencyCheckers map[string]DependencyChecker

	Logger *slog.Logger
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// uploadResponse is POST /upload's success body.
type uploadResponse struct {
	ArtifactID string `json:"artifact_id"`
	StatusURL  string `json:"status_url"`
}

// detectFileFormat maps an uploaded filename's extension to the
// file_format enum the extractor dispatches on.
func detectFileFormat(filename string) (model.FileFormat, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return model.FileFormatCSV, true
	case ".xlsx":
		return model.FileFormatXLSX, true
	case ".pdf":
		// Every .pdf upload is recorded as pdf-digital; no later stage,
		// the layout tagger included, changes the artifact's file_format.
		return model.FileFormatPDFDigital, true
	default:
		return "", false
	}
}

// HandleUpload implements POST /upload (§6): authenticate (done by
// upstream middleware), verify tenant match (X-Bank-Id), put bytes to the
// object store, enqueue a ParseJob, and return {artifact_id, status_url}.
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	bankID := r.Header.Get("X-Bank-Id")
	if bankID == "" {
		WriteUnauthorized(w, "missing X-Bank-Id header")
		return
	}

	ctx := r.Context()
	if s.Queue != nil && s.QueueHighWatermark > 0 {
		pending, err := s.Queue.PendingCount(ctx)
		if err != nil {
			WriteInternal(w, fmt.Errorf("upload: check queue depth: %w", err))
			return
		}
		if pending >= s.QueueHighWatermark {
			WriteErrorR(w, r, http.StatusServiceUnavailable, "Ingestion Overloaded",
				"the parse job queue is at capacity; retry after the backlog drains")
			return
		}
	}

	maxBytes := s.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		WriteError(w, http.StatusRequestEntityTooLarge, "Payload Too Large", "uploaded file exceeds the configured size limit")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteBadRequest(w, "missing multipart field \"file\"")
		return
	}
	defer file.Close()

	fileFormat, ok := detectFileFormat(header.Filename)
	if !ok {
		WriteBadRequest(w, "unrecognized file extension; expected .csv, .xlsx, or .pdf")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusRequestEntityTooLarge, "Payload Too Large", "uploaded file exceeds the configured size limit")
		return
	}

	sum := sha256.Sum256(data)
	artifactID := uuid.NewString()
	objectKey := objectstore.RawKey(bankID, artifactID, header.Filename)

	if _, err := s.Objects.Put(ctx, objectKey, data); err != nil {
		WriteInternal(w, fmt.Errorf("upload: put object: %w", err))
		return
	}

	artifact := model.Artifact{
		ArtifactID: artifactID,
		BankID:     bankID,
		ObjectKey:  objectKey,
		FileFormat: fileFormat,
		SHA256:     hex.EncodeToString(sum[:]),
		UploadTime: time.Now().UTC(),
	}

	scope, err := tenant.Acquire(ctx, s.DB, bankID)
	if err != nil {
		WriteInternal(w, fmt.Errorf("upload: acquire tenant scope: %w", err))
		return
	}
	defer scope.Release()

	if err := s.Artifact.Insert(ctx, scope, artifact); err != nil {
		WriteInternal(w, fmt.Errorf("upload: record artifact: %w", err))
		return
	}

	job, err := s.Queue.Enqueue(ctx, bankID, artifactID)
	if err != nil {
		WriteInternal(w, fmt.Errorf("upload: enqueue parse job: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(uploadResponse{
		ArtifactID: artifactID,
		StatusURL:  fmt.Sprintf("/jobs/%s", job.JobID),
	})
}

// chatQueryRequest is POST /chat/query's body.
type chatQueryRequest struct {
	Query     string `json:"query"`
	TimeRange string `json:"time_range"`
}

// HandleChatQuery implements POST /chat/query (§6): classify -> retrieve
// -> dispatch -> compose, scoped to the requesting bank.
func (s *Server) HandleChatQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	bankID := r.Header.Get("X-Bank-Id")
	if bankID == "" {
		WriteUnauthorized(w, "missing X-Bank-Id header")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req chatQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if req.Query == "" {
		WriteBadRequest(w, "query is required")
		return
	}

	ctx := r.Context()
	scope, err := tenant.Acquire(ctx, s.DB, bankID)
	if err != nil {
		WriteInternal(w, fmt.Errorf("chat query: acquire tenant scope: %w", err))
		return
	}
	defer scope.Release()

	resp, err := s.RAG.Query(ctx, scope, req.Query, req.TimeRange)
	if err != nil {
		if kind, ok := payscopeerr.KindOf(err); ok {
			WriteErrorR(w, r, kind.HTTPStatus(), string(kind), err.Error())
			return
		}
		WriteBadRequest(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// HandleHealth implements GET /health: a basic liveness check that never
// touches a dependency.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleHealthLive implements GET /health/live: process-level liveness,
// identical in spirit to /health but kept as its own route since a
// readiness probe and a liveness probe are wired to different k8s checks.
func (s *Server) HandleHealthLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// readinessResult is one entry of GET /health/ready's per-dependency body.
type readinessResult struct {
	Status string `json:"status"`
}

// HandleHealthReady implements GET /health/ready (§6): a per-dependency
// status for facts, ts, graph, vector, object, and queue, each "ok",
// "not_configured", or "error".
func (s *Server) HandleHealthReady(w http.ResponseWriter, r *http.Request) {
	names := []string{"facts", "ts", "graph", "vector", "object", "queue"}
	checks := make(map[string]readinessResult, len(names))
	allOK := true

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, name := range names {
		checker, configured := s.DependencyCheckers[name]
		if !configured {
			checks[name] = readinessResult{Status: "not_configured"}
			continue
		}
		if err := checker(ctx); err != nil {
			s.logger().WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
			checks[name] = readinessResult{Status: "error"}
			allOK = false
			continue
		}
		checks[name] = readinessResult{Status: "ok"}
	}

	w.Header().Set("Content-Type", "application/json")
	if !allOK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"checks": checks})
}

// HandleMetrics implements GET /metrics, exposing the process's counters
// and histograms in Prometheus text format.
func (s *Server) HandleMetrics() http.Handler {
	return promhttp.Handler()
}

// datasetCounts is one tenant's row/vector/node counts in the
// GET /admin/validate-datasets response.
type datasetCounts struct {
	BankID           string `json:"bank_id"`
	TransactionCount int    `json:"transaction_count"`
	ArtifactCount    int    `json:"artifact_count"`
	GraphNodeCount   int64  `json:"graph_node_count"`
	VectorCount      int    `json:"vector_count"`
}

// DatasetCounter computes one tenant's row/vector/node counts. cmd/payscope
// wires this to the facts/graph/vector stores; tests substitute a fake.
type DatasetCounter interface {
	Count(ctx context.Context, scope *tenant.Scope) (transactionCount int, graphNodeCount int64, vectorCount int, err error)
}

// HandleValidateDatasets implements GET /admin/validate-datasets (§6):
// admin-only, returns per-tenant row/vector/node counts for verification.
// Role enforcement happens in the auth middleware chain before this
// handler runs; by the time a request reaches here it has already been
// authorized as ADMIN.
func (s *Server) HandleValidateDatasets(counter DatasetCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			WriteMethodNotAllowed(w)
			return
		}
		bankID := r.Header.Get("X-Bank-Id")
		if bankID == "" {
			WriteUnauthorized(w, "missing X-Bank-Id header")
			return
		}

		ctx := r.Context()
		scope, err := tenant.Acquire(ctx, s.DB, bankID)
		if err != nil {
			WriteInternal(w, fmt.Errorf("validate datasets: acquire tenant scope: %w", err))
			return
		}
		defer scope.Release()

		artifactCount, err := s.Artifact.CountByBank(ctx, scope)
		if err != nil {
			WriteInternal(w, fmt.Errorf("validate datasets: count artifacts: %w", err))
			return
		}

		txnCount, nodeCount, vectorCount, err := counter.Count(ctx, scope)
		if err != nil {
			WriteInternal(w, fmt.Errorf("validate datasets: count datasets: %w", err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(datasetCounts{
			BankID:           bankID,
			TransactionCount: txnCount,
			ArtifactCount:    artifactCount,
			GraphNodeCount:   nodeCount,
			VectorCount:      vectorCount,
		})
	}
}
