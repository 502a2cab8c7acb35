package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payscope/payscope/pkg/api"
	"github.com/payscope/payscope/pkg/model"
	"github.com/payscope/payscope/pkg/objectstore"
	"github.com/payscope/payscope/pkg/orchestrator"
	"github.com/payscope/payscope/pkg/stores/artifacts"
	"github.com/payscope/payscope/pkg/tenant"
)

type fakeObjects struct {
	putKey  string
	putData []byte
}

func (f *fakeObjects) Put(ctx context.Context, key string, data []byte) (string, error) {
	f.putKey = key
	f.putData = data
	return "etag", nil
}

func (f *fakeObjects) Get(ctx context.Context, key string) ([]byte, error) {
	return f.putData, nil
}

func (f *fakeObjects) Head(ctx context.Context, key string) (objectstore.Metadata, error) {
	return objectstore.Metadata{Size: int64(len(f.putData))}, nil
}

// fakeQueue implements orchestrator.Queue, with only the methods the
// handler tests exercise doing real work.
type fakeQueue struct {
	pending       int
	enqueuedBank  string
	enqueuedArt   string
	enqueueCalled bool
}

func (f *fakeQueue) Enqueue(ctx context.Context, bankID, artifactID string) (model.ParseJob, error) {
	f.enqueueCalled = true
	f.enqueuedBank = bankID
	f.enqueuedArt = artifactID
	return model.ParseJob{JobID: "job-1", BankID: bankID, ArtifactID: artifactID, Status: model.JobPending}, nil
}
func (f *fakeQueue) Claim(ctx context.Context, leaseDuration time.Duration) (model.ParseJob, error) {
	return model.ParseJob{}, orchestrator.ErrNoPendingJobs
}
func (f *fakeQueue) Heartbeat(ctx context.Context, jobID, claimToken string, leaseDuration time.Duration) error {
	return nil
}
func (f *fakeQueue) Complete(ctx context.Context, jobID, claimToken string) error { return nil }
func (f *fakeQueue) Retry(ctx context.Context, jobID, claimToken string, lastErr string, delay time.Duration) error {
	return nil
}
func (f *fakeQueue) DeadLetter(ctx context.Context, jobID, claimToken, errorClass, errorDetail, payloadRef string) error {
	return nil
}
func (f *fakeQueue) Get(ctx context.Context, jobID string) (model.ParseJob, error) {
	return model.ParseJob{}, nil
}
func (f *fakeQueue) ReleaseExpiredLeases(ctx context.Context) (int, error) { return 0, nil }
func (f *fakeQueue) PendingCount(ctx context.Context) (int, error)        { return f.pending, nil }

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHandleUpload_RejectsMissingBankHeader(t *testing.T) {
	s := &api.Server{}
	body, contentType := multipartUpload(t, "rows.csv", []byte("a,b\n1,2\n"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	s.HandleUpload(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleUpload_RejectsBackpressure(t *testing.T) {
	s := &api.Server{
		Queue:              &fakeQueue{pending: 10},
		QueueHighWatermark: 5,
	}
	body, contentType := multipartUpload(t, "rows.csv", []byte("a,b\n1,2\n"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Bank-Id", "bank-1")
	w := httptest.NewRecorder()

	s.HandleUpload(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleUpload_HappyPath(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("SELECT set_config").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO artifacts").WillReturnResult(sqlmock.NewResult(1, 1))

	objects := &fakeObjects{}
	queue := &fakeQueue{pending: 0}

	s := &api.Server{
		DB:                 db,
		Objects:            objects,
		Queue:              queue,
		Artifact:           artifacts.New(db),
		QueueHighWatermark: 100,
	}

	body, contentType := multipartUpload(t, "visa_auth.csv", []byte("transaction_id,amount\nT1,10.00\n"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Bank-Id", "bank-1")
	w := httptest.NewRecorder()

	s.HandleUpload(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		ArtifactID string `json:"artifact_id"`
		StatusURL  string `json:"status_url"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEmpty(t, resp.ArtifactID)
	assert.Equal(t, "/jobs/job-1", resp.StatusURL)
	assert.True(t, queue.enqueueCalled)
	assert.Equal(t, "bank-1", queue.enqueuedBank)
	assert.NotEmpty(t, objects.putData)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleUpload_RejectsUnrecognizedExtension(t *testing.T) {
	s := &api.Server{Queue: &fakeQueue{}, QueueHighWatermark: 100}
	body, contentType := multipartUpload(t, "notes.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Bank-Id", "bank-1")
	w := httptest.NewRecorder()

	s.HandleUpload(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChatQuery_RejectsMissingBankHeader(t *testing.T) {
	s := &api.Server{}
	req := httptest.NewRequest(http.MethodPost, "/chat/query", bytes.NewBufferString(`{"query":"hi"}`))
	w := httptest.NewRecorder()

	s.HandleChatQuery(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleChatQuery_RejectsEmptyQuery(t *testing.T) {
	s := &api.Server{}
	req := httptest.NewRequest(http.MethodPost, "/chat/query", bytes.NewBufferString(`{"query":""}`))
	req.Header.Set("X-Bank-Id", "bank-1")
	w := httptest.NewRecorder()

	s.HandleChatQuery(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChatQuery_RejectsMalformedBody(t *testing.T) {
	s := &api.Server{}
	req := httptest.NewRequest(http.MethodPost, "/chat/query", bytes.NewBufferString(`not json`))
	req.Header.Set("X-Bank-Id", "bank-1")
	w := httptest.NewRecorder()

	s.HandleChatQuery(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	s := &api.Server{}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.HandleHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleHealthReady_NotConfiguredWhenNoCheckers(t *testing.T) {
	s := &api.Server{}
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()

	s.HandleHealthReady(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var decoded struct {
		Checks map[string]struct {
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&decoded))
	assert.Equal(t, "not_configured", decoded.Checks["facts"].Status)
	assert.Equal(t, "not_configured", decoded.Checks["queue"].Status)
}

func TestHandleHealthReady_ReportsDependencyError(t *testing.T) {
	s := &api.Server{
		DependencyCheckers: map[string]api.DependencyChecker{
			"facts": func(ctx context.Context) error { return errors.New("facts store unreachable") },
			"queue": func(ctx context.Context) error { return nil },
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()

	s.HandleHealthReady(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type stubCounter struct {
	txn  int
	node int64
	vec  int
}

func (s stubCounter) Count(ctx context.Context, scope *tenant.Scope) (int, int64, int, error) {
	return s.txn, s.node, s.vec, nil
}

func TestHandleValidateDatasets_ReturnsCounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("SELECT set_config").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	s := &api.Server{DB: db, Artifact: artifacts.New(db)}
	handler := s.HandleValidateDatasets(stubCounter{txn: 7, node: 2, vec: 9})

	req := httptest.NewRequest(http.MethodGet, "/admin/validate-datasets", nil)
	req.Header.Set("X-Bank-Id", "bank-1")
	w := httptest.NewRecorder()

	handler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var decoded struct {
		BankID           string `json:"bank_id"`
		TransactionCount int    `json:"transaction_count"`
		ArtifactCount    int    `json:"artifact_count"`
		GraphNodeCount   int64  `json:"graph_node_count"`
		VectorCount      int    `json:"vector_count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&decoded))
	assert.Equal(t, "bank-1", decoded.BankID)
	assert.Equal(t, 7, decoded.TransactionCount)
	assert.Equal(t, 3, decoded.ArtifactCount)
	assert.Equal(t, int64(2), decoded.GraphNodeCount)
	assert.Equal(t, 9, decoded.VectorCount)
	require.NoError(t, mock.ExpectationsWereMet())
}
