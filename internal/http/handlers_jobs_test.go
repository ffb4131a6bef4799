package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recruitpro/recruitpro-jobs/internal/domain/model"
	"github.com/recruitpro/recruitpro-jobs/internal/queue"
	"github.com/recruitpro/recruitpro-jobs/internal/service"
	"github.com/recruitpro/recruitpro-jobs/internal/testutil"
)

func newTestRouter(t *testing.T) (http.Handler, *testutil.MemoryJobRepo, *queue.Queue) {
	t.Helper()
	repo := testutil.NewMemoryJobRepo()
	q := queue.New(16)
	registry := queue.NewRegistry()

	svc := service.MustNewJobService(service.JobServiceOptions{
		Repo:     repo,
		Queue:    q,
		Registry: registry,
	})
	return NewRouter(RouterServices{Jobs: svc}), repo, q
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateJobAccepted(t *testing.T) {
	router, _, q := newTestRouter(t)

	rec := postJSON(t, router, "/api/jobs", model.CreateJobRequest{
		Type:    model.JobTypeEcho,
		Payload: json.RawMessage(`{"value":42}`),
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created model.JobRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.JobStatusPending, created.Status)
	assert.Equal(t, 1, q.Depth())
}

func TestCreateJobBadRequest(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := postJSON(t, router, "/api/jobs", model.CreateJobRequest{Type: model.JobTypeEcho})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation", body["error"])
}

func TestCreateJobMalformedJSON(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader([]byte(`{`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_json")
}

func TestGetJobAndStatus(t *testing.T) {
	router, repo, _ := newTestRouter(t)

	created, err := repo.Create(t.Context(), &model.CreateJobRequest{
		Type:    model.JobTypeEcho,
		Payload: json.RawMessage(`{"value":42}`),
	})
	require.NoError(t, err)

	rec := get(t, router, "/api/jobs/"+created.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.JobRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)
	assert.JSONEq(t, `{"value":42}`, string(got.Payload))

	rec = get(t, router, "/api/jobs/"+created.ID+"/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var status model.JobStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, model.JobStatusPending, status.Status)
	assert.Nil(t, status.Result)
}

func TestGetJobNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := get(t, router, "/api/jobs/00000000-0000-0000-0000-000000000000")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestQueueStatsEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := postJSON(t, router, "/api/jobs", model.CreateJobRequest{
		Type:    model.JobTypeEcho,
		Payload: json.RawMessage(`{}`),
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = get(t, router, "/api/queue/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats model.QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Queued)
	assert.Equal(t, 1, stats.Jobs.Pending)
}
