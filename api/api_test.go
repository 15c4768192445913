package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docintake/deduplication"
	"docintake/jobs"
	"docintake/observability"
	"docintake/processor"
	"docintake/queue"
	"docintake/types"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const validBody = `{"ownerId":"owner-1","documentId":"4b0b6a7e-3f0e-4c43-9d35-0f1f0d7c8b11","docType":"receipt"}`

func okProcessor() processor.Processor {
	return processor.Func(func(_ context.Context, req processor.Request) (*processor.Result, error) {
		req.ReportProgress(50)
		return &processor.Result{
			Transactions:     []types.Transaction{},
			TransactionCount: 0,
			ProcessingTimeMs: 12,
		}, nil
	})
}

type testServer struct {
	router  *gin.Engine
	mr      *miniredis.Miniredis
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, withQueue bool) *testServer {
	t.Helper()

	var (
		backend queue.Backend
		mr      *miniredis.Miniredis
	)
	if withQueue {
		mr = miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{
			Addr:        mr.Addr(),
			MaxRetries:  -1,
			DialTimeout: 200 * time.Millisecond,
		})
		t.Cleanup(func() { _ = client.Close() })
		backend = queue.NewRedisBackendWithClient(client, "api:queue")
	}

	metrics := observability.NewMetrics()
	detector, err := deduplication.NewDetector(deduplication.DefaultDetectionConfig())
	require.NoError(t, err)

	m := jobs.NewManager(backend, okProcessor(), jobs.WithListener(metrics))
	router := NewRouter(Deps{
		Jobs:            m,
		Detector:        detector,
		Metrics:         metrics,
		MaxUploadBytes:  1 << 20,
		QueueConfigured: withQueue,
	})
	return &testServer{router: router, mr: mr, metrics: metrics}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var body map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestSubmitQueued(t *testing.T) {
	s := newTestServer(t, true)

	w, body := s.do(t, jsonRequest(http.MethodPost, "/jobs", validBody))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "queued", body["state"])
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "Job queued for processing", body["message"])
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	id := body["jobId"].(string)
	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/status/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, body["jobId"])
	assert.Equal(t, "queued", body["state"])
	assert.Equal(t, "owner-1", body["data"].(map[string]any)["ownerId"])
	assert.NotEmpty(t, body["createdAt"])
	for _, key := range []string{"processedAt", "finishedAt"} {
		v, ok := body[key]
		assert.True(t, ok, key)
		assert.Nil(t, v, key)
	}
}

func TestSubmitInlineWhenQueueDown(t *testing.T) {
	s := newTestServer(t, true)
	s.mr.Close()

	w, body := s.do(t, jsonRequest(http.MethodPost, "/jobs", validBody))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "completed", body["state"])

	id := body["jobId"].(string)
	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/status/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", body["state"])
	assert.Equal(t, float64(100), body["progress"])
	assert.Equal(t, body["processedAt"], body["finishedAt"])
	assert.Equal(t, "Job completed", body["message"])
}

func TestSubmitValidation(t *testing.T) {
	s := newTestServer(t, false)

	w, body := s.do(t, jsonRequest(http.MethodPost, "/jobs", `{"docType":"invoice"}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "error", body["status"])

	fields := map[string]bool{}
	for _, f := range body["fields"].([]any) {
		fields[f.(map[string]any)["field"].(string)] = true
	}
	assert.True(t, fields["ownerId"])
	assert.True(t, fields["docType"])

	w, _ = s.do(t, jsonRequest(http.MethodPost, "/jobs", `not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusNotFound(t *testing.T) {
	s := newTestServer(t, false)

	w, body := s.do(t, httptest.NewRequest(http.MethodGet, "/status/missing", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "missing", body["jobId"])
	assert.Equal(t, "not_found", body["state"])
	assert.Equal(t, "error", body["status"])
}

func TestQueueControl(t *testing.T) {
	s := newTestServer(t, true)

	w, _ := s.do(t, httptest.NewRequest(http.MethodPost, "/queue/pause", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w, body := s.do(t, httptest.NewRequest(http.MethodGet, "/queue/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	stats := body["stats"].(map[string]any)
	assert.Equal(t, true, stats["paused"])
	assert.Equal(t, true, stats["reachable"])

	w, _ = s.do(t, httptest.NewRequest(http.MethodPost, "/queue/resume", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(t, httptest.NewRequest(http.MethodPost, "/queue/clean?olderThan=1h", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["removed"])

	w, _ = s.do(t, httptest.NewRequest(http.MethodPost, "/queue/clean?olderThan=soon", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueControlUnavailable(t *testing.T) {
	s := newTestServer(t, true)
	s.mr.Close()

	w, body := s.do(t, httptest.NewRequest(http.MethodPost, "/queue/pause", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "error", body["status"])

	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/queue/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["stats"].(map[string]any)["reachable"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, true)

	w, body := s.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "up", checks["queue"].(map[string]any)["status"])
	assert.Equal(t, "up", checks["storage"].(map[string]any)["status"])

	s.mr.Close()
	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	queueCheck := body["checks"].(map[string]any)["queue"].(map[string]any)
	assert.Equal(t, "down", queueCheck["status"])
	assert.NotEmpty(t, queueCheck["error"])
}

func TestHealthWithoutQueue(t *testing.T) {
	s := newTestServer(t, false)

	w, body := s.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, body["checks"], "queue")
}

func multipartUpload(t *testing.T, path string, fields map[string]string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if content != nil {
		fw, err := mw.CreateFormFile("file", "receipt.jpg")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestDeduplicationFlow(t *testing.T) {
	s := newTestServer(t, false)
	fields := map[string]string{
		"ownerId":  "owner-1",
		"merchant": "Corner Cafe",
		"amount":   "12.50",
		"date":     "2026-10-01",
	}
	content := []byte("receipt bytes")

	w, body := s.do(t, multipartUpload(t, "/deduplication/check", fields, content))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["isDuplicate"])

	w, body = s.do(t, multipartUpload(t, "/deduplication/fingerprints", fields, content))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "owner-1", body["ownerId"])
	assert.Equal(t, float64(1), body["confidence"])

	w, body = s.do(t, multipartUpload(t, "/deduplication/check", fields, content))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["isDuplicate"])

	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/deduplication/owners/owner-1/count", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	w, _ = s.do(t, httptest.NewRequest(http.MethodDelete, "/deduplication/owners/owner-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/deduplication/owners/owner-1/count", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["count"])

	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/deduplication/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["stats"].(map[string]any)["totalChecks"])
}

func TestDeduplicationRejectsBadUpload(t *testing.T) {
	s := newTestServer(t, false)

	w, body := s.do(t, multipartUpload(t, "/deduplication/fingerprints", map[string]string{
		"amount":     "twelve",
		"confidence": "2",
	}, nil))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var names []string
	for _, f := range body["fields"].([]any) {
		names = append(names, f.(map[string]any)["field"].(string))
	}
	assert.ElementsMatch(t, []string{"ownerId", "file", "amount", "confidence"}, names)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, false)

	s.do(t, jsonRequest(http.MethodPost, "/jobs", validBody))

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	out := w.Body.String()
	assert.Contains(t, out, `docintake_http_requests_total{method="POST",route="/jobs",status="201"} 1`)
	assert.Contains(t, out, `docintake_jobs_finished_total{state="completed"} 1`)
}
