package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--server-address", srv.URL}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestSubmitCommand(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/jobs", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"jobId":"7","state":"queued","status":"success","message":"Job queued for processing"}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "submit", "-o", "owner-1", "--file-url", "https://files.example.com/r.jpg", "--no-redact")
	require.NoError(t, err)
	assert.Contains(t, out, `"jobId": "7"`)
	assert.Equal(t, "owner-1", got["ownerId"])
	assert.Equal(t, "receipt", got["docType"])
	assert.Equal(t, false, got["redact"])
}

func TestSubmitRequiresOwner(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := runCLI(t, srv, "submit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner-id")
}

func TestStatusCommandNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"jobId":"x","state":"not_found","status":"error","message":"Job not found"}`))
	}))
	defer srv.Close()

	_, err := runCLI(t, srv, "status", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Job not found")
}

func TestQueueCommands(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.RequestURI())
		if r.URL.Path == "/queue/clean" {
			_, _ = w.Write([]byte(`{"removed":4,"removedLocal":0}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","stats":{"reachable":true,"paused":true}}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "pause")
	require.NoError(t, err)
	assert.Contains(t, out, "Queue paused")

	out, err = runCLI(t, srv, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, `"paused": true`)

	out, err = runCLI(t, srv, "clean", "--older-than", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, `"removed": 4`)

	_, err = runCLI(t, srv, "clean", "--older-than", "0s")
	assert.Error(t, err)

	assert.Equal(t, []string{"POST /queue/pause", "GET /queue/stats", "POST /queue/clean?olderThan=1h0m0s"}, calls)
}

func TestHealthCommandUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unhealthy","checks":{"queue":{"status":"down","responseTimeMs":3}}}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "health")
	assert.EqualError(t, err, "service is unhealthy")
	assert.Contains(t, out, `"down"`)
}

func TestServerAddressFromEnv(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy","checks":{}}`))
	}))
	defer srv.Close()
	t.Setenv(envServerAddress, srv.URL)

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"health"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "healthy")
}
