package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatusProvider struct{ status any }

func (f fakeStatusProvider) Status() any { return f.status }

func getWithRetry(t *testing.T, url string) *http.Response {
	t.Helper()
	var resp *http.Response
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = http.Get(url)
		if err == nil {
			return resp
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	return resp
}

func TestServerStartServesMetricsAndStops(t *testing.T) {
	srv := NewServer("127.0.0.1:19191", "/metrics", nil)
	require.NoError(t, srv.Start(context.Background()))

	resp := getWithRetry(t, "http://127.0.0.1:19191/metrics")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Stop(ctx))
}

func TestServerHealthzReportsStatusProvider(t *testing.T) {
	srv := NewServer("127.0.0.1:19192", "/metrics", fakeStatusProvider{status: map[string]any{"timepoint": 2.0}})
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop(context.Background())

	resp := getWithRetry(t, "http://127.0.0.1:19192/healthz")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["ok"])
	run, ok := body["run"].(map[string]any)
	require.True(t, ok, "run = %v", body["run"])
	assert.Equal(t, 2.0, run["timepoint"])
}

func TestServerHealthzWithoutStatusProviderStillReportsOK(t *testing.T) {
	srv := NewServer("127.0.0.1:19193", "/metrics", nil)
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop(context.Background())

	resp := getWithRetry(t, "http://127.0.0.1:19193/healthz")
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["ok"])
	assert.NotContains(t, body, "run")
}

func TestServerStopWithoutStartIsNoop(t *testing.T) {
	srv := NewServer("127.0.0.1:0", "", nil)
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestNewServerDefaultsPath(t *testing.T) {
	srv := NewServer("127.0.0.1:0", "", nil)
	assert.Equal(t, "/metrics", srv.path)
}
