package integration

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossanalytics/ossanalytics/internal/core"
	"github.com/ossanalytics/ossanalytics/internal/observability"
	"github.com/ossanalytics/ossanalytics/internal/output"
	"github.com/ossanalytics/ossanalytics/internal/server"
)

func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
			observability.PrometheusExporter = nil
		}
		observability.TelemetrySystem = nil
	})
}

// isPermissionError reports sandboxes that refuse loopback sockets.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") || strings.Contains(msg, "not permitted")
}

func initMetricsOrSkip(t *testing.T) {
	t.Helper()
	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}
	cleanupMetrics(t)
}

// writeDatasets builds a small output directory the way the build command does.
func writeDatasets(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writer := &output.Writer{Dir: dir}

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	datasets := []*core.Dataset{
		{
			Package:         core.Package{Name: "d3-array", Repo: "d3/d3-array"},
			WeeklyDownloads: 70,
			Downloads:       []core.DownloadPoint{{Date: day, Value: 10}},
		},
		{
			Package:         core.Package{Name: "@d3/plot", Repo: "d3/plot"},
			WeeklyDownloads: 7,
			Downloads:       []core.DownloadPoint{{Date: day, Missing: true}},
		},
	}
	for _, ds := range datasets {
		require.NoError(t, writer.WriteDataset(ds))
	}
	require.NoError(t, writer.WriteIndex(datasets, day))
	return dir
}

func newTestServer(t *testing.T, dataDir string) (*httptest.Server, *http.Client) {
	t.Helper()
	srv := server.New(server.Options{Host: "127.0.0.1", DataDir: dataDir, Version: "test"})

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping server setup: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func get(t *testing.T, client *http.Client, url string) (int, string, http.Header) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	return resp.StatusCode, string(body), resp.Header
}

func TestDatasetServerMetrics_Integration(t *testing.T) {
	observability.InitServerLogger(observability.ServerLoggerOptions{Service: "test", Level: "info"})
	t.Cleanup(func() { observability.ServerLogger = nil })
	initMetricsOrSkip(t)

	ts, client := newTestServer(t, writeDatasets(t))

	paths := []string{
		"/datasets",
		"/datasets/d3-array/downloads.json",
		"/datasets/@d3/plot/summary.json",
		"/datasets/missing/summary.json",
		"/health",
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(paths)*5)
	for i := 0; i < 5; i++ {
		for _, path := range paths {
			wg.Add(1)
			go func(path string) {
				defer wg.Done()
				resp, err := client.Get(ts.URL + path)
				if err != nil {
					errs <- err
					return
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
			}(path)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	status, body, header := get(t, client, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, header.Get("Content-Type"), "text/plain")
	assert.Contains(t, body, "test_http_requests_total")
	assert.Contains(t, body, "test_http_request_duration_ms")
	assert.Contains(t, body, "test_datasets_served")
	assert.NotContains(t, body, "d3-array", "package names must not become labels")
}

func TestDatasetServerServesBuiltFiles(t *testing.T) {
	ts, client := newTestServer(t, writeDatasets(t))

	status, body, _ := get(t, client, ts.URL+"/datasets")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"d3-array"`)
	assert.Contains(t, body, `"@d3/plot"`)

	status, body, _ = get(t, client, ts.URL+"/datasets/@d3/plot/downloads.json")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"value":null`)

	status, _, _ = get(t, client, ts.URL+"/health/ready")
	assert.Equal(t, http.StatusOK, status)
}

func TestMetricsEndpointWithTelemetryDisabled(t *testing.T) {
	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	ts, client := newTestServer(t, t.TempDir())

	status, _, _ := get(t, client, ts.URL+"/metrics")
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, _, _ = get(t, client, ts.URL+"/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}
