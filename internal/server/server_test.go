package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtxerr/gridpower/internal/storage"
	"github.com/xtxerr/gridpower/internal/storage/config"
	"github.com/xtxerr/gridpower/internal/storage/parquet"
	testutil "github.com/xtxerr/gridpower/internal/testing"
)

const body = "1700000000 3.3 Voltage\n1700000000 1.5 Current\nbadrow\n"

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *storage.Service) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.AccessLog = false
	if mutate != nil {
		mutate(cfg)
	}

	svc, err := storage.New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	t.Cleanup(func() { svc.Stop() })

	return New(cfg.Server, svc, svc.Metrics().Handler()), svc
}

func do(t *testing.T, s *Server, method, target, contentType string, reqBody io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, reqBody)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIngestAndQuery(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/data", "text/plain", strings.NewReader(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(headerSessionID))

	rec = do(t, s, http.MethodGet, "/data?from=2023-11-14T00:00:00Z&to=2023-11-15T00:00:00Z", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"time":"2023-11-14T22:13:20.000Z","value":1.5},
		{"time":"2023-11-14T22:13:20.000Z","value":3.3},
		{"time":"2023-11-14T00:00:00.000Z","name":"Power","value":"4.95"}
	]`, rec.Body.String())
}

func TestIngestContentType(t *testing.T) {
	s, svc := newTestServer(t, nil)

	tests := []struct {
		name        string
		contentType string
		wantStatus  int
	}{
		{"plain", "text/plain", http.StatusOK},
		{"plain with charset", "text/plain; charset=utf-8", http.StatusOK},
		{"json", "application/json", http.StatusBadRequest},
		{"missing", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/data", tt.contentType, strings.NewReader("1700000000 1.0 Current\n"))
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusBadRequest {
				assert.Equal(t, "Invalid content type", rec.Body.String())
			}
		})
	}

	assert.EqualValues(t, 2, svc.Stats().Ingestion.SessionsStarted)
}

func TestIngestTransportFailure(t *testing.T) {
	s, svc := newTestServer(t, func(c *config.Config) { c.Ingestion.ChunkSize = 16 })

	r := testutil.NewFailingReader(strings.NewReader("1700000000 1.0 Current\n"))
	rec := do(t, s, http.MethodPost, "/data", "text/plain", r)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false}`, rec.Body.String())
	assert.EqualValues(t, 1, svc.Stats().Ingestion.SessionsFailed)
}

func TestIngestBodyTooLarge(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.Server.MaxBodyBytes = 8
		c.Ingestion.ChunkSize = 4
	})

	rec := do(t, s, http.MethodPost, "/data", "text/plain", strings.NewReader(body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"success":false}`, rec.Body.String())
}

func TestQueryInputErrors(t *testing.T) {
	s, svc := newTestServer(t, nil)

	tests := []struct {
		name   string
		target string
	}{
		{"missing from", "/data?to=2023-11-15T00:00:00Z"},
		{"missing to", "/data?from=2023-11-14T00:00:00Z"},
		{"bad time", "/data?from=yesterday&to=2023-11-15T00:00:00Z"},
		{"inverted", "/data?from=2023-11-15T00:00:00Z&to=2023-11-14T00:00:00Z"},
		{"bad period", "/data?from=2023-11-14T00:00:00Z&period=soon"},
		{"daily missing from", "/data/daily?to=2023-11-15T00:00:00Z"},
		{"export inverted", "/data/export?from=2023-11-15T00:00:00Z&to=2023-11-14T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.target, "", nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
		})
	}

	// Rejected before the store is read
	assert.Zero(t, svc.Stats().Store.Reads)
}

func TestDaily(t *testing.T) {
	s, _ := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/data", "text/plain", strings.NewReader(body))

	rec := do(t, s, http.MethodGet, "/data/daily?from=2023-11-14T00:00:00Z&period=P1D", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 2)
	assert.Equal(t, "Current", summaries[0]["channel"])
	assert.Equal(t, "Voltage", summaries[1]["channel"])

	rec = do(t, s, http.MethodGet, "/data/daily?from=2020-01-01T00:00:00Z&period=P1D", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestExport(t *testing.T) {
	s, _ := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/data", "text/plain", strings.NewReader(body))

	rec := do(t, s, http.MethodGet, "/data/export?from=2023-11-14T00:00:00Z&to=2023-11-15T00:00:00Z", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, parquet.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "2", rec.Header().Get("X-Row-Count"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "gridpower-20231114T000000Z.parquet")

	data := rec.Body.Bytes()
	readings, err := parquet.ReadReadings(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Len(t, readings, 2)
}

func TestRejects(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/data", "text/plain", strings.NewReader(body+"alsobad\n"))
	sessionID := rec.Header().Get(headerSessionID)

	rec = do(t, s, http.MethodGet, "/rejects?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rejects []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rejects))
	require.Len(t, rejects, 1)
	assert.Equal(t, "alsobad", rejects[0]["row"])

	rec = do(t, s, http.MethodGet, "/rejects?session="+sessionID, "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rejects))
	require.Len(t, rejects, 2)
	assert.Equal(t, "badrow", rejects[0]["row"])

	rec = do(t, s, http.MethodGet, "/rejects?limit=many", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsHealthMetrics(t *testing.T) {
	s, svc := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/data", "text/plain", strings.NewReader(body))

	rec := do(t, s, http.MethodGet, "/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Contains(t, stats, "ingestion")
	assert.Contains(t, stats, "quarantine")

	rec = do(t, s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gridpower_rows_accepted_total 2")

	rec = do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, svc.Stop())
	rec = do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMiddleware(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "req-42")
	req.Header.Set("Origin", "http://example.com")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(headerRequestID))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, s, http.MethodDelete, "/data", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, s, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecovery(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.router.HandleFunc("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := do(t, s, http.MethodGet, "/panic", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServeShutdown(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) { c.Server.DrainTimeout = time.Second })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String()
	require.NoError(t, testutil.Eventually(2*time.Second, 10*time.Millisecond, func() bool {
		resp, err := http.Get(url + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}))

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
