package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chebi2gene/internal/config"
	"chebi2gene/internal/observability"
)

const searchBody = `{"head":{"vars":["id","name","syn"]},"results":{"bindings":[
 {"id":{"type":"uri","value":"http://purl.obolibrary.org/obo/CHEBI_27732"},"name":{"type":"literal","value":"caffeine"},"syn":{"type":"literal","value":"guaranine"}},
 {"id":{"type":"uri","value":"http://purl.obolibrary.org/obo/CHEBI_31332"},"name":{"type":"literal","value":"caffeine monohydrate"}}
]}}`

const emptyBody = `{"head":{"vars":[]},"results":{"bindings":[]}}`

// fakeSPARQL answers every query with body and points the CLI at it.
func fakeSPARQL(t *testing.T, body string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/sparql-results+json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	t.Setenv(config.EnvPrefix+"SPARQL_ENDPOINT", srv.URL)
	t.Setenv(config.EnvPrefix+"SPARQL_SEARCH_ENDPOINT", srv.URL)
	t.Setenv(config.EnvPrefix+"LOG_LEVEL", "error")
	t.Setenv(config.EnvPrefix+"CONFIG", "")
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := cli(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestSearchCommand(t *testing.T) {
	fakeSPARQL(t, searchBody)

	code, out, errOut := run("search", "caffeine")
	require.Equal(t, 0, code, errOut)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "CHEBI"))
	assert.Contains(t, lines[1], "27732")
	assert.Contains(t, lines[1], "guaranine")
	assert.Contains(t, lines[2], "31332")

	code, out, _ = run("search", "--extended", "--json", "caffeine")
	require.Equal(t, 0, code)
	assert.Contains(t, out, `"27732": {`)
}

func TestReportCommand(t *testing.T) {
	fakeSPARQL(t, emptyBody)

	code, out, errOut := run("report", "CHEBI:17579")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "Chebi ID,Chebi URL,Rhea ID,Rhea URL,UniProt ID,Organisms,Type,Name,Scaffold,Start,Stop,Description\n", out)

	code, out, _ = run("report", "-f", "json", "17579")
	require.Equal(t, 0, code)
	assert.Contains(t, out, `"status": "no_proteins"`)

	code, _, errOut = run("report", "caffeine")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not a numeric ChEBI id")

	code, _, errOut = run("report", "-f", "xml", "1")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown format")
}

func TestConfigErrorsExitNonZero(t *testing.T) {
	fakeSPARQL(t, emptyBody)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sparql: [not a map"), 0o600))

	code, _, errOut := run("--config", path, "search", "x")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "parse config")

	code, _, _ = run("nope")
	assert.Equal(t, 1, code)
}

func TestServeLifecycle(t *testing.T) {
	sparqlSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, emptyBody)
	}))
	t.Cleanup(sparqlSrv.Close)

	cfg := config.Default()
	cfg.SPARQL.Endpoint = sparqlSrv.URL
	cfg.SPARQL.SearchEndpoint = sparqlSrv.URL
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Exports.Blob.Driver = "memory"
	cfg.Exports.Ledger.Driver = "sqlite"
	cfg.Exports.Ledger.SQLitePath = filepath.Join(t.TempDir(), "ledger.db")
	a := &app{cfg: cfg, log: zap.NewNop(), metrics: observability.New()}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ln) }()

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(base+"/api/v1/exports", "application/json", strings.NewReader(`{"chebi_id":"17579"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "chebi2gene_http_requests_total")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestBuildServerRejectsBadBlobDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Exports.Blob.Driver = "ftp"
	a := &app{cfg: cfg, log: zap.NewNop(), metrics: observability.New()}
	_, err := a.buildServer(context.Background())
	assert.ErrorContains(t, err, "unknown blob driver")
}
