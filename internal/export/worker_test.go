package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chebi2gene/internal/blob"
	"chebi2gene/internal/blob/blobtest"
	"chebi2gene/internal/config"
	"chebi2gene/internal/core"
	"chebi2gene/internal/persistence"
)

type stubReports struct {
	mu    sync.Mutex
	calls []string
	err   error
	block chan struct{}
}

func (s *stubReports) Report(ctx context.Context, chebiID string) (*core.Report, error) {
	s.mu.Lock()
	s.calls = append(s.calls, chebiID)
	s.mu.Unlock()
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	gene := core.GeneRecord{Name: "Solyc01g005000", Scaffold: "SL2.40ch01", Start: "1", Stop: "9", Description: "kinase"}
	return &core.Report{
		ChebiID:   chebiID,
		Status:    core.StatusOK,
		Proteins:  core.ReactionProteins{"10124": {"Q38933"}},
		Pathways:  map[string][]string{"Q38933": {"Carotenoid biosynthesis"}},
		Genes:     map[string][]core.GeneRecord{"Q38933": {gene}},
		Organisms: map[string][]string{"Q38933": {"Arabidopsis thaliana"}},
		Reactions: []core.ReactionEntry{{ID: "10124", Proteins: []core.ProteinEntry{{
			ID: "Q38933", Pathways: []string{"Carotenoid biosynthesis"}, Genes: []core.GeneRecord{gene},
			Organisms: []string{"Arabidopsis thaliana"},
		}}}},
		Warnings: []string{"reaction 1: malformed identifier"},
	}, nil
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) ObserveExport(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[status]++
}

func (m *countingMetrics) get(status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[status]
}

var testLinks = config.LinkConfig{Chebi: "http://chebi.test/%s", Reaction: "http://rhea.test/%s", Protein: "http://uniprot.test/%s"}

func newTestWorker(t *testing.T, reports ReportBuilder, blobs blob.Store, ledger persistence.Store, metrics MetricsRecorder) *Worker {
	t.Helper()
	w, err := NewWorker(reports, blobs, ledger, Options{QueueSize: 4, Links: testLinks, Metrics: metrics})
	require.NoError(t, err)
	return w
}

func memoryLedger(t *testing.T) persistence.Store {
	t.Helper()
	ledger, err := persistence.Open(context.Background(), config.LedgerConfig{Driver: "memory"})
	require.NoError(t, err)
	return ledger
}

func waitForStatus(t *testing.T, w *Worker, id string, status Status) Record {
	t.Helper()
	var record Record
	require.Eventually(t, func() bool {
		var err error
		record, err = w.Get(context.Background(), id)
		return err == nil && record.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return record
}

func readArtifact(t *testing.T, w *Worker, id, name string) string {
	t.Helper()
	_, body, err := w.Open(context.Background(), id, name)
	require.NoError(t, err)
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return string(data)
}

func TestWorkerExportsAllFormats(t *testing.T) {
	ctx := context.Background()
	metrics := &countingMetrics{}
	w := newTestWorker(t, &stubReports{}, blob.NewMemory(), memoryLedger(t), metrics)
	w.Start()
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	queued, err := w.Enqueue(ctx, Input{
		ChebiID:     "CHEBI:17579",
		Formats:     []Format{FormatCSV, FormatJSON, FormatHTML, FormatCSV},
		RequestedBy: "curator",
		Reason:      "tomato panel",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, queued.Status)
	assert.Equal(t, "17579", queued.ChebiID)
	assert.Equal(t, []Format{FormatCSV, FormatJSON, FormatHTML}, queued.Formats)
	assert.Len(t, queued.ID, 36)

	done := waitForStatus(t, w, queued.ID, StatusSucceeded)
	require.Len(t, done.Artifacts, 3)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, []string{"reaction 1: malformed identifier"}, done.Warnings)

	csvArtifact, ok := done.Artifact("report.csv")
	require.True(t, ok)
	assert.Equal(t, "exports/"+queued.ID+"/report.csv", csvArtifact.Key)
	assert.Equal(t, 2, csvArtifact.Rows)

	csvBody := readArtifact(t, w, queued.ID, "report.csv")
	lines := strings.Split(strings.TrimSpace(csvBody), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Chebi ID,Chebi URL"))
	assert.Contains(t, lines[1], "Pathway")
	assert.Contains(t, lines[2], "Solyc01g005000")

	var report core.Report
	require.NoError(t, json.Unmarshal([]byte(readArtifact(t, w, queued.ID, "report.json")), &report))
	assert.Equal(t, "17579", report.ChebiID)

	assert.Contains(t, readArtifact(t, w, queued.ID, "report.html"), `href="http://uniprot.test/Q38933"`)
	assert.Equal(t, 1, metrics.get("succeeded"))
}

func TestWorkerDefaultsFormats(t *testing.T) {
	w := newTestWorker(t, &stubReports{}, blob.NewMemory(), memoryLedger(t), nil)
	record, err := w.Enqueue(context.Background(), Input{ChebiID: "17579"})
	require.NoError(t, err)
	assert.Equal(t, []Format{FormatCSV, FormatJSON}, record.Formats)
}

func TestWorkerRejectsInvalidInput(t *testing.T) {
	w := newTestWorker(t, &stubReports{}, blob.NewMemory(), memoryLedger(t), nil)
	ctx := context.Background()

	_, err := w.Enqueue(ctx, Input{ChebiID: " "})
	assert.ErrorIs(t, err, core.ErrEmptyInput)
	_, err = w.Enqueue(ctx, Input{ChebiID: "caffeine"})
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = w.Enqueue(ctx, Input{ChebiID: "1", Formats: []Format{"parquet"}})
	assert.ErrorIs(t, err, ErrInvalidFormat)

	records, err := w.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records, "rejected input leaves no ledger entry")
}

func TestWorkerRecordsFailures(t *testing.T) {
	metrics := &countingMetrics{}
	reports := &stubReports{err: errors.New("sparql: transport: connection refused")}
	w := newTestWorker(t, reports, blob.NewMemory(), memoryLedger(t), metrics)
	w.Start()
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	record, err := w.Enqueue(context.Background(), Input{ChebiID: "17579"})
	require.NoError(t, err)
	failed := waitForStatus(t, w, record.ID, StatusFailed)
	assert.Contains(t, failed.Error, "connection refused")
	assert.Empty(t, failed.Artifacts)
	assert.Equal(t, 1, metrics.get("failed"))

	_, _, err = w.Open(context.Background(), record.ID, "report.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWorkerFailsWhenArtifactKeyTaken(t *testing.T) {
	blobs := blob.NewMemory()
	w := newTestWorker(t, &stubReports{}, blobs, memoryLedger(t), nil)

	record, err := w.Enqueue(context.Background(), Input{ChebiID: "17579", Formats: []Format{FormatCSV}})
	require.NoError(t, err)
	_, err = blobs.Put(context.Background(), "exports/"+record.ID+"/report.csv", strings.NewReader("x"), blob.PutOptions{})
	require.NoError(t, err)

	w.Start()
	t.Cleanup(func() { _ = w.Stop(context.Background()) })
	failed := waitForStatus(t, w, record.ID, StatusFailed)
	assert.Contains(t, failed.Error, "store csv artifact")
}

// failingPut rejects uploads whose key ends with suffix.
type failingPut struct {
	blob.Store
	suffix string
}

func (f failingPut) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	if strings.HasSuffix(key, f.suffix) {
		return blob.Info{}, errors.New("disk full")
	}
	return f.Store.Put(ctx, key, r, opts)
}

func TestWorkerDiscardsArtifactsOfFailedJob(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemory()
	w := newTestWorker(t, &stubReports{}, failingPut{Store: blobs, suffix: "report.html"}, memoryLedger(t), nil)
	w.Start()
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	record, err := w.Enqueue(ctx, Input{ChebiID: "17579", Formats: []Format{FormatCSV, FormatJSON, FormatHTML}})
	require.NoError(t, err)
	failed := waitForStatus(t, w, record.ID, StatusFailed)
	assert.Contains(t, failed.Error, "store html artifact")
	assert.Empty(t, failed.Artifacts)

	left, err := blobs.List(ctx, "exports/"+record.ID+"/")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestWorkerQueueFull(t *testing.T) {
	ctx := context.Background()
	w, err := NewWorker(&stubReports{}, blob.NewMemory(), memoryLedger(t), Options{QueueSize: 1, Links: testLinks})
	require.NoError(t, err)

	_, err = w.Enqueue(ctx, Input{ChebiID: "1"})
	require.NoError(t, err)
	_, err = w.Enqueue(ctx, Input{ChebiID: "2"})
	assert.ErrorIs(t, err, ErrQueueFull)

	records, err := w.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	statuses := map[string]Status{}
	for _, r := range records {
		statuses[r.ChebiID] = r.Status
	}
	assert.Equal(t, StatusQueued, statuses["1"])
	assert.Equal(t, StatusFailed, statuses["2"])
}

func TestWorkerStopRejectsEnqueue(t *testing.T) {
	reports := &stubReports{block: make(chan struct{})}
	w := newTestWorker(t, reports, blob.NewMemory(), memoryLedger(t), nil)
	w.Start()

	_, err := w.Enqueue(context.Background(), Input{ChebiID: "1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		reports.mu.Lock()
		defer reports.mu.Unlock()
		return len(reports.calls) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop(context.Background()))
	_, err = w.Enqueue(context.Background(), Input{ChebiID: "2"})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestWorkerSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	ledger := memoryLedger(t)
	blobs := blob.NewMemory()

	first := newTestWorker(t, &stubReports{}, blobs, ledger, nil)
	first.Start()
	done, err := first.Enqueue(ctx, Input{ChebiID: "17579", Formats: []Format{FormatJSON}})
	require.NoError(t, err)
	waitForStatus(t, first, done.ID, StatusSucceeded)
	require.NoError(t, first.Stop(ctx))

	// A job a crashed process left running, one artifact in.
	orphan := Record{ID: "orphan", ChebiID: "2", Status: StatusRunning, CreatedAt: time.Now().UTC()}
	require.NoError(t, first.persist(ctx, orphan))
	_, err = blobs.Put(ctx, "exports/orphan/report.csv", strings.NewReader("a\n"), blob.PutOptions{})
	require.NoError(t, err)

	second := newTestWorker(t, &stubReports{}, blobs, ledger, nil)
	n, err := second.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reloaded, err := second.Get(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, reloaded.Status)
	assert.Equal(t, "interrupted by restart", reloaded.Error)
	left, err := blobs.List(ctx, "exports/orphan/")
	require.NoError(t, err)
	assert.Empty(t, left)

	succeeded, err := second.Get(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, succeeded.Status)
	assert.Contains(t, readArtifact(t, second, done.ID, "report.json"), `"chebi_id": "17579"`)

	_, err = second.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDownloadURL(t *testing.T) {
	ctx := context.Background()

	plain := newTestWorker(t, &stubReports{}, blob.NewMemory(), memoryLedger(t), nil)
	_, ok, err := plain.DownloadURL(ctx, "any", "report.csv", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	store, bucket := blobtest.NewS3("exports")
	w := newTestWorker(t, &stubReports{}, store, memoryLedger(t), nil)
	w.Start()
	t.Cleanup(func() { _ = w.Stop(context.Background()) })
	record, err := w.Enqueue(ctx, Input{ChebiID: "17579", Formats: []Format{FormatCSV}})
	require.NoError(t, err)
	waitForStatus(t, w, record.ID, StatusSucceeded)

	url, ok, err := w.DownloadURL(ctx, record.ID, "report.csv", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, url, "/exports/exports/"+record.ID+"/report.csv")
	assert.Contains(t, url, "X-Amz-Expires=60")
	assert.NotZero(t, bucket.Calls())

	_, _, err = w.DownloadURL(ctx, record.ID, "report.pdf", time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewWorkerRequiresCollaborators(t *testing.T) {
	_, err := NewWorker(nil, blob.NewMemory(), memoryLedger(t), Options{})
	assert.Error(t, err)
}
