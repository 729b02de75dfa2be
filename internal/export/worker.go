// Package export archives compound reports. A Worker builds the report
// asynchronously, renders each requested format, stores the artifacts in a
// blob store and keeps the job record in a ledger so it survives restarts.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chebi2gene/internal/blob"
	"chebi2gene/internal/config"
	"chebi2gene/internal/core"
	"chebi2gene/internal/identifier"
	"chebi2gene/internal/persistence"
	"chebi2gene/internal/render"
)

// Status describes the lifecycle stage of an export job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition will happen.
func (s Status) Terminal() bool { return s == StatusSucceeded || s == StatusFailed }

// Format is an artifact encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

var defaultFormats = []Format{FormatCSV, FormatJSON}

var (
	ErrNotFound      = errors.New("export not found")
	ErrQueueFull     = errors.New("export queue full")
	ErrInvalidFormat = errors.New("unsupported export format")
	ErrStopped       = errors.New("export worker stopped")
	ErrInvalidID     = errors.New("export requires a numeric ChEBI id")
)

// Artifact is one stored rendering of a report.
type Artifact struct {
	Name        string    `json:"name"`
	Format      Format    `json:"format"`
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ETag        string    `json:"etag,omitempty"`
	Rows        int       `json:"rows"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its artifacts.
type Record struct {
	ID          string     `json:"id"`
	ChebiID     string     `json:"chebi_id"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	Warnings    []string   `json:"warnings,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Artifact returns the artifact with the given name.
func (r Record) Artifact(name string) (Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}

func (r Record) copy() Record {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	dup.Warnings = append([]string(nil), r.Warnings...)
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		dup.CompletedAt = &at
	}
	return dup
}

// Input is an enqueue request.
type Input struct {
	ChebiID     string   `json:"chebi_id"`
	Formats     []Format `json:"formats"`
	RequestedBy string   `json:"requested_by"`
	Reason      string   `json:"reason"`
}

// ReportBuilder produces the report an export archives; *core.Service
// satisfies it.
type ReportBuilder interface {
	Report(ctx context.Context, chebiID string) (*core.Report, error)
}

// MetricsRecorder counts jobs by terminal status.
type MetricsRecorder interface {
	ObserveExport(status string)
}

// Options configures a Worker.
type Options struct {
	QueueSize int
	Links     config.LinkConfig
	Logger    *zap.Logger
	Metrics   MetricsRecorder
}

// Worker executes exports on a single background goroutine.
type Worker struct {
	reports  ReportBuilder
	blobs    blob.Store
	ledger   persistence.Store
	renderer *render.Renderer
	links    config.LinkConfig
	log      *zap.Logger
	metrics  MetricsRecorder

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs an export worker. Call Start to begin processing.
func NewWorker(reports ReportBuilder, blobs blob.Store, ledger persistence.Store, opts Options) (*Worker, error) {
	if reports == nil || blobs == nil || ledger == nil {
		return nil, errors.New("export worker requires a report builder, blob store and ledger")
	}
	renderer, err := render.New(opts.Links)
	if err != nil {
		return nil, err
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		reports:  reports,
		blobs:    blobs,
		ledger:   ledger,
		renderer: renderer,
		links:    opts.Links,
		log:      opts.Logger.Named("export"),
		metrics:  opts.Metrics,
		queue:    make(chan string, opts.QueueSize),
		jobs:     make(map[string]*Record),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the in-flight job.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// Recover fails jobs a previous process left queued or running, since their
// queue entries died with it, and removes any artifacts they had stored. It
// returns the number of jobs failed.
func (w *Worker) Recover(ctx context.Context) (int, error) {
	records, err := w.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, record := range records {
		if record.Status.Terminal() {
			continue
		}
		now := time.Now().UTC()
		record.Status = StatusFailed
		record.Error = "interrupted by restart"
		record.UpdatedAt = now
		record.CompletedAt = &now
		if err := w.persist(ctx, record); err != nil {
			return n, err
		}
		if err := w.purge(ctx, record.ID); err != nil {
			w.log.Warn("purge interrupted export", zap.String("export_id", record.ID), zap.Error(err))
		}
		n++
	}
	if n > 0 {
		w.log.Warn("failed interrupted exports", zap.Int("count", n))
	}
	return n, nil
}

// Enqueue validates input, records a queued job and schedules it.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	if w.ctx.Err() != nil {
		return Record{}, ErrStopped
	}
	chebiID, numeric := identifier.NormalizeCompound(input.ChebiID)
	if chebiID == "" {
		return Record{}, core.ErrEmptyInput
	}
	if !numeric {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidID, input.ChebiID)
	}
	formats, err := uniqueFormats(input.Formats)
	if err != nil {
		return Record{}, err
	}

	now := time.Now().UTC()
	record := Record{
		ID:          uuid.NewString(),
		ChebiID:     chebiID,
		Formats:     formats,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := w.persist(ctx, record); err != nil {
		return Record{}, err
	}

	w.mu.Lock()
	w.jobs[record.ID] = &record
	snapshot := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- record.ID:
	default:
		w.fail(record.ID, ErrQueueFull.Error())
		return Record{}, ErrQueueFull
	}
	w.log.Info("export queued",
		zap.String("export_id", record.ID),
		zap.String("chebi_id", chebiID),
		zap.String("requested_by", input.RequestedBy))
	return snapshot, nil
}

func uniqueFormats(in []Format) ([]Format, error) {
	if len(in) == 0 {
		return append([]Format(nil), defaultFormats...), nil
	}
	out := make([]Format, 0, len(in))
	seen := make(map[Format]struct{}, len(in))
	for _, f := range in {
		switch f {
		case FormatCSV, FormatJSON, FormatHTML:
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, f)
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

// Get returns a snapshot of the job, falling back to the ledger for jobs
// from earlier runs.
func (w *Worker) Get(ctx context.Context, id string) (Record, error) {
	w.mu.RLock()
	record, ok := w.jobs[id]
	if ok {
		snapshot := record.copy()
		w.mu.RUnlock()
		return snapshot, nil
	}
	w.mu.RUnlock()

	doc, err := w.ledger.Get(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, err
	}
	return decode(doc)
}

// List returns every ledger record, newest first.
func (w *Worker) List(ctx context.Context) ([]Record, error) {
	docs, err := w.ledger.List(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		record, err := decode(doc)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
	return records, nil
}

// Open streams the named artifact of a succeeded export.
func (w *Worker) Open(ctx context.Context, id, name string) (Artifact, io.ReadCloser, error) {
	artifact, err := w.artifact(ctx, id, name)
	if err != nil {
		return Artifact{}, nil, err
	}
	_, body, err := w.blobs.Get(ctx, artifact.Key)
	if err != nil {
		return Artifact{}, nil, err
	}
	return artifact, body, nil
}

// DownloadURL returns a presigned URL for the artifact when the blob store
// supports it. ok is false for stores that must be streamed through Open.
func (w *Worker) DownloadURL(ctx context.Context, id, name string, expiry time.Duration) (url string, ok bool, err error) {
	presigner, supported := w.blobs.(blob.Presigner)
	if !supported {
		return "", false, nil
	}
	artifact, err := w.artifact(ctx, id, name)
	if err != nil {
		return "", false, err
	}
	url, err = presigner.PresignGet(ctx, artifact.Key, expiry)
	if err != nil {
		return "", false, err
	}
	return url, true, nil
}

func (w *Worker) artifact(ctx context.Context, id, name string) (Artifact, error) {
	record, err := w.Get(ctx, id)
	if err != nil {
		return Artifact{}, err
	}
	artifact, ok := record.Artifact(name)
	if !ok {
		return Artifact{}, fmt.Errorf("%w: artifact %s of %s", ErrNotFound, name, id)
	}
	return artifact, nil
}

func (w *Worker) process(id string) {
	record, ok := w.snapshot(id)
	if !ok {
		return
	}
	w.updateStatus(id, StatusRunning)

	report, err := w.reports.Report(w.ctx, record.ChebiID)
	if err != nil {
		w.fail(id, fmt.Sprintf("build report: %v", err))
		return
	}

	artifacts := make([]Artifact, 0, len(record.Formats))
	abort := func(msg string) {
		w.discard(id, artifacts)
		w.fail(id, msg)
	}
	for _, format := range record.Formats {
		payload, rows, err := w.materialize(format, report)
		if err != nil {
			abort(err.Error())
			return
		}
		artifact, err := w.store(id, record.ChebiID, format, payload, rows)
		if err != nil {
			abort(fmt.Sprintf("store %s artifact: %v", format, err))
			return
		}
		artifacts = append(artifacts, artifact)
	}
	w.complete(id, artifacts, report.Warnings)
}

// discard deletes the artifacts a failed job stored before failing. The
// record never references them, so they would be unreachable.
func (w *Worker) discard(id string, artifacts []Artifact) {
	ctx := context.WithoutCancel(w.ctx)
	for _, artifact := range artifacts {
		if _, err := w.blobs.Delete(ctx, artifact.Key); err != nil {
			w.log.Warn("discard artifact",
				zap.String("export_id", id),
				zap.String("key", artifact.Key),
				zap.Error(err))
		}
	}
}

// purge deletes everything stored under the job's key prefix.
func (w *Worker) purge(ctx context.Context, id string) error {
	infos, err := w.blobs.List(ctx, artifactPrefix(id))
	if err != nil {
		return err
	}
	var errs []error
	for _, info := range infos {
		if _, err := w.blobs.Delete(ctx, info.Key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func artifactPrefix(id string) string {
	return "exports/" + id + "/"
}

func (w *Worker) store(id, chebiID string, format Format, payload []byte, rows int) (Artifact, error) {
	name := ArtifactName(format)
	key := artifactPrefix(id) + name
	contentType := ContentType(format)
	info, err := w.blobs.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"export-id": id,
			"chebi-id":  chebiID,
			"rows":      strconv.Itoa(rows),
		},
	})
	if err != nil {
		return Artifact{}, err
	}
	createdAt := info.LastModified
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return Artifact{
		Name:        name,
		Format:      format,
		Key:         key,
		ContentType: contentType,
		SizeBytes:   int64(len(payload)),
		ETag:        info.ETag,
		Rows:        rows,
		CreatedAt:   createdAt,
	}, nil
}

// materialize renders report in format and returns the payload with its
// data row count.
func (w *Worker) materialize(format Format, report *core.Report) ([]byte, int, error) {
	var buf bytes.Buffer
	rows := core.ReportRows(report, w.links)
	switch format {
	case FormatCSV:
		if err := render.CSV(&buf, rows); err != nil {
			return nil, 0, err
		}
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return nil, 0, fmt.Errorf("marshal json: %w", err)
		}
	case FormatHTML:
		if err := w.renderer.Report(&buf, report); err != nil {
			return nil, 0, err
		}
	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
	return buf.Bytes(), len(rows) - 1, nil
}

// ArtifactName is the file name an export stores format under.
func ArtifactName(format Format) string {
	return "report." + string(format)
}

// ContentType maps a format to its media type.
func ContentType(format Format) string {
	switch format {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func (w *Worker) snapshot(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

// transition applies fn to the job under lock and persists the result.
func (w *Worker) transition(id string, fn func(*Record, time.Time)) (Record, bool) {
	now := time.Now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.Unlock()
		return Record{}, false
	}
	fn(record, now)
	record.UpdatedAt = now
	snapshot := record.copy()
	w.mu.Unlock()

	// The ledger write must outlive a Stop that races the final transition.
	if err := w.persist(context.WithoutCancel(w.ctx), snapshot); err != nil {
		w.log.Error("persist export record", zap.String("export_id", id), zap.Error(err))
	}
	return snapshot, true
}

func (w *Worker) updateStatus(id string, status Status) {
	w.transition(id, func(r *Record, _ time.Time) {
		r.Status = status
		r.Error = ""
	})
}

func (w *Worker) complete(id string, artifacts []Artifact, warnings []string) {
	record, ok := w.transition(id, func(r *Record, now time.Time) {
		r.Status = StatusSucceeded
		r.Error = ""
		r.Artifacts = artifacts
		r.Warnings = append([]string(nil), warnings...)
		r.CompletedAt = &now
	})
	if !ok {
		return
	}
	w.observe(StatusSucceeded)
	w.log.Info("export succeeded",
		zap.String("export_id", id),
		zap.String("chebi_id", record.ChebiID),
		zap.Int("artifacts", len(artifacts)))
}

func (w *Worker) fail(id, reason string) {
	if _, ok := w.transition(id, func(r *Record, now time.Time) {
		r.Status = StatusFailed
		r.Error = reason
		r.CompletedAt = &now
	}); !ok {
		return
	}
	w.observe(StatusFailed)
	w.log.Warn("export failed", zap.String("export_id", id), zap.String("error", reason))
}

func (w *Worker) observe(status Status) {
	if w.metrics != nil {
		w.metrics.ObserveExport(string(status))
	}
}

func (w *Worker) persist(ctx context.Context, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode export %s: %w", record.ID, err)
	}
	if err := w.ledger.Upsert(ctx, record.ID, payload); err != nil {
		return fmt.Errorf("persist export %s: %w", record.ID, err)
	}
	return nil
}

func decode(doc persistence.Document) (Record, error) {
	var record Record
	if err := json.Unmarshal(doc.Payload, &record); err != nil {
		return Record{}, fmt.Errorf("decode export %s: %w", doc.ID, err)
	}
	return record, nil
}
