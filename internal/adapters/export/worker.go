package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"territorycore/internal/blob"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrQueueFull is returned when the worker cannot accept more requests.
var ErrQueueFull = errors.New("export queue full")

// Artifact captures a stored export.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Rows        int       `json:"rows"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its artifacts.
type Record struct {
	ID          string     `json:"id"`
	Report      Report     `json:"report"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (r Record) copy() Record {
	out := r
	out.Formats = append([]Format(nil), r.Formats...)
	out.Artifacts = append([]Artifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Done reports whether the export reached a terminal status.
func (r Record) Done() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}

// Input is an enqueue request.
type Input struct {
	Report      Report
	Formats     []Format
	RequestedBy string
}

// Options configures a Worker.
type Options struct {
	Prefix    string
	QueueSize int
	URLExpiry time.Duration
	Logger    *zap.Logger
	Now       func() time.Time
}

// Worker renders and stores exports asynchronously.
type Worker struct {
	src    Source
	store  blob.Store
	opts   Options
	logger *zap.Logger

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*Record
	done  map[string]chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs an export worker. A nil store renders artifacts
// without persisting them.
func NewWorker(src Source, store blob.Store, opts Options) *Worker {
	if opts.Prefix == "" {
		opts.Prefix = "exports"
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 8
	}
	if opts.URLExpiry <= 0 {
		opts.URLExpiry = blob.DefaultURLExpiry
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		src:    src,
		store:  store,
		opts:   opts,
		logger: logger,
		queue:  make(chan string, opts.QueueSize),
		jobs:   make(map[string]*Record),
		done:   make(map[string]chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
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

// Enqueue validates and schedules an export, returning the queued record.
func (w *Worker) Enqueue(_ context.Context, input Input) (Record, error) {
	if _, err := ParseReport(string(input.Report)); err != nil {
		return Record{}, err
	}
	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, f := range formats {
		if _, dup := seen[f]; dup {
			continue
		}
		if _, err := ParseFormat(string(f)); err != nil {
			return Record{}, err
		}
		uniq = append(uniq, f)
		seen[f] = struct{}{}
	}

	now := w.opts.Now()
	record := Record{
		ID:          uuid.NewString(),
		Report:      input.Report,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	select {
	case w.queue <- record.ID:
	default:
		w.mu.Unlock()
		return Record{}, ErrQueueFull
	}
	w.jobs[record.ID] = &record
	w.done[record.ID] = make(chan struct{})
	queued := record.copy()
	w.mu.Unlock()

	w.logger.Info("export queued", zap.String("id", record.ID), zap.String("report", string(record.Report)))
	return queued, nil
}

// Get returns a snapshot of an export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

// Wait blocks until the export finishes or ctx ends.
func (w *Worker) Wait(ctx context.Context, id string) (Record, error) {
	w.mu.RLock()
	done, ok := w.done[id]
	w.mu.RUnlock()
	if !ok {
		return Record{}, fmt.Errorf("export %s not found", id)
	}
	select {
	case <-done:
		record, _ := w.Get(id)
		return record, nil
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
}

func (w *Worker) process(id string) {
	record, ok := w.Get(id)
	if !ok {
		return
	}
	w.setRunning(id)

	artifacts := make([]Artifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		rendered, err := Render(w.src, record.Report, format)
		if err != nil {
			w.finish(id, nil, err)
			return
		}
		artifact, err := w.persist(id, rendered)
		if err != nil {
			w.finish(id, nil, err)
			return
		}
		artifacts = append(artifacts, artifact)
	}
	w.finish(id, artifacts, nil)
}

func (w *Worker) persist(id string, r Rendered) (Artifact, error) {
	key := path.Join(w.opts.Prefix, string(r.Report), id+"."+string(r.Format))
	artifact := Artifact{
		Key:         key,
		Format:      r.Format,
		ContentType: r.ContentType,
		SizeBytes:   int64(len(r.Payload)),
		Rows:        r.Rows,
		CreatedAt:   w.opts.Now(),
	}
	if w.store == nil {
		return artifact, nil
	}
	info, err := w.store.Put(w.ctx, key, bytes.NewReader(r.Payload), blob.PutOptions{
		ContentType: r.ContentType,
		Metadata: map[string]string{
			"export_id": id,
			"report":    string(r.Report),
		},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("store artifact: %w", err)
	}
	if info.Size > 0 {
		artifact.SizeBytes = info.Size
	}
	url, err := w.store.PresignURL(w.ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: w.opts.URLExpiry})
	switch {
	case err == nil:
		artifact.URL = url
	case !errors.Is(err, blob.ErrUnsupported):
		w.logger.Warn("presign export failed", zap.String("key", key), zap.Error(err))
	}
	return artifact, nil
}

func (w *Worker) setRunning(id string) {
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusRunning
		record.UpdatedAt = w.opts.Now()
	}
	w.mu.Unlock()
}

func (w *Worker) finish(id string, artifacts []Artifact, err error) {
	now := w.opts.Now()
	w.mu.Lock()
	record, ok := w.jobs[id]
	if ok {
		record.UpdatedAt = now
		record.CompletedAt = &now
		if err != nil {
			record.Status = StatusFailed
			record.Error = err.Error()
		} else {
			record.Status = StatusSucceeded
			record.Artifacts = artifacts
		}
	}
	if done, exists := w.done[id]; exists {
		close(done)
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("export failed", zap.String("id", id), zap.Error(err))
		return
	}
	w.logger.Info("export completed", zap.String("id", id), zap.Int("artifacts", len(artifacts)))
}
