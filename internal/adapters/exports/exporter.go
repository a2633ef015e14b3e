// Package exports renders listing and lead exports in the background and
// stores the artifacts in the blob store.
package exports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inmoelegance/internal/blob"
	"inmoelegance/pkg/domain"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Kind selects the exported collection.
type Kind string

const (
	KindListings Kind = "listings"
	KindLeads    Kind = "leads"
)

// Format selects the artifact encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// KeyPrefix namespaces export artifacts inside the blob store.
const KeyPrefix = "exports/"

// QueueSize bounds the number of pending exports.
const QueueSize = 32

var (
	// ErrQueueFull is returned when the worker cannot accept more requests.
	ErrQueueFull = errors.New("export queue full")
	// ErrInvalidRequest wraps validation failures of an Input.
	ErrInvalidRequest = errors.New("invalid export request")
	// ErrNotFound is returned for unknown export ids or formats.
	ErrNotFound = errors.New("export not found")
)

// Artifact is one stored rendering of an export.
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
	Kind        Kind       `json:"kind"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Input is an enqueue request.
type Input struct {
	Kind        Kind     `json:"kind"`
	Formats     []Format `json:"formats"`
	RequestedBy string   `json:"-"`
}

// Source supplies the exported records; *core.Service satisfies it.
type Source interface {
	ListPropertiesByAdmin(ctx context.Context, adminID string) ([]domain.Property, error)
	ListLeads(ctx context.Context) ([]domain.Lead, error)
}

// Scheduler queues exports and exposes their status.
type Scheduler interface {
	Enqueue(ctx context.Context, input Input) (Record, error)
	Get(id string) (Record, bool)
	Open(ctx context.Context, id string, format Format) (Artifact, io.ReadCloser, error)
}

// Worker executes exports asynchronously on a single goroutine.
type Worker struct {
	source Source
	store  blob.Store
	logger *zap.Logger
	now    func() time.Time

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs an export worker. Call Start or Run to process the
// queue.
func NewWorker(source Source, store blob.Store, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source: source,
		store:  store,
		logger: logger.Named("exports"),
		now:    func() time.Time { return time.Now().UTC() },
		queue:  make(chan string, QueueSize),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the in-flight export.
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

// Run processes exports until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.Start()
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return w.Stop(stopCtx)
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

// Enqueue validates input and schedules an export.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	if input.RequestedBy == "" {
		return Record{}, fmt.Errorf("%w: requester required", ErrInvalidRequest)
	}
	if input.Kind != KindListings && input.Kind != KindLeads {
		return Record{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, input.Kind)
	}
	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatCSV, FormatJSON}
	}
	uniq := make([]Format, 0, len(formats))
	for _, f := range formats {
		if f != FormatCSV && f != FormatJSON {
			return Record{}, fmt.Errorf("%w: unsupported format %q", ErrInvalidRequest, f)
		}
		if !slices.Contains(uniq, f) {
			uniq = append(uniq, f)
		}
	}

	now := w.now()
	record := Record{
		ID:          uuid.NewString(),
		Kind:        input.Kind,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The lock is held across the send so the worker never sees an id
	// before its record and queued audit entry exist.
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case w.queue <- record.ID:
	default:
		return Record{}, ErrQueueFull
	}
	w.jobs[record.ID] = &record
	w.audit(ctx, record, "")
	return record.copy(), nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

// Open streams the stored artifact of a finished export.
func (w *Worker) Open(ctx context.Context, id string, format Format) (Artifact, io.ReadCloser, error) {
	record, ok := w.Get(id)
	if !ok {
		return Artifact{}, nil, ErrNotFound
	}
	for _, a := range record.Artifacts {
		if a.Format != format {
			continue
		}
		_, body, err := w.store.Get(ctx, a.Key)
		if err != nil {
			return Artifact{}, nil, fmt.Errorf("open %s: %w", a.Key, err)
		}
		return a, body, nil
	}
	return Artifact{}, nil, ErrNotFound
}

func (w *Worker) process(id string) {
	w.mu.RLock()
	record, ok := w.jobs[id]
	var snapshot Record
	if ok {
		snapshot = record.copy()
	}
	w.mu.RUnlock()
	if !ok {
		return
	}
	w.update(id, func(r *Record) { r.Status = StatusRunning })

	artifacts := make([]Artifact, 0, len(snapshot.Formats))
	for _, format := range snapshot.Formats {
		payload, rows, contentType, err := w.render(snapshot, format)
		if err != nil {
			w.finish(id, nil, err)
			return
		}
		key := KeyPrefix + id + "." + string(format)
		_, err = w.store.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"kind": string(snapshot.Kind), "requested_by": snapshot.RequestedBy},
		})
		if err != nil {
			w.finish(id, nil, fmt.Errorf("store artifact: %w", err))
			return
		}
		artifact := Artifact{
			Key:         key,
			Format:      format,
			ContentType: contentType,
			SizeBytes:   int64(len(payload)),
			Rows:        rows,
			CreatedAt:   w.now(),
		}
		if w.store.Driver() == blob.DriverS3 {
			if signed, err := w.store.PresignURL(w.ctx, key, blob.SignedURLOptions{}); err == nil {
				artifact.URL = signed
			}
		}
		artifacts = append(artifacts, artifact)
	}
	w.finish(id, artifacts, nil)
}

func (w *Worker) render(record Record, format Format) ([]byte, int, string, error) {
	switch record.Kind {
	case KindListings:
		listings, err := w.source.ListPropertiesByAdmin(w.ctx, record.RequestedBy)
		if err != nil {
			return nil, 0, "", fmt.Errorf("load listings: %w", err)
		}
		payload, contentType, err := encode(format, listings, listingColumns, listingRow)
		return payload, len(listings), contentType, err
	case KindLeads:
		leads, err := w.source.ListLeads(w.ctx)
		if err != nil {
			return nil, 0, "", fmt.Errorf("load leads: %w", err)
		}
		payload, contentType, err := encode(format, leads, leadColumns, leadRow)
		return payload, len(leads), contentType, err
	default:
		return nil, 0, "", fmt.Errorf("unknown kind %q", record.Kind)
	}
}

var listingColumns = []string{"id", "title", "type", "operation", "status", "location", "address", "price", "currency", "bedrooms", "bathrooms", "area", "featured", "rating", "created_at"}

func listingRow(p domain.Property) []string {
	return []string{
		p.ID, p.Title, string(p.Type), string(p.Operation), string(p.Status), p.Location, p.Address,
		strconv.FormatFloat(p.Price, 'f', -1, 64), p.Currency,
		strconv.Itoa(p.Bedrooms), strconv.Itoa(p.Bathrooms),
		strconv.FormatFloat(p.Area, 'f', -1, 64), strconv.FormatBool(p.Featured),
		strconv.FormatFloat(p.Rating, 'f', -1, 64), p.CreatedAt.Format(time.RFC3339),
	}
}

var leadColumns = []string{"id", "created_at", "name", "email", "phone", "message", "property_id"}

func leadRow(l domain.Lead) []string {
	return []string{l.ID, l.CreatedAt.Format(time.RFC3339), l.Name, l.Email, l.Phone, l.Message, l.PropertyID}
}

func encode[T any](format Format, items []T, columns []string, row func(T) []string) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		if items == nil {
			items = []T{}
		}
		payload, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("marshal json: %w", err)
		}
		return payload, "application/json", nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		writer := csv.NewWriter(buf)
		if err := writer.Write(columns); err != nil {
			return nil, "", err
		}
		for _, item := range items {
			if err := writer.Write(row(item)); err != nil {
				return nil, "", err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv; charset=utf-8", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format %s", format)
	}
}

func (w *Worker) update(id string, mutate func(*Record)) {
	w.mu.Lock()
	record, ok := w.jobs[id]
	var snapshot Record
	if ok {
		mutate(record)
		record.UpdatedAt = w.now()
		snapshot = record.copy()
	}
	w.mu.Unlock()
	if ok {
		w.audit(w.ctx, snapshot, "")
	}
}

func (w *Worker) finish(id string, artifacts []Artifact, err error) {
	var message string
	w.mu.Lock()
	record, ok := w.jobs[id]
	var snapshot Record
	if ok {
		now := w.now()
		record.UpdatedAt = now
		record.CompletedAt = &now
		if err != nil {
			record.Status = StatusFailed
			record.Error = err.Error()
			message = record.Error
		} else {
			record.Status = StatusSucceeded
			record.Artifacts = artifacts
		}
		snapshot = record.copy()
	}
	w.mu.Unlock()
	if ok {
		w.audit(w.ctx, snapshot, message)
	}
}

func (w *Worker) audit(_ context.Context, record Record, message string) {
	fields := []zap.Field{
		zap.String("action", "export"),
		zap.String("export_id", record.ID),
		zap.String("kind", string(record.Kind)),
		zap.String("actor_id", record.RequestedBy),
		zap.String("status", string(record.Status)),
	}
	if record.Status == StatusSucceeded {
		fields = append(fields, zap.Int("artifacts", len(record.Artifacts)))
	}
	if message != "" {
		w.logger.Warn("export audit", append(fields, zap.String("error", message))...)
		return
	}
	w.logger.Info("export audit", fields...)
}

func (r Record) copy() Record {
	dup := r
	dup.Formats = slices.Clone(r.Formats)
	dup.Artifacts = slices.Clone(r.Artifacts)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		dup.CompletedAt = &t
	}
	return dup
}
