// Package auditlog persists payment and error records off the request path.
package auditlog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/core/store"
	"github.com/pricewise/pricewise/internal/metrics"
)

// Levels and categories recognized by the sink.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"

	CategoryPayment = "payment"
	CategoryWebhook = "webhook"
	CategorySystem  = "system"
)

// DefaultCapacity is the queue size used when none is configured.
const DefaultCapacity = 256

const writeTimeout = 5 * time.Second

// ErrClosed is returned by Start on a closed sink.
var ErrClosed = errors.New("audit sink is closed")

// Record is one audit entry.
type Record struct {
	Level    string
	Category string
	Message  string
	UserID   string
	Metadata map[string]any
	At       time.Time
}

// Persisted reports whether the record is kept: error-level records and
// anything in the payment category.
func (r Record) Persisted() bool {
	return strings.EqualFold(r.Level, LevelError) || strings.EqualFold(r.Category, CategoryPayment)
}

// Writer stores audit records.
type Writer interface {
	InsertSystemLog(ctx context.Context, entry store.SystemLog) error
}

// Sink is a bounded queue drained by one worker goroutine. Log never blocks.
type Sink struct {
	writer Writer
	logger *logging.Logger
	queue  chan Record
	done   chan struct{}

	mu      sync.RWMutex
	started bool
	closed  bool

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger reports write failures through logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// NewSink creates a sink with the given queue capacity.
func NewSink(writer Writer, capacity int, opts ...Option) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Sink{
		writer: writer,
		queue:  make(chan Record, capacity),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker. Writes outlive cancellation of ctx so queued
// records are still drained by Close.
func (s *Sink) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}
	s.started = true

	go s.run(context.WithoutCancel(ctx))
	return nil
}

// Log enqueues a record. It returns false when the record was dropped
// because the queue is full or the sink is closed. Records that are not
// persisted are accepted and discarded.
func (s *Sink) Log(record Record) bool {
	if s == nil {
		return false
	}
	if !record.Persisted() {
		return true
	}
	if record.At.IsZero() {
		record.At = time.Now().UTC()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop()
		return false
	}

	select {
	case s.queue <- record:
		return true
	default:
		s.drop()
		return false
	}
}

// Close stops accepting records and waits for the queue to drain.
func (s *Sink) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	close(s.queue)
	s.mu.Unlock()

	if !started {
		s.drain(ctx)
		close(s.done)
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Written returns the number of records stored.
func (s *Sink) Written() int64 { return s.written.Load() }

// Dropped returns the number of records rejected by Log.
func (s *Sink) Dropped() int64 { return s.dropped.Load() }

// Failed returns the number of records the writer could not store.
func (s *Sink) Failed() int64 { return s.failed.Load() }

func (s *Sink) run(ctx context.Context) {
	defer close(s.done)
	s.drain(ctx)
}

func (s *Sink) drain(ctx context.Context) {
	for record := range s.queue {
		s.write(ctx, record)
	}
}

func (s *Sink) write(ctx context.Context, record Record) {
	if s.writer == nil {
		s.fail(record, errors.New("no audit writer configured"))
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err := s.writer.InsertSystemLog(writeCtx, store.SystemLog{
		Level:     strings.ToLower(record.Level),
		Category:  strings.ToLower(record.Category),
		Message:   record.Message,
		UserID:    record.UserID,
		Metadata:  record.Metadata,
		CreatedAt: record.At,
	})
	if err != nil {
		s.fail(record, err)
		return
	}
	s.written.Add(1)
	metrics.RecordAuditRecord("written")
}

func (s *Sink) drop() {
	s.dropped.Add(1)
	metrics.RecordAuditRecord("dropped")
}

func (s *Sink) fail(record Record, err error) {
	s.failed.Add(1)
	metrics.RecordAuditRecord("failed")
	if s.logger != nil {
		s.logger.Warn("Audit record not stored",
			zap.String("category", record.Category),
			zap.String("message", record.Message),
			zap.Error(err))
	}
}
