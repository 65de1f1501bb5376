// Package worker persists click events in the background so that redirects
// never wait on storage or region lookups.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atinyakov/shortlinks/internal/geo"
	"github.com/atinyakov/shortlinks/internal/metrics"
	"github.com/atinyakov/shortlinks/internal/storage"
)

type Repo interface {
	AppendClicks(context.Context, []storage.ClickEvent) error
}

type Options struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	GeoTimeout    time.Duration
	// MaxAttempts is how many flushes a failing batch gets before it is dropped.
	MaxAttempts int
	// GeoParallelism bounds concurrent region lookups per batch.
	GeoParallelism int
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 25
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 2 * time.Second
	}
	if o.GeoTimeout <= 0 {
		o.GeoTimeout = geo.DefaultTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.GeoParallelism <= 0 {
		o.GeoParallelism = 8
	}
	return o
}

// ClickWorker is the click recorder: Record enqueues, a single loop
// enriches and writes batches.
type ClickWorker struct {
	in      chan storage.ClickEvent
	quit    chan struct{}
	done    chan struct{}
	started atomic.Bool
	direct  sync.WaitGroup

	// mu orders Record against Stop: no send can follow the close of quit.
	mu      sync.RWMutex
	stopped bool

	logger  *zap.Logger
	repo    Repo
	locator geo.Locator
	opts    Options

	batch []storage.ClickEvent
	retry []failedBatch
}

// failedBatch waits for the next tick. It never merges with newer events.
type failedBatch struct {
	events   []storage.ClickEvent
	attempts int
}

func NewClickWorker(logger *zap.Logger, repo Repo, locator geo.Locator, opts Options) *ClickWorker {
	opts = opts.withDefaults()

	return &ClickWorker{
		in:      make(chan storage.ClickEvent, opts.QueueSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger,
		repo:    repo,
		locator: locator,
		opts:    opts,
	}
}

// Record does not wait on storage while the worker runs. When the queue is
// full the event is written by its own goroutine instead of being dropped.
// Events arriving after Stop are written before Record returns.
func (w *ClickWorker) Record(e storage.ClickEvent) {
	w.mu.RLock()
	if w.stopped {
		w.mu.RUnlock()
		w.persist([]storage.ClickEvent{e})
		return
	}
	defer w.mu.RUnlock()

	select {
	case w.in <- e:
		metrics.ClickQueueDepth.Set(float64(len(w.in)))
		return
	default:
	}

	metrics.RecordClicks("overflow", 1)
	w.direct.Add(1)
	go func() {
		defer w.direct.Done()
		w.persist([]storage.ClickEvent{e})
	}()
}

// Start runs the flush loop until Stop.
func (w *ClickWorker) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.FlushRecords()
}

func (w *ClickWorker) FlushRecords() {
	defer close(w.done)

	ticker := time.NewTicker(w.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case e := <-w.in:
			metrics.ClickQueueDepth.Set(float64(len(w.in)))
			w.batch = append(w.batch, e)
			if len(w.batch) >= w.opts.BatchSize {
				w.flush()
			}
		case <-ticker.C:
			w.retryFailed()
			if len(w.batch) > 0 {
				w.flush()
			}
		case <-w.quit:
			w.drain()
			return
		}
	}
}

// drain empties the queue and makes a final attempt at everything buffered,
// failed batches included.
func (w *ClickWorker) drain() {
queued:
	for {
		select {
		case e := <-w.in:
			w.batch = append(w.batch, e)
		default:
			break queued
		}
	}

	if len(w.batch) > 0 {
		w.enrich(w.batch)
		w.retry = append(w.retry, failedBatch{events: w.batch})
		w.batch = nil
	}

	for _, b := range w.retry {
		if err := w.store(b.events); err != nil {
			w.logger.Error("dropping clicks on shutdown",
				zap.Int("count", len(b.events)),
				zap.Error(err))
			metrics.RecordClicks("dropped", len(b.events))
		}
	}
	w.retry = nil
}

// flush makes the first attempt at the current batch.
func (w *ClickWorker) flush() {
	events := w.batch
	w.batch = nil

	w.enrich(events)
	if err := w.store(events); err != nil {
		w.fail(failedBatch{events: events}, err)
	}
}

func (w *ClickWorker) retryFailed() {
	pending := w.retry
	w.retry = nil

	for _, b := range pending {
		if err := w.store(b.events); err != nil {
			w.fail(b, err)
		}
	}
}

func (w *ClickWorker) fail(b failedBatch, err error) {
	b.attempts++
	if b.attempts < w.opts.MaxAttempts {
		w.logger.Warn("cannot store clicks, will retry",
			zap.Int("count", len(b.events)),
			zap.Int("attempt", b.attempts),
			zap.Error(err))
		w.retry = append(w.retry, b)
		return
	}

	w.logger.Error("dropping clicks after repeated failures",
		zap.Int("count", len(b.events)),
		zap.Error(err))
	metrics.RecordClicks("dropped", len(b.events))
}

func (w *ClickWorker) store(events []storage.ClickEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.repo.AppendClicks(ctx, events); err != nil {
		return err
	}
	w.logger.Debug("clicks stored", zap.Int("count", len(events)))
	metrics.RecordClicks("stored", len(events))
	return nil
}

func (w *ClickWorker) persist(events []storage.ClickEvent) {
	w.enrich(events)

	if err := w.store(events); err != nil {
		w.logger.Error("cannot store overflow click", zap.Error(err))
		metrics.RecordClicks("dropped", len(events))
	}
}

// enrich fills missing regions with bounded parallelism and a per-lookup timeout.
func (w *ClickWorker) enrich(events []storage.ClickEvent) {
	var g errgroup.Group
	g.SetLimit(w.opts.GeoParallelism)

	for i := range events {
		if events[i].Region != "" {
			continue
		}
		if w.locator == nil {
			events[i].Region = storage.UnknownRegion
			continue
		}

		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), w.opts.GeoTimeout)
			defer cancel()

			region := w.locator.Lookup(ctx, events[i].SourceAddress)
			if region == "" {
				region = storage.UnknownRegion
			}
			events[i].Region = region
			return nil
		})
	}

	_ = g.Wait()
}

// Stop flushes queued clicks and waits for direct writes, bounded by ctx.
func (w *ClickWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	first := !w.stopped
	w.stopped = true
	w.mu.Unlock()

	if first {
		close(w.quit)
		if w.started.CompareAndSwap(false, true) {
			// the loop never ran
			w.drain()
			close(w.done)
		}
	}

	finished := make(chan struct{})
	go func() {
		<-w.done
		w.direct.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
