// Package usage records per-request usage off the request path and folds
// stored records into summaries.
package usage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/and161185/gatekeeper/internal/model"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Writer persists batches of usage records.
type Writer interface {
	InsertBatch(ctx context.Context, recs []model.UsageRecord) error
}

// Config holds the configuration for the asynchronous recorder.
type Config struct {
	Buffer       int
	Workers      int
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// Recorder is a non-blocking, batching usage sink.
type Recorder struct {
	log *zap.Logger
	w   Writer
	cfg Config

	mu     sync.RWMutex
	closed bool
	ch     chan model.UsageRecord

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	dropped atomic.Uint64
	failed  atomic.Uint64
	dropLog rate.Sometimes
}

// NewRecorder creates a recorder. Call Start before Record.
func NewRecorder(log *zap.Logger, w Writer, cfg Config) *Recorder {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Recorder{
		log:     log,
		w:       w,
		cfg:     cfg,
		ch:      make(chan model.UsageRecord, cfg.Buffer),
		ctx:     ctx,
		cancel:  cancel,
		dropLog: rate.Sometimes{Interval: time.Second},
	}
}

// Start launches the workers.
func (r *Recorder) Start() {
	r.wg.Add(r.cfg.Workers)
	for i := 0; i < r.cfg.Workers; i++ {
		go r.worker()
	}
}

// Record queues rec and returns immediately. A full buffer or a stopped
// recorder drops the record; overflow is logged at most once per second.
func (r *Recorder) Record(rec model.UsageRecord) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.ch <- rec:
	default:
		total := r.dropped.Add(1)
		r.dropLog.Do(func() {
			r.log.Warn("usage buffer full, record dropped",
				zap.String("client_id", rec.ClientID.String()),
				zap.String("endpoint", rec.Endpoint),
				zap.Uint64("dropped_total", total))
		})
	}
}

// Stop closes intake and waits for queued records to be written until ctx is
// done. Writes still running at the deadline are cancelled and their records lost.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		r.log.Warn("usage recorder stopped before draining", zap.Int("pending", len(r.ch)))
		return ctx.Err()
	}
}

// Dropped returns how many records were discarded without being written.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Failed returns how many records were lost to write errors.
func (r *Recorder) Failed() uint64 { return r.failed.Load() }

func (r *Recorder) worker() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.BatchTimeout)
	defer ticker.Stop()

	batch := make([]model.UsageRecord, 0, r.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.write(batch)
		batch = make([]model.UsageRecord, 0, r.cfg.BatchSize)
	}

	for {
		select {
		case rec, ok := <-r.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= r.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Recorder) write(batch []model.UsageRecord) {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.WriteTimeout)
	defer cancel()
	if err := r.w.InsertBatch(ctx, batch); err != nil {
		r.failed.Add(uint64(len(batch)))
		r.log.Error("usage write failed", zap.Int("records", len(batch)), zap.Error(err))
	}
}
