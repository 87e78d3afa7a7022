// Package dispatch moves alert events from the evaluator to the notification
// channels. The evaluator hands tasks to a bounded queue and returns at once.
// A fixed pool of workers drains the queue and fans each task out to its
// channels.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"bandwatch/internal/alerts"
	"bandwatch/internal/config"
	"bandwatch/internal/logging"
	"bandwatch/internal/metrics"
	"bandwatch/internal/model"
	"bandwatch/internal/notify"
)

var ErrEventNotFound = errors.New("alert event not found")

type EventStore interface {
	GetEvent(ctx context.Context, id int64) (*model.AlertEvent, error)
}

type ChannelSource interface {
	Get(kind model.ChannelKind) (notify.Channel, bool)
	Kinds() []model.ChannelKind
}

type Option func(*Dispatcher)

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithQueueCapacity(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.capacity = n
		}
	}
}

func WithDequeueTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.dequeueTimeout = t
		}
	}
}

func WithShutdownTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.shutdownTimeout = t
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithRecent records every delivery summary in s.
func WithRecent(s *alerts.Store) Option {
	return func(d *Dispatcher) { d.recent = s }
}

// FromConfig translates the dispatch config section into options.
func FromConfig(cfg config.DispatchConfig) []Option {
	return []Option{
		WithWorkers(cfg.Workers),
		WithQueueCapacity(cfg.QueueCapacity),
		WithDequeueTimeout(cfg.DequeueTimeout),
		WithShutdownTimeout(cfg.ShutdownTimeout),
	}
}

// Dispatcher owns the dispatch queue and the worker pool. One is built per
// process and shared by reference.
type Dispatcher struct {
	store    EventStore
	channels ChannelSource

	workers         int
	capacity        int
	dequeueTimeout  time.Duration
	shutdownTimeout time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	recent  *alerts.Store
	queue   *Queue
	agg     *Aggregator

	mu      sync.Mutex
	running atomic.Bool
	stop    chan struct{}
	wg      *sync.WaitGroup

	processed atomic.Uint64
	rejected  atomic.Uint64
}

type Stats struct {
	Running       bool   `json:"running"`
	Workers       int    `json:"workers"`
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	Dropped       uint64 `json:"dropped"`
	Rejected      uint64 `json:"rejected"`
	Processed     uint64 `json:"processed"`
}

func New(store EventStore, channels ChannelSource, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:           store,
		channels:        channels,
		workers:         config.DefaultWorkers,
		capacity:        config.DefaultQueueCapacity,
		dequeueTimeout:  config.DefaultDequeueTimeout,
		shutdownTimeout: config.DefaultShutdownTimeout,
		logger:          logging.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = NewQueue(d.capacity)
	d.agg = NewAggregator(d.logger, d.metrics, d.recent)
	d.metrics.TrackQueue(d.queue.Len, d.queue.Cap)
	return d
}

// Start launches the workers. Calling it on a running dispatcher does nothing.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return
	}
	d.stop = make(chan struct{})
	// a fresh group per run: workers from a timed-out Stop may still be finishing
	d.wg = &sync.WaitGroup{}
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i, d.wg, d.stop)
	}
	d.running.Store(true)
	d.logger.Info("notification dispatcher started", "workers", d.workers, "queue_capacity", d.queue.Cap())
}

// Stop signals the workers and waits up to the shutdown timeout for them to
// finish their current task. Tasks still queued are abandoned. It reports
// whether every worker exited in time.
func (d *Dispatcher) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return true
	}
	d.running.Store(false)
	close(d.stop)

	wg := d.wg
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(d.shutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
		d.logger.Info("notification dispatcher stopped", "abandoned", d.queue.Len())
		return true
	case <-timer.C:
		d.logger.Warn("notification dispatcher stop timed out",
			"timeout", d.shutdownTimeout.String(),
			"abandoned", d.queue.Len(),
		)
		return false
	}
}

func (d *Dispatcher) Running() bool {
	return d.running.Load()
}

// Enqueue hands a task to the workers without blocking. It returns false
// when the task was dropped.
func (d *Dispatcher) Enqueue(task model.DispatchTask) bool {
	if !d.running.Load() {
		d.rejected.Add(1)
		d.metrics.TaskDropped("stopped")
		d.logger.Warn("notification dispatcher not running, dropping task", "event_id", task.EventID)
		return false
	}
	if !d.queue.Enqueue(task) {
		d.metrics.TaskDropped("full")
		d.logger.Warn("dispatch queue full, dropping task",
			"event_id", task.EventID,
			"dropped_total", d.queue.Dropped(),
			"err", ErrQueueFull,
		)
		return false
	}
	d.metrics.TaskEnqueued()
	return true
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Running:       d.running.Load(),
		Workers:       d.workers,
		QueueDepth:    d.queue.Len(),
		QueueCapacity: d.queue.Cap(),
		Dropped:       d.queue.Dropped(),
		Rejected:      d.rejected.Load(),
		Processed:     d.processed.Load(),
	}
}

// TestSend sends ev to the given channels right away, bypassing the queue,
// and returns every channel's result. No kinds means every registered channel.
func (d *Dispatcher) TestSend(ctx context.Context, kinds []model.ChannelKind, ev model.AlertEvent) map[model.ChannelKind]model.ChannelResult {
	if len(kinds) == 0 {
		kinds = d.channels.Kinds()
	}
	out := make(map[model.ChannelKind]model.ChannelResult, len(kinds))
	for _, r := range d.fanOut(ctx, kinds, ev) {
		out[r.Channel] = r
	}
	return out
}

func (d *Dispatcher) worker(id int, wg *sync.WaitGroup, stop <-chan struct{}) {
	defer wg.Done()
	logger := d.logger.With("worker", id)
	for {
		select {
		case <-stop:
			return
		default:
		}
		task, ok := d.queue.dequeue(d.dequeueTimeout, stop)
		if !ok {
			continue
		}
		d.process(task, logger)
	}
}

// process handles one task. Nothing escapes it, so a bad task never takes
// its worker down.
func (d *Dispatcher) process(task model.DispatchTask, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch task panicked", "event_id", task.EventID, "panic", fmt.Sprint(r))
		}
	}()
	ctx := context.Background()
	ev, err := d.store.GetEvent(ctx, task.EventID)
	if err != nil {
		logger.Error("load alert event failed, dropping task", "event_id", task.EventID, "err", err)
		return
	}
	if ev == nil {
		d.metrics.TaskMissingEvent()
		logger.Error("dropping dispatch task", "event_id", task.EventID, "err", ErrEventNotFound)
		return
	}
	results := d.fanOut(ctx, task.Channels, *ev)
	d.agg.Record(*ev, results)
	d.processed.Add(1)
}

// fanOut tries every channel in order, whatever happens to the others.
func (d *Dispatcher) fanOut(ctx context.Context, kinds []model.ChannelKind, ev model.AlertEvent) []model.ChannelResult {
	results := make([]model.ChannelResult, 0, len(kinds))
	for _, kind := range kinds {
		r := d.sendOne(ctx, kind, ev)
		if !r.Success {
			d.logger.Warn("notification channel failed", "event_id", ev.ID, "channel", r.Channel, "detail", r.Detail)
		}
		results = append(results, r)
	}
	return results
}

func (d *Dispatcher) sendOne(ctx context.Context, kind model.ChannelKind, ev model.AlertEvent) (res model.ChannelResult) {
	res.Channel = kind
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Detail = fmt.Sprintf("panic: %v", r)
		}
	}()
	ch, ok := d.channels.Get(kind)
	if !ok {
		res.Detail = fmt.Sprintf("unsupported channel: %s", kind)
		return res
	}
	res.Success, res.Detail = ch.Send(ctx, notify.Compose(ev, ch.Style()))
	return res
}
