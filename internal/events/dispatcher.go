package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/safar/go-storefront/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// Sink delivers one event to an external collaborator.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

type Options struct {
	Workers         int
	QueueSize       int
	DeliveryTimeout time.Duration
}

// Dispatcher fans events out to a Sink from a bounded queue. Publish never
// blocks the caller; delivery failures are logged and counted, never
// returned.
type Dispatcher struct {
	sink    Sink
	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	group  errgroup.Group
}

func NewDispatcher(sink Sink, opts Options, log *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 5 * time.Second
	}
	return &Dispatcher{
		sink:    sink,
		opts:    opts,
		log:     log,
		metrics: m,
		queue:   make(chan Event, opts.QueueSize),
	}
}

// Start launches the worker pool. Deliveries derive their deadline from ctx
// but are not cancelled with it, so Close can drain the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i := 0; i < d.opts.Workers; i++ {
		d.group.Go(func() error {
			for e := range d.queue {
				d.deliver(base, e)
			}
			return nil
		})
	}
}

func (d *Dispatcher) deliver(base context.Context, e Event) {
	ctx, cancel := context.WithTimeout(base, d.opts.DeliveryTimeout)
	defer cancel()

	err := d.sink.Publish(ctx, e)
	d.metrics.Event(string(e.Kind), err)
	if err != nil {
		d.log.Warn("event delivery failed",
			"event_id", e.ID,
			"routing_key", e.RoutingKey(),
			"error", err)
	}
}

// Publish enqueues events and reports how many were accepted. Events that do
// not fit in the queue are dropped with a warning.
func (d *Dispatcher) Publish(evts []Event) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	accepted := 0
	for _, e := range evts {
		if d.closed {
			d.drop(e, "dispatcher closed")
			continue
		}
		select {
		case d.queue <- e:
			accepted++
		default:
			d.drop(e, "queue full")
		}
	}
	return accepted
}

func (d *Dispatcher) drop(e Event, reason string) {
	d.metrics.EventDropped(string(e.Kind))
	d.log.Warn("event dropped",
		"event_id", e.ID,
		"routing_key", e.RoutingKey(),
		"reason", reason)
}

// Close stops accepting events and waits until queued ones are delivered or
// ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- d.group.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
