package audit

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Publisher is an optional export sink (e.g. Kafka for SIEM ingestion).
// Publish must not block; implementations queue internally.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Recorder fans an event out to the structured log (always, synchronously)
// and hands it to the background worker for the durable store (best effort).
// Record is fire-and-forget relative to the HTTP response: a full queue drops
// the durable write, never delays the caller.
type Recorder struct {
	logger    *slog.Logger
	store     Store
	publisher Publisher
	queue     chan Event
	drops     prometheus.Counter
	sinkErrs  *prometheus.CounterVec
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithPublisher attaches an export publisher invoked for every event.
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) { r.publisher = p }
}

// WithDropCounter exports queue-full drops.
func WithDropCounter(c prometheus.Counter) Option {
	return func(r *Recorder) { r.drops = c }
}

// WithSinkErrorCounter exports durable-sink write failures by sink name.
func WithSinkErrorCounter(c *prometheus.CounterVec) Option {
	return func(r *Recorder) { r.sinkErrs = c }
}

// NewRecorder builds a Recorder writing durable events to store through a
// queue of the given size.
func NewRecorder(logger *slog.Logger, store Store, queueSize int, opts ...Option) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	r := &Recorder{
		logger: logger,
		store:  store,
		queue:  make(chan Event, queueSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record captures one gateway decision. It never returns an error and never
// blocks: sink trouble is logged locally and must not change the response
// already computed.
func (r *Recorder) Record(event Event) {
	event = NewEvent(event)

	r.logger.Info("gateway request",
		"event_id", event.ID,
		"subject", event.Subject,
		"action", event.Action,
		"service", event.Service,
		"outcome", string(event.Outcome),
		"status", event.StatusCode,
		"source_ip", event.SourceIP,
		"request_id", event.RequestID,
		"duration_ms", event.DurationMs,
		"log_type", "audit",
	)

	if r.publisher != nil {
		r.publisher.Publish(context.Background(), event)
	}

	if r.store == nil {
		return
	}
	select {
	case r.queue <- event:
	default:
		if r.drops != nil {
			r.drops.Inc()
		}
		r.logger.Warn("audit queue full, durable write dropped", "event_id", event.ID)
	}
}

// Run consumes the queue and appends to the durable store until ctx is
// cancelled, then drains whatever is already queued. Store errors are logged
// and counted, never propagated.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case event := <-r.queue:
			r.append(ctx, event)
		}
	}
}

func (r *Recorder) drain() {
	// Detached context: the run context is already cancelled but queued
	// events should still reach the store during shutdown.
	ctx := context.Background()
	for {
		select {
		case event := <-r.queue:
			r.append(ctx, event)
		default:
			return
		}
	}
}

func (r *Recorder) append(ctx context.Context, event Event) {
	if err := r.store.Append(ctx, event); err != nil {
		if r.sinkErrs != nil {
			r.sinkErrs.WithLabelValues("store").Inc()
		}
		r.logger.Error("audit store append failed", "error", err, "event_id", event.ID)
	}
}
