package audit

import (
	"context"
	"log/slog"
	"time"
)

// Sink persists a batch of events.
type Sink interface {
	Write(ctx context.Context, events []Event) error
}

// LogSink writes each event as a structured log record.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink on logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(ctx context.Context, events []Event) error {
	for _, e := range events {
		s.logger.InfoContext(ctx, "audit", "event", e)
	}
	return nil
}

// Publisher decouples request handling from audit persistence. Emit never
// blocks; Run drains the buffer into the sink.
type Publisher struct {
	buffer        *RingBuffer
	sink          Sink
	logger        *slog.Logger
	flushInterval time.Duration
	batchSize     int
	reportedDrops int64
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithFlushInterval sets how often Run drains the buffer.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// WithBufferCapacity bounds the number of queued events.
func WithBufferCapacity(n int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(n)
	}
}

// NewPublisher builds a publisher writing to sink.
func NewPublisher(sink Sink, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		buffer:        NewRingBuffer(DefaultBufferCapacity),
		sink:          sink,
		logger:        logger,
		flushInterval: time.Second,
		batchSize:     100,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit queues an event. A zero timestamp is set to now.
func (p *Publisher) Emit(_ context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	p.buffer.Enqueue(event)
}

// Run flushes on every tick until ctx is done, then drains what is left.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// the request context is gone; the final drain gets its own
			p.Flush(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush writes every queued event. Sink failures are logged and the batch
// is discarded.
func (p *Publisher) Flush(ctx context.Context) {
	for {
		batch := p.buffer.DequeueBatch(p.batchSize)
		if len(batch) == 0 {
			break
		}
		if err := p.sink.Write(ctx, batch); err != nil {
			p.logger.ErrorContext(ctx, "failed to write audit events", "error", err, "count", len(batch))
		}
	}
	if dropped := p.buffer.Dropped(); dropped > p.reportedDrops {
		p.logger.WarnContext(ctx, "audit events dropped", "count", dropped-p.reportedDrops)
		p.reportedDrops = dropped
	}
}
