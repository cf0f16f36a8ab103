package analytics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sl-c19-memorial/memorial-web/internal/filter"
)

const defaultRecordTimeout = 10 * time.Second

// Tracker turns filter transitions into events and hands them to a sink in the background.
// Delivery failures are logged and otherwise invisible to the caller.
type Tracker struct {
	sink    Sink
	logger  *zap.Logger
	now     func() time.Time
	timeout time.Duration

	wg sync.WaitGroup
}

// TrackerOption customises a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *zap.Logger) TrackerOption {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithClock injects a custom clock.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker builds a tracker. A nil sink logs events only.
func NewTracker(sink Sink, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		logger:  zap.NewNop(),
		now:     time.Now,
		timeout: defaultRecordTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	if sink == nil {
		sink = NewLogSink(t.logger)
	}
	t.sink = sink
	return t
}

var _ filter.Observer = (*Tracker)(nil)

// Observe implements filter.Observer.
func (t *Tracker) Observe(ctx context.Context, a filter.Action, s filter.Selection) {
	event := FilterEvent(a, s, t.now())

	// Detach from the request so a finished response does not cancel delivery.
	ctx = context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()
		if err := t.sink.Record(ctx, event); err != nil {
			t.logger.Warn("analytics event dropped",
				zap.String("event_id", event.ID),
				zap.String("label", event.Label),
				zap.Error(err),
			)
		}
	}()
}

// Close waits for in-flight deliveries or until ctx ends.
func (t *Tracker) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSink writes events to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink that logs at info level.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Record logs the event.
func (l *LogSink) Record(_ context.Context, event Event) error {
	l.logger.Info("analytics event",
		zap.String("event_id", event.ID),
		zap.String("action", event.Action),
		zap.String("category", event.Category),
		zap.String("label", event.Label),
		zap.String("value", event.Value),
	)
	return nil
}
