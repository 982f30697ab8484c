// Package fanout delivers registry events to real-time subscribers. Delivery
// is at-most-once: a sink that fails drops the event and nothing is replayed.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"fleettrack/internal/core/model"
	"fleettrack/internal/log"
	"fleettrack/internal/metrics"
)

// Publisher accepts one event for delivery.
type Publisher interface {
	Publish(ctx context.Context, event model.Event) error
}

// Sink is a named Publisher so failures can be attributed.
type Sink interface {
	Publisher
	Name() string
}

// Envelope is the wire shape for subscribers that multiplex every channel on
// one stream.
type Envelope struct {
	Channel model.Channel `json:"channel"`
	Data    model.Event   `json:"data"`
}

func marshalEnvelope(event model.Event) ([]byte, error) {
	return json.Marshal(Envelope{Channel: event.Channel(), Data: event})
}

// DefaultQueueSize is the number of events buffered per sink before new ones
// are dropped.
const DefaultQueueSize = 256

var (
	// ErrQueueFull is reported for an event dropped because its sink is behind.
	ErrQueueFull = errors.New("sink queue full")
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("fan-out closed")
)

// MultiConfig configures NewMulti. Zero values select the defaults.
type MultiConfig struct {
	QueueSize int
	Metrics   *metrics.Metrics
	Logger    log.Logger
}

type queuedSink struct {
	sink  Sink
	queue chan model.Event
}

// Multi publishes every event to all of its sinks. Each sink drains its own
// bounded queue on its own goroutine, so Publish never waits on sink I/O and
// a slow or failing sink does not hold back the others. An event that finds
// a full queue is dropped for that sink.
type Multi struct {
	sinks   []*queuedSink
	metrics *metrics.Metrics
	logger  log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ Publisher = (*Multi)(nil)

// NewMulti starts one worker per sink. Close stops them.
func NewMulti(cfg MultiConfig, sinks ...Sink) *Multi {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Multi{
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, sink := range sinks {
		q := &queuedSink{sink: sink, queue: make(chan model.Event, cfg.QueueSize)}
		m.sinks = append(m.sinks, q)
		m.wg.Add(1)
		go m.drain(q)
	}
	return m
}

// Publish queues event for every sink and returns at once. The returned error
// joins ErrQueueFull for each sink that had to drop it.
func (m *Multi) Publish(_ context.Context, event model.Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	var errs []error
	for _, q := range m.sinks {
		select {
		case q.queue <- event:
		default:
			m.metrics.PublishFailed(q.sink.Name())
			errs = append(errs, fmt.Errorf("%s: %w", q.sink.Name(), ErrQueueFull))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) drain(q *queuedSink) {
	defer m.wg.Done()
	for event := range q.queue {
		if err := q.sink.Publish(m.ctx, event); err != nil {
			m.metrics.PublishFailed(q.sink.Name())
			m.logger.Warn("Sink publish failed", "sink", q.sink.Name(), "channel", event.Channel(), "device", event.Key(), "error", err)
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered
// until ctx is done. Events still queued then are abandoned.
func (m *Multi) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, q := range m.sinks {
		close(q.queue)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}
