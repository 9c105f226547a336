package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"nocaps-server/internal/domain"
	"nocaps-server/pkg/logger"
)

var (
	ErrQueueFull = errors.New("match event queue full")
	ErrStopped   = errors.New("match event dispatcher stopped")
)

const sinkTimeout = 5 * time.Second

// Dispatcher fans match events out to every sink from a background worker so
// publishers never wait on Redis or MySQL.
type Dispatcher struct {
	sinks []domain.MatchEventPublisher
	queue chan *domain.MatchEvent
	log   logger.Logger

	mutex   sync.RWMutex
	stopped bool
	done    chan struct{}
}

func NewDispatcher(bufferSize int, log logger.Logger, sinks ...domain.MatchEventPublisher) *Dispatcher {
	return &Dispatcher{
		sinks: sinks,
		queue: make(chan *domain.MatchEvent, bufferSize),
		log:   log,
		done:  make(chan struct{}),
	}
}

// Start runs the worker until Stop is called. It must be called at most once.
func (d *Dispatcher) Start() {
	go func() {
		defer close(d.done)
		for event := range d.queue {
			d.deliver(event)
		}
	}()
}

// Stop rejects further events, then waits for the queued ones to drain or ctx to expire.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mutex.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mutex.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishMatchEvent enqueues the event without blocking.
func (d *Dispatcher) PublishMatchEvent(ctx context.Context, event *domain.MatchEvent) error {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if d.stopped {
		return ErrStopped
	}
	if len(d.sinks) == 0 {
		return nil
	}

	select {
	case d.queue <- event:
		return nil
	default:
		d.log.Warn("Dropping match event, queue full", "type", event.Type, "match_code", event.MatchCode)
		return ErrQueueFull
	}
}

func (d *Dispatcher) deliver(event *domain.MatchEvent) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := sink.PublishMatchEvent(ctx, event); err != nil {
			d.log.Error("Failed to deliver match event", "type", event.Type,
				"match_code", event.MatchCode, "error", err)
		}
		cancel()
	}
}
