package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ledger/internal/log"
)

// EventRelayConfig holds configuration for the event relay
type EventRelayConfig struct {
	// PollInterval is how often to check the outbox (default: 5s)
	PollInterval time.Duration

	// BatchSize is the max number of events published per poll cycle (default: 50)
	BatchSize int

	// MaxRetries is the number of failed deliveries after which an event is parked (default: 5)
	MaxRetries int

	// CleanupInterval is how often published events are pruned (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how long published events are kept (default: 24h)
	CleanupAge time.Duration
}

// DefaultEventRelayConfig returns sensible defaults
func DefaultEventRelayConfig() EventRelayConfig {
	return EventRelayConfig{
		PollInterval:    5 * time.Second,
		BatchSize:       50,
		MaxRetries:      5,
		CleanupInterval: time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// EventRelay drains the store's outbox into the broker. Events are published
// in id order; a failed event is retried on later cycles until MaxRetries.
type EventRelay struct {
	events    EventStore
	publisher EventPublisher
	config    EventRelayConfig
	logger    *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewEventRelay(events EventStore, publisher EventPublisher, config EventRelayConfig, logger *log.Logger) *EventRelay {
	if logger == nil {
		logger = log.Discard()
	}
	return &EventRelay{
		events:    events,
		publisher: publisher,
		config:    config,
		logger:    logger.WithComponent(log.ComponentRelay),
	}
}

// Start begins the relay loop. Returns an error if already running.
func (r *EventRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("event relay is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.runLoop(ctx)

	r.logger.InfoContext(ctx, "Event relay started",
		"poll_interval", r.config.PollInterval,
		"batch_size", r.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for it to finish or for ctx to expire.
func (r *EventRelay) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.running = false
	r.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		r.logger.InfoContext(ctx, "Event relay stopped")
		return nil
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "Event relay stop timed out")
		return ctx.Err()
	}
}

func (r *EventRelay) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Run blocks until ctx is done, relaying events. It is the errgroup-friendly
// form of Start/Stop.
func (r *EventRelay) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.Stop(stopCtx)
}

func (r *EventRelay) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	pollTicker := time.NewTicker(r.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(r.config.CleanupInterval)
	defer cleanupTicker.Stop()

	r.RelayOnce(ctx)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			r.RelayOnce(ctx)
		case <-cleanupTicker.C:
			r.Cleanup(ctx)
		}
	}
}

// RelayOnce publishes one batch of pending events and returns how many were
// delivered.
func (r *EventRelay) RelayOnce(ctx context.Context) int {
	events, err := r.events.PendingEvents(ctx, r.config.BatchSize, r.config.MaxRetries)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to read pending events", log.FieldError, err)
		return 0
	}
	if len(events) == 0 {
		return 0
	}

	r.logger.DebugContext(ctx, "Relaying events", "count", len(events))

	published := 0
	for _, e := range events {
		select {
		case <-r.stopCh:
			return published
		case <-ctx.Done():
			return published
		default:
		}

		if err := r.publisher.PublishEvent(ctx, e); err != nil {
			r.handleFailure(ctx, e.ID, e.Attempts, err)
			// Later events stay queued behind the failed one to keep order.
			return published
		}
		if err := r.events.MarkEventPublished(ctx, e.ID); err != nil {
			r.logger.ErrorContext(ctx, "Failed to mark event published",
				log.FieldEventID, e.ID, log.FieldError, err)
			return published
		}
		published++
	}
	return published
}

func (r *EventRelay) handleFailure(ctx context.Context, id int64, attempts int, cause error) {
	r.logger.WarnContext(ctx, "Event publish failed",
		log.FieldEventID, id,
		"attempt", attempts+1,
		log.FieldError, cause)

	if err := r.events.MarkEventFailed(ctx, id, cause); err != nil {
		r.logger.ErrorContext(ctx, "Failed to record event failure",
			log.FieldEventID, id, log.FieldError, err)
		return
	}
	if attempts+1 >= r.config.MaxRetries {
		r.logger.ErrorContext(ctx, "Event parked after max retries",
			log.FieldEventID, id,
			"attempts", attempts+1)
	}
}

// Cleanup prunes published events older than CleanupAge.
func (r *EventRelay) Cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-r.config.CleanupAge)
	n, err := r.events.PruneEvents(ctx, cutoff)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to prune published events", log.FieldError, err)
		return
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "Pruned published events", "count", n)
	}
}
