package memory

import (
	"context"
	"time"

	"ledger/internal/core"
)

// record appends an event to the outbox. Caller holds the write lock.
func (s *Store) record(e core.Event) {
	s.nextEvent++
	e.ID = s.nextEvent
	s.events = append(s.events, &eventRecord{event: e})
}

func (s *Store) PendingEvents(ctx context.Context, limit, maxAttempts int) ([]core.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []core.Event{}
	for _, rec := range s.events {
		if len(out) >= limit {
			break
		}
		if !rec.publishedAt.IsZero() || rec.event.Attempts >= maxAttempts {
			continue
		}
		out = append(out, rec.event)
	}
	return out, nil
}

func (s *Store) MarkEventPublished(ctx context.Context, id int64) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if rec := s.findEvent(id); rec != nil {
		rec.publishedAt = s.now()
		rec.lastError = ""
	}
	return nil
}

func (s *Store) MarkEventFailed(ctx context.Context, id int64, cause error) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if rec := s.findEvent(id); rec != nil {
		rec.event.Attempts++
		if cause != nil {
			rec.lastError = cause.Error()
		}
	}
	return nil
}

func (s *Store) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	if err := s.begin(ctx); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	kept := s.events[:0]
	var pruned int64
	for _, rec := range s.events {
		if !rec.publishedAt.IsZero() && rec.publishedAt.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, rec)
	}
	s.events = kept
	return pruned, nil
}

func (s *Store) findEvent(id int64) *eventRecord {
	for _, rec := range s.events {
		if rec.event.ID == id {
			return rec
		}
	}
	return nil
}
