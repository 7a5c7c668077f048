// Package update decides when subscriptions are refreshed and runs the
// refresh: merge, save, then mark the day as done.
package update

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clash-launcher/core/config"
	"clash-launcher/core/subscription"
	"clash-launcher/internal/debuglog"
)

// Merger produces a document from sources.
type Merger interface {
	Merge(ctx context.Context, sources []subscription.Source) (*subscription.MergeResult, error)
}

// Store persists the document and the marker.
type Store interface {
	Save(doc *config.Document) (string, error)
	MarkUpdated(date time.Time) error
	LastUpdateDate() (time.Time, bool, error)
}

// Scheduler gates refreshes to once per network day.
type Scheduler struct {
	merger Merger
	store  Store
	clock  Clock

	// Sources are fixed subscription URLs; Dated are templates expanded
	// with the network date.
	Sources []string
	Dated   []string

	mu sync.Mutex
}

// NewScheduler wires a scheduler.
func NewScheduler(merger Merger, store Store, clock Clock, sources, dated []string) *Scheduler {
	return &Scheduler{merger: merger, store: store, clock: clock, Sources: sources, Dated: dated}
}

// NeedsUpdate reports whether the marker is older than today's network date.
func (s *Scheduler) NeedsUpdate(ctx context.Context) (bool, time.Time, error) {
	today := s.clock.Now(ctx)
	last, ok, err := s.store.LastUpdateDate()
	if err != nil {
		return false, today, err
	}
	if ok && SameDay(last, today) {
		return false, today, nil
	}
	return true, today, nil
}

// UpdateIfNeeded refreshes when the marker is not today. It returns true
// when a new document was written.
func (s *Scheduler) UpdateIfNeeded(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	need, today, err := s.NeedsUpdate(ctx)
	if err != nil {
		return false, err
	}
	if !need {
		debuglog.DebugLog("updateIfNeeded: already updated on %s", today.Format(config.MarkerLayout))
		return false, nil
	}
	if _, err := s.refreshLocked(ctx, today); err != nil {
		return false, err
	}
	return true, nil
}

// Force refreshes regardless of the marker.
func (s *Scheduler) Force(ctx context.Context) (*subscription.MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx, s.clock.Now(ctx))
}

func (s *Scheduler) refreshLocked(ctx context.Context, today time.Time) (*subscription.MergeResult, error) {
	urls := append(append([]string{}, s.Sources...), ExpandAll(s.Dated, today)...)
	if len(urls) == 0 {
		return nil, fmt.Errorf("update: no subscription sources configured: %w", subscription.ErrEmptyResult)
	}
	debuglog.InfoLog("updateSubscriptions: refreshing from %d source(s)", len(urls))

	res, err := s.merger.Merge(ctx, subscription.SourcesFromURLs(urls))
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Save(res.Document); err != nil {
		return nil, err
	}
	if err := s.store.MarkUpdated(today); err != nil {
		return nil, err
	}
	debuglog.InfoLog("updateSubscriptions: %d nodes saved, marked %s", len(res.Names), today.Format(config.MarkerLayout))
	return res, nil
}

// Run checks every interval until ctx is done and calls onUpdated after
// each refresh that wrote a new document.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, onUpdated func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updated, err := s.UpdateIfNeeded(ctx)
			if err != nil {
				debuglog.WarnLog("updateLoop: %v", err)
				continue
			}
			if updated && onUpdated != nil {
				onUpdated(ctx)
			}
		}
	}
}
