package feeds

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aakash-priyadarshi/news-duplication-system/internal/storage"
)

// CycleFunc runs one full fetch cycle and reports its stats.
type CycleFunc func(ctx context.Context) (*CycleStats, error)

// Scheduler fires fetch cycles on a fixed cadence. When a tick arrives
// while the previous cycle is still running, the tick is skipped rather
// than queued.
type Scheduler struct {
	interval time.Duration
	cycle    CycleFunc
	store    storage.Store

	busy    atomic.Bool
	skipped atomic.Int64
}

func NewScheduler(interval time.Duration, cycle CycleFunc, store storage.Store) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{interval: interval, cycle: cycle, store: store}
}

// Run fires an immediate cycle, then one per interval, until the context
// is cancelled. Blocks until the final in-flight cycle completes.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("feeds: scheduler started (interval=%s)", s.interval)

	var wg sync.WaitGroup
	s.fire(ctx, &wg)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			log.Printf("feeds: scheduler stopped")
			return
		case <-ticker.C:
			s.fire(ctx, &wg)
		}
	}
}

// fire launches one cycle unless the previous one has not resolved yet.
func (s *Scheduler) fire(ctx context.Context, wg *sync.WaitGroup) {
	if !s.busy.CompareAndSwap(false, true) {
		n := s.skipped.Add(1)
		log.Printf("feeds: previous cycle still running, tick skipped (%d total)", n)
		s.store.AddMetric("fetch_cycle_skipped", 1, nil)
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer s.busy.Store(false)

		start := time.Now()
		stats, err := s.cycle(ctx)
		if err != nil {
			log.Printf("feeds: cycle error: %v", err)
			s.store.AddMetric("fetch_cycle_errors", 1, nil)
			return
		}

		log.Printf("feeds: cycle done in %s: %d/%d feeds downloaded, %d not modified, %d errors, %d new articles",
			time.Since(start).Round(time.Millisecond),
			stats.FeedsDownloaded, stats.FeedsTotal,
			stats.FeedsNotModified, stats.FeedsErrored, stats.NewArticles)

		s.store.AddMetric("fetch_cycle_duration_ms", float64(time.Since(start).Milliseconds()), nil)
		s.store.AddMetric("fetch_cycle_new_articles", float64(stats.NewArticles), nil)
		s.store.AddMetric("fetch_cycle_feed_errors", float64(stats.FeedsErrored), nil)
	}()
}

// SkippedTicks reports how many ticks were dropped by the re-entrancy guard.
func (s *Scheduler) SkippedTicks() int64 {
	return s.skipped.Load()
}
