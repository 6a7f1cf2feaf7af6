package main

import (
	"context"
	"log"
	"sync"
	"time"

	newsdedup "github.com/aakash-priyadarshi/news-duplication-system"
)

// poller runs a background fetch and dedup loop.
type poller struct {
	engine   *newsdedup.Engine
	interval time.Duration

	mu   sync.Mutex
	done chan struct{}
}

func newPoller(engine *newsdedup.Engine, interval time.Duration) *poller {
	return &poller{
		engine:   engine,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// start launches the background poll loop. It polls immediately, then on
// each tick of the configured interval.
func (p *poller) start(ctx context.Context) {
	go p.loop(ctx)
	log.Printf("poller: started (interval=%s)", p.interval)
}

// stop signals the poll loop to exit.
func (p *poller) stop() {
	close(p.done)
	log.Printf("poller: stopped")
}

// poll runs a single fetch+dedup cycle. Also called by the poll_now tool.
func (p *poller) poll(ctx context.Context) (*newsdedup.FetchResult, *newsdedup.DedupResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fetch, err := p.engine.RunFetchCycle(ctx)
	if err != nil {
		return nil, nil, err
	}

	log.Printf("poller: %d/%d feeds downloaded, %d not modified, %d errors, %d new articles",
		fetch.FeedsDownloaded, fetch.FeedsTotal,
		fetch.FeedsNotModified, fetch.FeedsErrored, fetch.NewArticles)

	dedup, err := p.engine.DrainDedup(ctx)
	if err != nil {
		return fetch, nil, err
	}
	if dedup.Processed > 0 {
		log.Printf("poller: checked %d article(s), %d duplicates, %d alerts created, %d filtered",
			dedup.Processed, dedup.Duplicates, dedup.AlertsCreated, dedup.AlertsFiltered)
	}

	return fetch, dedup, nil
}

func (p *poller) loop(ctx context.Context) {
	if _, _, err := p.poll(ctx); err != nil {
		log.Printf("poller: initial poll error: %v", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := p.poll(ctx); err != nil {
				log.Printf("poller: poll error: %v", err)
			}
		}
	}
}
