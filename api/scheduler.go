/*
scheduler.go - Background report cache sweeper

PURPOSE:
  Expired report cache entries are only dropped when they are read again.
  The sweeper removes them periodically so filters nobody asks for twice
  do not hold memory until LRU eviction gets to them.

DESIGN:
  - One background goroutine driven by a ticker
  - Sweeps once immediately on Start
  - Stop waits for the goroutine to exit

USAGE:
  sweeper := NewCacheSweeper(handler.Reports, time.Minute, logger)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - cache.go: LRUCache.CleanExpired
  - handlers.go: where reports are cached
*/
package api

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// expirer is the part of LRUCache the sweeper needs.
type expirer interface {
	CleanExpired() int
}

// CacheSweeper periodically removes expired cache entries.
type CacheSweeper struct {
	Cache    expirer
	Interval time.Duration
	Logger   zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewCacheSweeper creates a sweeper. A non-positive interval disables it.
func NewCacheSweeper(cache expirer, interval time.Duration, logger zerolog.Logger) *CacheSweeper {
	return &CacheSweeper{
		Cache:    cache,
		Interval: interval,
		Logger:   logger,
	}
}

// Start begins sweeping. Calling Start on a running sweeper does nothing.
func (cs *CacheSweeper) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.Interval <= 0 {
		cs.Logger.Info().Msg("disabled, not starting")
		return
	}
	if cs.ticker != nil {
		return
	}

	cs.ticker = time.NewTicker(cs.Interval)
	cs.stop = make(chan struct{})
	cs.wg.Add(1)
	go cs.run(cs.ticker, cs.stop)

	cs.Logger.Info().Dur("interval", cs.Interval).Msg("started")
}

// Stop stops the sweeper and waits for it to exit.
func (cs *CacheSweeper) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker == nil {
		return
	}
	cs.ticker.Stop()
	close(cs.stop)
	cs.wg.Wait()
	cs.ticker = nil
	cs.Logger.Info().Msg("stopped")
}

// RunNow sweeps immediately and returns how many entries were removed.
func (cs *CacheSweeper) RunNow() int {
	removed := cs.Cache.CleanExpired()
	if removed > 0 {
		cs.Logger.Debug().Int("removed", removed).Msg("expired reports removed")
	}
	return removed
}

func (cs *CacheSweeper) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer cs.wg.Done()

	cs.RunNow()
	for {
		select {
		case <-ticker.C:
			cs.RunNow()
		case <-stop:
			return
		}
	}
}
