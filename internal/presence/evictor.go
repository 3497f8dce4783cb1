package presence

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Default eviction timing. Presence must be refreshed well inside the
// auth clock-skew window.
const (
	DefaultSweepInterval = 5 * time.Second
	DefaultStaleAfter    = 10 * time.Second
)

// Evictor periodically removes stale players from a Store
type Evictor struct {
	store      *Store
	clock      clock.Clock
	logger     *zap.Logger
	interval   time.Duration
	staleAfter time.Duration

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEvictor creates an evictor. Zero durations use the defaults.
func NewEvictor(store *Store, clk clock.Clock, logger *zap.Logger, interval, staleAfter time.Duration) *Evictor {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval == 0 {
		interval = DefaultSweepInterval
	}
	if staleAfter == 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Evictor{
		store:      store,
		clock:      clk,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
		done:       make(chan struct{}),
	}
}

// Start begins sweeping in the background until ctx is cancelled or Stop is called
func (e *Evictor) Start(ctx context.Context) {
	ticker := e.clock.Ticker(e.interval)
	e.wg.Add(1)
	go e.sweepLoop(ctx, ticker)
}

// Stop halts the sweep loop and waits for it to exit
func (e *Evictor) Stop() {
	e.stopOnce.Do(func() { close(e.done) })
	e.wg.Wait()
}

// SweepOnce runs a single sweep and returns the evicted player IDs
func (e *Evictor) SweepOnce() []string {
	evicted := e.store.Sweep(e.staleAfter)
	if len(evicted) > 0 {
		e.logger.Info("evicted stale players",
			zap.Int("count", len(evicted)),
			zap.Strings("player_ids", evicted))
	}
	return evicted
}

func (e *Evictor) sweepLoop(ctx context.Context, ticker *clock.Ticker) {
	defer e.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.SweepOnce()
		}
	}
}
