package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fixerstudio/marketbrief/quote"
)

type FetchFunc func(ctx context.Context, symbols []string) ([]quote.Result, error)

// RenderFunc receives the results of one cycle with the symbols they were
// fetched for.
type RenderFunc func(symbols []string, results []quote.Result)

// Poller fetches a watchlist snapshot on a fixed interval. Replacing the
// watchlist cancels the running task, so a stale cycle never renders.
type Poller struct {
	Interval time.Duration
	Fetch    FetchFunc
	Render   RenderFunc

	mu     sync.Mutex
	parent context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Start runs one cycle right away, then one every Interval until ctx is done
// or Stop is called. A zero Interval runs a single cycle.
func (p *Poller) Start(ctx context.Context, symbols []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.parent = ctx
	p.startLocked(symbols)
}

// Replace restarts polling with a new watchlist.
func (p *Poller) Replace(symbols []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.parent == nil {
		return
	}
	p.stopLocked()
	logrus.Debugf("Watchlist replaced, now polling %d symbols", len(symbols))
	p.startLocked(symbols)
}

// Stop cancels the running task and waits for it to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.parent = nil
}

// Done is closed when the current task returns.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return p.done
}

func (p *Poller) startLocked(symbols []string) {
	ctx, cancel := context.WithCancel(p.parent)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done
	snapshot := append([]string(nil), symbols...)
	go func() {
		defer close(done)
		p.run(ctx, snapshot)
	}()
}

func (p *Poller) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
}

func (p *Poller) run(ctx context.Context, symbols []string) {
	p.cycle(ctx, symbols)
	if p.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx, symbols)
		}
	}
}

func (p *Poller) cycle(ctx context.Context, symbols []string) {
	results, err := p.Fetch(ctx, symbols)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		logrus.Warnf("Failed to refresh %d symbols, error: %v", len(symbols), err)
		return
	}
	p.Render(symbols, results)
}
