package quotehub

import (
	"context"
	"sync"
	"time"

	"github.com/hashpool/hashpool/internal/mintclient"
	"github.com/hashpool/hashpool/internal/util"
)

// PaidQuoteSource lists quotes the mint has marked paid. Satisfied by
// *internal/mintclient.Client.
type PaidQuoteSource interface {
	PaidQuotes(ctx context.Context) ([]mintclient.Quote, error)
}

// DefaultPollInterval matches the polling cadence the mint's quote
// lifecycle is built around.
const DefaultPollInterval = 5 * time.Second

// Poller periodically asks the mint which quotes have been paid and
// hands each match off to a Notifier.
type Poller struct {
	source     PaidQuoteSource
	dispatcher *Dispatcher
	notifier   *Notifier
	interval   time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewPoller(source PaidQuoteSource, dispatcher *Dispatcher, notifier *Notifier, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{source: source, dispatcher: dispatcher, notifier: notifier, interval: interval}
}

func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)
	go p.run(runCtx)
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	quotes, err := p.source.PaidQuotes(ctx)
	if err != nil {
		util.Warnf("quotehub: failed to poll mint for paid quotes: %v", err)
		return
	}
	for _, q := range quotes {
		pending, ok := p.dispatcher.TakePending(q.ID)
		if !ok {
			continue
		}
		pending.Amount = q.Amount
		p.notifier.Notify(pending)
	}
}

// PollOnce runs a single poll cycle immediately, for callers (and
// tests) that don't want to wait on the interval ticker.
func (p *Poller) PollOnce(ctx context.Context) {
	p.pollOnce(ctx)
}
