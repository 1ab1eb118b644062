package mintclient

import (
	"context"
	"sync"
	"time"

	"github.com/hashpool/hashpool/internal/util"
)

// Manager holds every configured mint and fails over between them the
// way internal/rpc.UpstreamManager does for chain nodes: a periodic
// health probe (here, just attempting PaidQuotes) demotes an upstream
// after MaxFailures consecutive errors and promotes it back after
// RecoveryThreshold consecutive successes.
type Manager struct {
	clients []*Client

	maxFailures       int
	recoveryThreshold int

	mu        sync.RWMutex
	activeIdx int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Config struct {
	BaseURLs            []string
	Timeout             time.Duration
	HealthCheckInterval time.Duration
	MaxFailures         int
	RecoveryThreshold   int
}

func NewManager(ctx context.Context, cfg Config) *Manager {
	mgrCtx, cancel := context.WithCancel(ctx)
	m := &Manager{
		maxFailures:       cfg.MaxFailures,
		recoveryThreshold: cfg.RecoveryThreshold,
		ctx:               mgrCtx,
		cancel:            cancel,
		activeIdx:         -1,
	}
	if m.maxFailures <= 0 {
		m.maxFailures = 3
	}
	if m.recoveryThreshold <= 0 {
		m.recoveryThreshold = 2
	}
	for _, url := range cfg.BaseURLs {
		m.clients = append(m.clients, NewClient(url, cfg.Timeout))
	}
	if len(m.clients) > 0 {
		m.activeIdx = 0
	}
	return m
}

// Start launches the periodic health probe.
func (m *Manager) Start(interval time.Duration) {
	if len(m.clients) == 0 {
		util.Warn("mintclient: no mint upstreams configured")
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	m.wg.Add(1)
	go m.healthLoop(interval)
}

func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) healthLoop(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.probeAll()
		}
	}
}

func (m *Manager) probeAll() {
	var wg sync.WaitGroup
	for _, c := range m.clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(m.ctx, 3*time.Second)
			defer cancel()
			if _, err := c.PaidQuotes(ctx); err != nil {
				c.recordFailure(m.maxFailures)
			} else {
				c.recordSuccess(m.maxFailures, m.recoveryThreshold)
			}
		}(c)
	}
	wg.Wait()
	m.selectActive()
}

func (m *Manager) selectActive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeIdx >= 0 && m.activeIdx < len(m.clients) && m.clients[m.activeIdx].isHealthy() {
		return
	}
	for i, c := range m.clients {
		if c.isHealthy() {
			m.activeIdx = i
			return
		}
	}
	m.activeIdx = -1
}

// Active returns the currently-preferred healthy client, or nil if
// every configured mint is down.
func (m *Manager) Active() *Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.activeIdx < 0 || m.activeIdx >= len(m.clients) {
		return nil
	}
	return m.clients[m.activeIdx]
}
