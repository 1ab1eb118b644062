package pool

import (
	"context"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync"

	"github.com/hashpool/hashpool/internal/channel"
	"github.com/hashpool/hashpool/internal/policy"
	"github.com/hashpool/hashpool/internal/quotehub"
	"github.com/hashpool/hashpool/internal/setup"
	"github.com/hashpool/hashpool/internal/sv2common"
	"github.com/hashpool/hashpool/internal/sv2noise"
	"github.com/hashpool/hashpool/internal/target"
	"github.com/hashpool/hashpool/internal/util"
	"github.com/hashpool/hashpool/internal/vardiff"
)

// Config configures an Engine's protocol policy. It carries nothing
// about where templates come from; that is TemplateProvider's concern.
type Config struct {
	StaticKey                 *sv2noise.KeyPair
	MinimumShareDifficultyBits int
	ClockSkewSeconds           uint32
	SharesPerMinute            float64
	VardiffConfig              vardiff.Config
	ExtranoncePrefixSize       int

	// Policy is optional; a nil Policy accepts every connection
	// unconditionally, the same as internal/translator's Server.
	Policy *policy.PolicyServer
}

// Engine is the pool's connection acceptor and share-validation
// coordinator. Grounded on internal/master/master.go's Master: a
// ctx/cancel/wg-governed coordinator that owns shared state (there,
// currentJob/jobBacklog behind jobMu; here, the channel registry and
// the current template) and spawns one goroutine per external
// connection instead of master's single upstream-driven share channel,
// since SV2 share submission is a per-connection request/response
// rather than master's queued ShareSubmission model.
type Engine struct {
	cfg        Config
	registry   *channel.Registry
	extranonce *extranonceAllocator
	dispatcher *quotehub.Dispatcher
	templates  TemplateProvider

	mu          sync.RWMutex
	current     Template
	connsByChan map[uint32]*conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(cfg Config, dispatcher *quotehub.Dispatcher, templates TemplateProvider) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:         cfg,
		registry:    channel.NewRegistry(),
		extranonce:  newExtranonceAllocator(cfg.ExtranoncePrefixSize),
		dispatcher:  dispatcher,
		templates:   templates,
		current:     templates.Current(),
		connsByChan: make(map[uint32]*conn),
		ctx:         ctx,
		cancel:      cancel,
	}
	return e
}

// Start launches the template-refresh loop and the accept loop on
// listener. It returns once the accept loop exits (listener closed or
// context cancelled).
func (e *Engine) Start(listener net.Listener) error {
	e.wg.Add(1)
	go e.templateRefreshLoop()

	util.Infof("pool: accepting connections on %s", listener.Addr())
	for {
		raw, err := listener.Accept()
		if err != nil {
			select {
			case <-e.ctx.Done():
				return nil
			default:
				return fmt.Errorf("pool: accept: %w", err)
			}
		}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.handleConnection(raw)
		}()
	}
}

func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) templateRefreshLoop() {
	defer e.wg.Done()
	updates := e.templates.Updates()
	for {
		select {
		case <-e.ctx.Done():
			return
		case tmpl, ok := <-updates:
			if !ok {
				return
			}
			e.mu.Lock()
			e.current = tmpl
			e.mu.Unlock()
			e.broadcastNewTemplate(tmpl)
		}
	}
}

func (e *Engine) currentTemplate() Template {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// broadcastNewTemplate pushes SetNewPrevHash and a job to every open
// channel. Spec §4.4 requires SetNewPrevHash precede any job
// referencing it within a channel, so it is always written first.
func (e *Engine) broadcastNewTemplate(tmpl Template) {
	for _, id := range e.registry.IDs() {
		ch, ok := e.registry.Get(id)
		if !ok {
			continue
		}
		c := e.connFor(id)
		if c == nil {
			continue
		}
		ch.Jobs.Put(tmpl.ToJob())
		if err := e.sendPrevHashAndJob(c, ch, tmpl); err != nil {
			util.Warnf("pool: failed to push new template to channel %d: %v", id, err)
		}
	}
}

func (e *Engine) connFor(channelID uint32) *conn {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connsByChan[channelID]
}

func (e *Engine) bindConn(channelID uint32, c *conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connsByChan[channelID] = c
}

func (e *Engine) unbindConn(channelID uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.connsByChan, channelID)
}

func (e *Engine) handleConnection(raw net.Conn) {
	defer raw.Close()

	if e.cfg.Policy != nil {
		ip := extractIP(raw.RemoteAddr().String())
		if e.cfg.Policy.IsBanned(ip) {
			return
		}
		if !e.cfg.Policy.ApplyConnectionLimit(ip) {
			return
		}
	}

	c, err := e.handshake(raw)
	if err != nil {
		util.Warnf("pool: handshake with %s failed: %v", raw.RemoteAddr(), err)
		return
	}
	defer func() {
		for _, id := range c.channelIDs() {
			e.registry.Remove(id)
			e.unbindConn(id)
		}
	}()

	if err := e.negotiateSetup(c); err != nil {
		util.Warnf("pool: setup negotiation with %s failed: %v", raw.RemoteAddr(), err)
		return
	}

	for {
		frame, err := c.receive()
		if err != nil {
			return
		}
		if err := e.dispatchFrame(c, frame); err != nil {
			util.Warnf("pool: %s: %v", raw.RemoteAddr(), err)
			return
		}
	}
}

func (e *Engine) handshake(raw net.Conn) (*conn, error) {
	transport, err := setup.Responder(raw, e.cfg.StaticKey)
	if err != nil {
		return nil, err
	}
	return newConn(raw, transport), nil
}

func (e *Engine) negotiateSetup(c *conn) error {
	_, err := setup.AwaitRequest(c.receive, func(msgType uint8, payload []byte) error {
		return c.send(0, msgType, payload)
	}, sv2common.ProtocolMining)
	return err
}

// extractIP strips the port from a net.Addr's string form, same as
// internal/translator/downstream.go's helper of the same name; the two
// packages don't share a common base package for this one function.
func extractIP(remoteAddr string) string {
	if idx := strings.LastIndex(remoteAddr, ":"); idx != -1 {
		ip := remoteAddr[:idx]
		ip = strings.TrimPrefix(ip, "[")
		ip = strings.TrimSuffix(ip, "]")
		return ip
	}
	return remoteAddr
}

// initialTarget derives a channel's starting target from its claimed
// hash rate, never weaker than the ceiling the miner itself requested
// via MaxTarget.
func initialTarget(nominalHashRate float64, sharesPerMinute float64, ceiling *big.Int) *big.Int {
	t := target.HashRateToTarget(nominalHashRate, sharesPerMinute)
	if ceiling != nil && ceiling.Sign() > 0 && t.Cmp(ceiling) > 0 {
		return new(big.Int).Set(ceiling)
	}
	return t
}
