package translator

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/hashpool/hashpool/internal/channel"
	"github.com/hashpool/hashpool/internal/policy"
	"github.com/hashpool/hashpool/internal/sv2common"
	"github.com/hashpool/hashpool/internal/sv2mining"
	"github.com/hashpool/hashpool/internal/sv2noise"
	"github.com/hashpool/hashpool/internal/target"
	"github.com/hashpool/hashpool/internal/util"
	"github.com/hashpool/hashpool/internal/vardiff"
)

// WalletCollaborator redeems a paid quote on behalf of the SV1 miner
// that earned it. The wallet itself (key custody, Cashu token storage)
// is out of scope; Manager only needs somewhere to hand a paid quote.
type WalletCollaborator interface {
	Redeem(ctx context.Context, workerIdentity, quoteID string, amount uint64) error
}

// Config configures one translator Manager.
type Config struct {
	Aggregated bool

	ListenAddr        string
	WSListenAddr      string // empty disables the WebSocket listener
	UpstreamAddr      string
	UpstreamStaticKey [sv2noise.DHKeySize]byte
	EndpointHost      string
	EndpointPort      uint16

	// LockingKey binds every upstream channel this translator opens,
	// aggregated or not: SV1 has no per-miner locking-key field, so
	// per-downstream ehash attribution is carried entirely by the
	// (channel_id, sequence_number) correlation table rather than by
	// a distinct key per miner.
	LockingKey *[33]byte

	MinExtranonceSize int // requested from upstream; must exceed the 4-byte local suffix
	Extranonce2Size   int // fallback advertised size if upstream grants less than requested

	SharesPerMinute  float64
	VardiffConfig    vardiff.Config
	ClockSkewSeconds uint32

	QuoteTTL time.Duration // how long a (channel_id, sequence_number) -> miner binding survives for quote correlation
	Policy   *policy.PolicyServer
}

type pendingKey struct {
	channelID      uint32
	sequenceNumber uint32
}

type pendingShare struct {
	downstream *downstream
	requestID  interface{}
	createdAt  time.Time
}

type quoteOwner struct {
	downstream     *downstream
	workerIdentity string
	createdAt      time.Time
}

// upstreamLink is the job-distribution/prevhash-tracking state shared
// by every downstream it serves: one link for the whole translator in
// aggregated mode, one link per downstream otherwise.
type upstreamLink struct {
	upstream     *Upstream
	channelID    uint32
	jobs         *channel.JobStore
	userIdentity string // retained for OpenExtendedMiningChannel on reconnect

	extranoncePrefix []byte
	extranonceSize   uint16

	mu           sync.Mutex
	prevHash     sv2mining.SetNewPrevHash
	havePrevHash bool
	cleanPending bool
	latestJob    *channel.Job

	recipients func() []*downstream
}

// latest returns the most recent job distributed on this link, if any,
// so a newly subscribing downstream can be caught up immediately
// instead of waiting for the next NewExtendedMiningJob.
func (l *upstreamLink) latest() *channel.Job {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latestJob
}

// downstream is one SV1 miner's full translator-side state: its
// Session (SV1 wire), its local channel.Channel (the spec §4.3
// pipeline reused verbatim as a downstream-target pre-check: duplicate
// detection and header reconstruction need no translator-specific
// logic), and the upstream link it rides.
type downstream struct {
	session     *Session
	ch          *channel.Channel
	localSuffix []byte
	link        *upstreamLink

	mu             sync.Mutex
	upstreamTarget *big.Int
	pendingTarget  *big.Int
	vardiffState   *vardiff.State
}

// Manager implements Dispatcher, wiring SV1 downstream sessions to one
// or more SV2 upstream links. Grounded on internal/pool/engine.go's
// accept-loop/registry coordinator, generalized from a single SV2
// responder to a proxy juggling many SV1 sessions against one or more
// SV2 initiator connections.
type Manager struct {
	cfg    Config
	wallet WalletCollaborator
	server *Server
	wsServer *WSServer

	aggLink *upstreamLink // set only when cfg.Aggregated

	mu          sync.Mutex
	downstreams map[uint64]*downstream

	pendingMu sync.Mutex
	pending   map[pendingKey]*pendingShare

	quoteMu     sync.Mutex
	quoteOwners map[pendingKey]*quoteOwner
	seenQuotes  map[string]struct{}

	seqMu   sync.Mutex
	nextSeq uint32

	quit chan struct{}
	wg   sync.WaitGroup
}

func NewManager(cfg Config, wallet WalletCollaborator) (*Manager, error) {
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = 10 * time.Minute
	}
	if cfg.MinExtranonceSize <= 4 {
		cfg.MinExtranonceSize = 8
	}
	m := &Manager{
		cfg:         cfg,
		wallet:      wallet,
		downstreams: make(map[uint64]*downstream),
		pending:     make(map[pendingKey]*pendingShare),
		quoteOwners: make(map[pendingKey]*quoteOwner),
		seenQuotes:  make(map[string]struct{}),
		quit:        make(chan struct{}),
	}

	if cfg.Aggregated {
		link, err := m.dialLink("translator-aggregate", func() []*downstream { return m.allDownstreams() })
		if err != nil {
			return nil, err
		}
		m.aggLink = link
	}

	ids := newIDAllocator()
	m.server = NewServer(cfg.ListenAddr, cfg.Policy, m, ids, cfg.Extranonce2Size)
	if cfg.WSListenAddr != "" {
		m.wsServer = NewWSServer(cfg.WSListenAddr, cfg.Policy, m, ids, cfg.Extranonce2Size)
	}
	return m, nil
}

func (m *Manager) Start() error {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.sweepLoop()
	}()
	if err := m.server.Start(); err != nil {
		return err
	}
	if m.wsServer != nil {
		return m.wsServer.Start()
	}
	return nil
}

func (m *Manager) Stop() {
	close(m.quit)
	m.server.Stop()
	if m.wsServer != nil {
		m.wsServer.Stop()
	}
	if m.aggLink != nil {
		m.aggLink.upstream.Close()
	}
	m.mu.Lock()
	for _, dn := range m.downstreams {
		if !m.cfg.Aggregated && dn.link != nil {
			dn.link.upstream.Close()
		}
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) allDownstreams() []*downstream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*downstream, 0, len(m.downstreams))
	for _, dn := range m.downstreams {
		out = append(out, dn)
	}
	return out
}

// dialLink opens one upstream SV2 connection and extended channel,
// wiring its callbacks to drive job distribution/prevhash tracking for
// whatever recipients() returns at call time.
func (m *Manager) dialLink(userIdentity string, recipients func() []*downstream) (*upstreamLink, error) {
	u, success, err := m.openUpstreamLink(userIdentity)
	if err != nil {
		return nil, err
	}

	link := &upstreamLink{
		upstream:         u,
		channelID:        success.ChannelID,
		jobs:             channel.NewJobStore(),
		userIdentity:     userIdentity,
		extranoncePrefix: success.ExtranoncePrefix,
		extranonceSize:   success.ExtranonceSize,
		recipients:       recipients,
	}
	m.wireLinkCallbacks(link)

	m.wg.Add(1)
	go m.runLink(link)

	return link, nil
}

// openUpstreamLink dials the pool and opens one extended mining
// channel, the half of dialLink that redialLink also needs to repeat
// on reconnect.
func (m *Manager) openUpstreamLink(userIdentity string) (*Upstream, sv2mining.OpenExtendedMiningChannelSuccess, error) {
	setup := sv2common.SetupConnection{
		Protocol:     sv2common.ProtocolMining,
		MinVersion:   2,
		MaxVersion:   2,
		EndpointHost: m.cfg.EndpointHost,
		EndpointPort: m.cfg.EndpointPort,
		VendorName:   "hashpool-translator",
	}
	u, err := DialUpstream(m.cfg.UpstreamAddr, m.cfg.UpstreamStaticKey, setup)
	if err != nil {
		return nil, sv2mining.OpenExtendedMiningChannelSuccess{}, err
	}

	open := sv2mining.OpenExtendedMiningChannel{
		RequestID:         1,
		UserIdentity:      userIdentity,
		NominalHashRate:   uint64(m.cfg.VardiffConfig.MinIndividualHashrate),
		MaxTarget:         target.ToU256LE(target.Max),
		MinExtranonceSize: uint16(m.cfg.MinExtranonceSize),
		LockingKey:        m.cfg.LockingKey,
	}
	success, err := u.OpenExtendedMiningChannel(open)
	if err != nil {
		u.Close()
		return nil, sv2mining.OpenExtendedMiningChannelSuccess{}, fmt.Errorf("translator: open upstream channel: %w", err)
	}
	return u, success, nil
}

// runLink drives link's message loop and, whenever it dies, redials
// with exponential backoff until it reconnects or the Manager stops.
// Grounded on ShaeOJ-GoVault's internal/upstream/client.go reconnect
// loop (doubling backoff capped at 30s, jittered to avoid a reconnect
// thundering herd).
func (m *Manager) runLink(link *upstreamLink) {
	defer m.wg.Done()
	for {
		if err := link.upstream.Run(); err != nil {
			util.Warnf("translator: upstream link for channel %d closed: %v", link.channelID, err)
		}

		select {
		case <-m.quit:
			return
		default:
		}

		if !m.redialLink(link) {
			return
		}
	}
}

// redialLink retries openUpstreamLink until it succeeds or the Manager
// stops (returning false), then swaps the new connection and channel
// into link in place so every downstream still holding a pointer to it
// (aggLink, dn.link) keeps working without re-subscribing.
func (m *Manager) redialLink(link *upstreamLink) bool {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		select {
		case <-m.quit:
			return false
		case <-time.After(backoff):
		}

		u, success, err := m.openUpstreamLink(link.userIdentity)
		if err != nil {
			util.Warnf("translator: reconnect upstream link %q failed, retrying in %v: %v", link.userIdentity, backoff, err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			backoff += time.Duration(rand.Intn(1000)) * time.Millisecond
			continue
		}

		link.mu.Lock()
		link.upstream = u
		link.channelID = success.ChannelID
		link.jobs = channel.NewJobStore()
		link.extranoncePrefix = success.ExtranoncePrefix
		link.extranonceSize = success.ExtranonceSize
		link.havePrevHash = false
		link.cleanPending = false
		link.latestJob = nil
		link.mu.Unlock()
		m.wireLinkCallbacks(link)

		util.Infof("translator: upstream link %q reconnected as channel %d", link.userIdentity, success.ChannelID)
		return true
	}
}

func (m *Manager) wireLinkCallbacks(link *upstreamLink) {
	link.upstream.OnSetNewPrevHash = func(msg sv2mining.SetNewPrevHash) {
		link.mu.Lock()
		link.prevHash = msg
		link.havePrevHash = true
		link.cleanPending = true
		link.mu.Unlock()
	}

	link.upstream.OnNewExtendedMiningJob = func(msg sv2mining.NewExtendedMiningJob) {
		link.mu.Lock()
		if !link.havePrevHash {
			link.mu.Unlock()
			util.Warnf("translator: NewExtendedMiningJob for channel %d before any SetNewPrevHash, dropping", msg.ChannelID)
			return
		}
		ph := link.prevHash
		clean := link.cleanPending
		link.cleanPending = false
		link.mu.Unlock()

		job := channel.NewJob(msg.JobID, msg.Version, ph.PrevHash, ph.MinNTime, ph.NBits, msg.FutureJob, msg.MerklePath, msg.CoinbaseTxPrefix, msg.CoinbaseTxSuffix)
		link.jobs.Put(job)
		link.mu.Lock()
		link.latestJob = job
		link.mu.Unlock()

		params := notifyParams(job, clean)
		for _, dn := range link.recipients() {
			if !dn.session.IsAuthorized() {
				continue
			}
			if err := dn.session.sendNotify("mining.notify", params); err != nil {
				util.Warnf("translator: session %d: send mining.notify: %v", dn.session.ID, err)
			}
		}
	}

	link.upstream.OnSetTarget = func(msg sv2mining.SetTarget) {
		newUpstreamTarget := target.FromU256LE(msg.MaximumTarget)
		for _, dn := range link.recipients() {
			m.applyUpstreamTarget(dn, newUpstreamTarget)
		}
	}

	link.upstream.OnSubmitSharesSuccess = func(msg sv2mining.SubmitSharesSuccess) {
		key := pendingKey{msg.ChannelID, msg.LastSequenceNumber}
		if ps, ok := m.takePending(key); ok {
			ps.downstream.session.sendResult(ps.requestID, true)
		}
	}

	link.upstream.OnSubmitSharesError = func(msg sv2mining.SubmitSharesError) {
		key := pendingKey{msg.ChannelID, msg.SequenceNumber}
		if ps, ok := m.takePending(key); ok {
			code, message := mapShareError(msg.ErrorCode)
			ps.downstream.session.sendError(ps.requestID, code, message)
		}
	}

	link.upstream.OnMintQuoteNotification = func(msg sv2mining.MintQuoteNotification) {
		m.handleMintQuoteNotification(msg)
	}

	link.upstream.OnMintQuoteFailure = func(msg sv2mining.MintQuoteFailure) {
		key := pendingKey{msg.ChannelID, msg.SequenceNumber}
		m.dropQuoteOwner(key)
		util.Warnf("translator: mint quote failed for channel %d seq %d: %s", msg.ChannelID, msg.SequenceNumber, msg.ErrorCode)
	}
}

// applyUpstreamTarget records the upstream's latest granted target for
// dn and, if a stronger target had been deferred waiting for exactly
// this confirmation, applies max(pending, upstream) now.
func (m *Manager) applyUpstreamTarget(dn *downstream, newUpstreamTarget *big.Int) {
	dn.mu.Lock()
	defer dn.mu.Unlock()
	dn.upstreamTarget = newUpstreamTarget
	if dn.pendingTarget == nil {
		return
	}
	applied := dn.pendingTarget
	if applied.Cmp(newUpstreamTarget) < 0 {
		applied = newUpstreamTarget
	}
	dn.pendingTarget = nil
	m.setDownstreamTargetLocked(dn, dn.ch.NominalHashRate(), applied)
}

// setDownstreamTargetLocked applies newTarget to dn.ch and pushes
// mining.set_difficulty. Caller must hold dn.mu.
func (m *Manager) setDownstreamTargetLocked(dn *downstream, nominalHashRate float64, newTarget *big.Int) {
	applied := dn.ch.UpdateNominalHashRate(nominalHashRate, dn.upstreamTarget, newTarget)
	diff := target.ToDifficulty(applied)
	if diff == 0 {
		diff = 1
	}
	if err := dn.session.sendNotify("mining.set_difficulty", []interface{}{diff}); err != nil {
		util.Warnf("translator: session %d: send mining.set_difficulty: %v", dn.session.ID, err)
	}
}

// HandleSubscribe implements Dispatcher: allocates the downstream's
// local extranonce1 (upstream-granted prefix plus this session's own
// 4-byte suffix) and registers it against the right upstream link.
func (m *Manager) HandleSubscribe(s *Session, req *Request) {
	localSuffix, err := hex.DecodeString(s.ExtraNonce1)
	if err != nil {
		s.sendError(req.ID, -1, "internal error")
		return
	}

	var link *upstreamLink
	if m.cfg.Aggregated {
		link = m.aggLink
	} else {
		l, err := m.dialLink(fmt.Sprintf("translator-%d", s.ID), func() []*downstream {
			if dn, ok := m.downstream(s.ID); ok {
				return []*downstream{dn}
			}
			return nil
		})
		if err != nil {
			util.Warnf("translator: session %d: dial non-aggregated upstream: %v", s.ID, err)
			s.sendError(req.ID, -1, "upstream unavailable")
			return
		}
		link = l
	}

	full := append(append([]byte{}, link.extranoncePrefix...), localSuffix...)
	extranonce2Size := int(link.extranonceSize) - len(localSuffix)
	if extranonce2Size < 0 {
		extranonce2Size = 0
	}

	ceiling := target.Max
	initTarget := target.HashRateToTarget(m.cfg.VardiffConfig.MinIndividualHashrate, m.cfg.SharesPerMinute)

	ch := channel.NewChannel(0, channel.KindExtended, "", m.cfg.VardiffConfig.MinIndividualHashrate, initTarget, ceiling, m.cfg.VardiffConfig, time.Now().Unix())
	ch.ExtranoncePrefix = full
	ch.ExtranonceSize = uint16(extranonce2Size)
	ch.Jobs = link.jobs

	dn := &downstream{
		session:      s,
		ch:           ch,
		localSuffix:  localSuffix,
		link:         link,
		vardiffState: vardiff.NewState(time.Now().Unix()),
	}

	m.mu.Lock()
	m.downstreams[s.ID] = dn
	m.mu.Unlock()

	result := []interface{}{
		[][]string{
			{"mining.notify", fmt.Sprintf("%d", s.ID)},
			{"mining.set_difficulty", fmt.Sprintf("%d", s.ID)},
		},
		hex.EncodeToString(full),
		extranonce2Size,
	}
	s.sendResult(req.ID, result)
	s.sendNotify("mining.set_difficulty", []interface{}{target.ToDifficulty(initTarget)})

	if job := link.latest(); job != nil {
		s.sendNotify("mining.notify", notifyParams(job, true))
	}
}

// HandleAuthorize implements Dispatcher. Authorization requires both a
// successful reply and recording the worker name in the session's
// authorized set (Session.Authorize records it, and the reply is sent
// only after that call); a handler
// that replied success without calling Authorize would leave
// HandleSubmit unable to tell the session is dispatchable, which is
// exactly the known defect this split guards against.
func (m *Manager) HandleAuthorize(s *Session, req *Request) {
	if len(req.Params) < 1 {
		s.sendError(req.ID, -1, "Invalid params")
		return
	}
	username, _ := req.Params[0].(string)
	if username == "" {
		s.sendError(req.ID, -1, "Invalid worker name")
		return
	}
	ip := extractIP(s.RemoteAddr)
	if m.cfg.Policy != nil && !m.cfg.Policy.ApplyLoginPolicy(username, ip) {
		s.sendError(req.ID, -1, "Worker blacklisted")
		return
	}
	s.Authorize(username)
	s.sendResult(req.ID, true)
}

// HandleSubmit implements Dispatcher: spec §4.3's pipeline (reused
// directly through channel.Validate) as a local pre-check against the
// downstream's own target, then forward upstream with the extranonce
// rewritten to include this downstream's local suffix so the pool's
// own header reconstruction (prefix it granted plus whatever Extranonce
// the translator sends) lands on the miner's real coinbase.
func (m *Manager) HandleSubmit(s *Session, req *Request) {
	if !s.IsAuthorized() {
		s.sendError(req.ID, 24, "Unauthorized worker")
		return
	}
	dn, ok := m.downstream(s.ID)
	if !ok {
		s.sendError(req.ID, 21, "Job not found")
		return
	}
	ip := extractIP(s.RemoteAddr)

	if len(req.Params) < 5 {
		if m.cfg.Policy != nil {
			m.cfg.Policy.ApplySharePolicy(ip, false)
		}
		s.sendError(req.ID, -1, "Invalid params")
		return
	}

	jobIDStr, _ := req.Params[1].(string)
	extranonce2Hex, _ := req.Params[2].(string)
	ntimeHex, _ := req.Params[3].(string)
	nonceHex, _ := req.Params[4].(string)

	jobID, err := parseJobID(jobIDStr)
	if err != nil {
		s.sendError(req.ID, 21, "Job not found")
		return
	}
	job, ok := dn.ch.Jobs.Get(jobID)
	if !ok {
		if m.cfg.Policy != nil {
			m.cfg.Policy.ApplySharePolicy(ip, false)
		}
		s.sendError(req.ID, 21, "Job not found")
		return
	}

	extranonce2, err := hex.DecodeString(extranonce2Hex)
	if err != nil {
		s.sendError(req.ID, -1, "Invalid extranonce2")
		return
	}
	ntime, err := parseHexU32(ntimeHex)
	if err != nil {
		s.sendError(req.ID, -1, "Invalid ntime")
		return
	}
	nonce, err := parseHexU32(nonceHex)
	if err != nil {
		s.sendError(req.ID, -1, "Invalid nonce")
		return
	}
	version := job.Version
	if len(req.Params) >= 6 {
		if vHex, ok := req.Params[5].(string); ok && vHex != "" {
			if v, err := parseHexU32(vHex); err == nil {
				version = v
			}
		}
	}

	seq := m.allocateSequenceNumber()
	sub := channel.Submission{
		SequenceNumber: seq,
		JobID:          jobID,
		NTime:          ntime,
		Nonce:          nonce,
		Version:        version,
		Extranonce:     extranonce2,
	}

	result := channel.Validate(dn.ch, sub, time.Now().Unix(), m.cfg.ClockSkewSeconds, 0, nil)
	if !result.Accepted {
		if m.cfg.Policy != nil {
			if !m.cfg.Policy.ApplySharePolicy(ip, false) {
				s.Close()
			}
		}
		code, message := mapShareError(result.ErrorCode)
		s.sendError(req.ID, code, message)
		return
	}

	if m.cfg.Policy != nil {
		m.cfg.Policy.ApplySharePolicy(ip, true)
	}

	m.recordVardiff(dn)

	upstreamExtranonce := append(append([]byte{}, dn.localSuffix...), extranonce2...)
	m.registerPending(pendingKey{dn.link.channelID, seq}, dn, req.ID)
	m.registerQuoteOwner(pendingKey{dn.link.channelID, seq}, dn, s.Worker())

	submit := sv2mining.SubmitSharesExtended{
		ChannelID:      dn.link.channelID,
		SequenceNumber: seq,
		JobID:          jobID,
		NTime:          ntime,
		Nonce:          nonce,
		Version:        version,
		Extranonce:     upstreamExtranonce,
	}
	if err := dn.link.upstream.SubmitSharesExtended(submit); err != nil {
		util.Warnf("translator: forward share upstream for channel %d: %v", dn.link.channelID, err)
	}
	// The SV1 response is sent asynchronously once the upstream's
	// SubmitSharesSuccess/SubmitSharesError arrives, correlated by
	// (channel_id, sequence_number) in OnSubmitSharesSuccess/Error.
}

// OnDisconnect implements Dispatcher: evicts the downstream and its
// pending correlation-table entries, per the spec's concurrency model.
func (m *Manager) OnDisconnect(s *Session) {
	m.mu.Lock()
	dn, ok := m.downstreams[s.ID]
	delete(m.downstreams, s.ID)
	m.mu.Unlock()
	if !ok {
		return
	}
	if !m.cfg.Aggregated && dn.link != nil {
		dn.link.upstream.Close()
	}
	m.evictDownstream(dn)
}

func (m *Manager) downstream(sessionID uint64) (*downstream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dn, ok := m.downstreams[sessionID]
	return dn, ok
}

func (m *Manager) allocateSequenceNumber() uint32 {
	m.seqMu.Lock()
	defer m.seqMu.Unlock()
	m.nextSeq++
	return m.nextSeq
}

func (m *Manager) registerPending(key pendingKey, dn *downstream, requestID interface{}) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	m.pending[key] = &pendingShare{downstream: dn, requestID: requestID, createdAt: time.Now()}
}

func (m *Manager) takePending(key pendingKey) (*pendingShare, bool) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	ps, ok := m.pending[key]
	if ok {
		delete(m.pending, key)
	}
	return ps, ok
}

func (m *Manager) registerQuoteOwner(key pendingKey, dn *downstream, workerIdentity string) {
	m.quoteMu.Lock()
	defer m.quoteMu.Unlock()
	m.quoteOwners[key] = &quoteOwner{downstream: dn, workerIdentity: workerIdentity, createdAt: time.Now()}
}

func (m *Manager) dropQuoteOwner(key pendingKey) {
	m.quoteMu.Lock()
	defer m.quoteMu.Unlock()
	delete(m.quoteOwners, key)
}

func (m *Manager) handleMintQuoteNotification(msg sv2mining.MintQuoteNotification) {
	key := pendingKey{msg.ChannelID, msg.SequenceNumber}
	m.quoteMu.Lock()
	owner, ok := m.quoteOwners[key]
	if ok {
		delete(m.quoteOwners, key)
	}
	_, seen := m.seenQuotes[msg.QuoteID]
	if !seen {
		m.seenQuotes[msg.QuoteID] = struct{}{}
	}
	m.quoteMu.Unlock()

	if !ok {
		util.Warnf("translator: mint quote notification %s for unknown (channel %d, seq %d)", msg.QuoteID, msg.ChannelID, msg.SequenceNumber)
		return
	}
	if seen {
		// Repeated delivery of an already-redeemed quote_id: dedup so
		// at most one redemption attempt is made, per the quote
		// idempotence requirement.
		return
	}
	if m.wallet == nil {
		return
	}
	if err := m.wallet.Redeem(context.Background(), owner.workerIdentity, msg.QuoteID, msg.Amount); err != nil {
		util.Warnf("translator: redeem quote %s for %s failed: %v", msg.QuoteID, owner.workerIdentity, err)
	}
}

// evictDownstream drops any pending share-ack or quote-owner entries
// belonging to dn, so a disconnected miner's in-flight correlations
// don't leak.
func (m *Manager) evictDownstream(dn *downstream) {
	m.pendingMu.Lock()
	for k, ps := range m.pending {
		if ps.downstream == dn {
			delete(m.pending, k)
		}
	}
	m.pendingMu.Unlock()

	m.quoteMu.Lock()
	for k, qo := range m.quoteOwners {
		if qo.downstream == dn {
			delete(m.quoteOwners, k)
		}
	}
	m.quoteMu.Unlock()
}

// recordVardiff folds one accepted local share into dn's vardiff
// window and applies or defers the resulting target per spec §4.5:
// weaker targets apply immediately, stronger ones wait for the
// upstream's own SetTarget to confirm a floor at least that strong.
func (m *Manager) recordVardiff(dn *downstream) {
	dn.mu.Lock()
	dn.vardiffState.RecordShare()
	now := time.Now().Unix()
	res := vardiff.Adjust(m.cfg.VardiffConfig, dn.vardiffState, dn.ch.NominalHashRate(), now)
	if !res.Adjusted {
		dn.mu.Unlock()
		return
	}
	newTarget := target.HashRateToTarget(res.NewHashRate, m.cfg.SharesPerMinute)
	if dn.upstreamTarget != nil && newTarget.Cmp(dn.upstreamTarget) < 0 {
		dn.pendingTarget = newTarget
		dn.mu.Unlock()
		return
	}
	m.setDownstreamTargetLocked(dn, res.NewHashRate, newTarget)
	dn.mu.Unlock()
}

// sweepLoop evicts share-ack correlations older than the spec's 60s
// TTL and quote-owner correlations older than cfg.QuoteTTL.
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.quit:
			return
		case <-ticker.C:
			now := time.Now()
			m.pendingMu.Lock()
			for k, ps := range m.pending {
				if now.Sub(ps.createdAt) > 60*time.Second {
					delete(m.pending, k)
				}
			}
			m.pendingMu.Unlock()

			m.quoteMu.Lock()
			for k, qo := range m.quoteOwners {
				if now.Sub(qo.createdAt) > m.cfg.QuoteTTL {
					delete(m.quoteOwners, k)
				}
			}
			m.quoteMu.Unlock()
		}
	}
}

func parseHexU32(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// mapShareError translates an SV2 share error code into the classic
// SV1 (code, message) rejection pair.
func mapShareError(code string) (int, string) {
	switch code {
	case sv2mining.ErrUnknownChannel, sv2mining.ErrInvalidJobID, sv2mining.ErrStaleShare:
		return 21, "Job not found"
	case sv2mining.ErrDuplicateShare:
		return 22, "Duplicate share"
	case sv2mining.ErrDifficultyTooLow, sv2mining.ErrShareDifficultyTooLow:
		return 23, "Low difficulty share"
	default:
		return 20, code
	}
}
