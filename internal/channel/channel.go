// Package channel implements a pool-side SV2 mining channel: its job
// store, share-validation pipeline, and vardiff-driven target
// updates. Grounded on internal/master/master.go's processShare (job
// lookup, validation, block detection shape) and on
// other_examples/042c81c6_..._sv2_conn.go's channel/job bookkeeping
// (allocateChannelID, channelTargets, merkle-root reconstruction),
// generalized from TOS's flat-difficulty header format to SV2
// channels with Bitcoin-style headers and per-channel targets.
package channel

import (
	"math/big"
	"sync"

	"github.com/hashpool/hashpool/internal/lockingkey"
	"github.com/hashpool/hashpool/internal/vardiff"
)

// Kind distinguishes standard channels (extranonce fully owned by the
// pool) from extended channels (the miner varies a suffix).
type Kind int

const (
	KindStandard Kind = iota
	KindExtended
)

// Channel holds one mining channel's negotiated state: its target,
// locking key, job store, and vardiff bookkeeping. Access is
// serialized by mu; the job store has its own internal locking since
// validation reads it far more often than the channel's own fields
// change.
type Channel struct {
	ID           uint32
	Kind         Kind
	UserIdentity string

	ExtranoncePrefix []byte
	ExtranonceSize   uint16 // extended channels only

	LockingKey *lockingkey.Key

	AcknowledgeEveryShare bool

	Jobs *JobStore

	mu              sync.Mutex
	nominalHashRate float64
	target          *big.Int // current_target: numerically smaller is harder
	ceilingTarget   *big.Int // negotiated weakest allowed target (MaxTarget at open)

	vardiffCfg   vardiff.Config
	vardiffState *vardiff.State

	lastSequenceNumber   uint32
	submitsAcceptedCount uint32
	sharesSum            uint64
}

// NewChannel constructs a channel with its initial target already
// computed by the caller (internal/target.HashRateToTarget) and a
// freshly-seeded vardiff state.
func NewChannel(id uint32, kind Kind, userIdentity string, nominalHashRate float64, initialTarget, ceilingTarget *big.Int, cfg vardiff.Config, nowUnix int64) *Channel {
	return &Channel{
		ID:              id,
		Kind:            kind,
		UserIdentity:    userIdentity,
		Jobs:            NewJobStore(),
		nominalHashRate: nominalHashRate,
		target:          initialTarget,
		ceilingTarget:   ceilingTarget,
		vardiffCfg:      cfg,
		vardiffState:    vardiff.NewState(nowUnix),
	}
}

func (c *Channel) Target() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.target)
}

func (c *Channel) NominalHashRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nominalHashRate
}

// SetLockingKey registers the channel's ehash binding. A nil key
// leaves the channel without one; quote dispatch then fails per
// share (non-fatally) with MissingLockingKey.
func (c *Channel) SetLockingKey(k *lockingkey.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LockingKey = k
}

// RecordAccepted folds one accepted share into the channel's
// cumulative counters and vardiff window, returning the updated
// cumulative counts for a SubmitSharesSuccess acknowledgement.
func (c *Channel) RecordAccepted(sequenceNumber uint32) (lastSeq uint32, acceptedCount uint32, sharesSum uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sequenceNumber > c.lastSequenceNumber {
		c.lastSequenceNumber = sequenceNumber
	}
	c.submitsAcceptedCount++
	c.sharesSum++
	c.vardiffState.RecordShare()
	return c.lastSequenceNumber, c.submitsAcceptedCount, c.sharesSum
}

// MaybeRetarget runs one vardiff evaluation against the channel's
// current hash-rate, applying and returning the new target if the
// adjustment clears the hysteresis band. The channel's ceiling
// (negotiated MaxTarget, i.e. the weakest allowed target) is enforced
// by refusing to move the target numerically above it; per spec §4.4
// this is logged and dropped by the caller rather than closing the
// channel, so MaybeRetarget simply declines to return a change.
func (c *Channel) MaybeRetarget(nowUnix int64, retarget func(hashRate float64) *big.Int) (newTarget *big.Int, adjusted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := vardiff.Adjust(c.vardiffCfg, c.vardiffState, c.nominalHashRate, nowUnix)
	if !res.Adjusted {
		return nil, false
	}
	t := retarget(res.NewHashRate)
	if c.ceilingTarget != nil && t.Cmp(c.ceilingTarget) > 0 {
		return nil, false
	}
	c.nominalHashRate = res.NewHashRate
	c.target = t
	return new(big.Int).Set(t), true
}

// UpdateNominalHashRate applies a new claimed hash-rate and ceiling
// (from an UpdateChannel message) and recomputes the target the same
// way channel-open did, clamping to the new ceiling.
func (c *Channel) UpdateNominalHashRate(nominalHashRate float64, ceiling *big.Int, newTarget *big.Int) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nominalHashRate = nominalHashRate
	c.ceilingTarget = ceiling
	if ceiling != nil && ceiling.Sign() > 0 && newTarget.Cmp(ceiling) > 0 {
		newTarget = new(big.Int).Set(ceiling)
	}
	c.target = newTarget
	return new(big.Int).Set(c.target)
}

// Registry tracks all open channels on one connection (or, in
// aggregated translator mode, one upstream link).
type Registry struct {
	mu     sync.RWMutex
	byID   map[uint32]*Channel
	nextID uint32
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[uint32]*Channel)}
}

// Allocate reserves the next channel_id. IDs start at 1; 0 is never
// issued so callers can use it as a "no channel" sentinel.
func (r *Registry) Allocate() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID
}

func (r *Registry) Add(c *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[c.ID] = c
}

func (r *Registry) Get(id uint32) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

func (r *Registry) Remove(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

func (r *Registry) IDs() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint32, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	return out
}
