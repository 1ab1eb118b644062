// Package quotehub wires an accepted share to a mint quote and routes
// the mint's eventual payment notification back to the channel that
// earned it. Grounded on internal/rpc/tos_client.go's request/response
// shape for the mint side of the wire, and on internal/master/master.go's
// shareProcessLoop for the bounded-channel worker-loop pattern (a single
// consumer goroutine draining a buffered channel of work items, dropping
// the oldest on overflow rather than blocking the share-validation path).
package quotehub

import (
	"context"
	"sync"

	"github.com/hashpool/hashpool/internal/lockingkey"
	"github.com/hashpool/hashpool/internal/sv2mintquote"
	"github.com/hashpool/hashpool/internal/util"
)

// QuoteSender delivers a MintQuoteRequest to the mint over the
// dedicated pool<->mint connection and waits for its response. The
// concrete implementation lives with whatever owns that connection;
// Dispatcher only depends on this interface so it can be tested and
// built independently of the transport.
type QuoteSender interface {
	SendMintQuoteRequest(ctx context.Context, req sv2mintquote.MintQuoteRequest) (sv2mintquote.MintQuoteResponse, error)
}

// PendingQuote tracks a quote from dispatch until the mint reports it
// paid (or it is abandoned).
type PendingQuote struct {
	ChannelID      uint32
	SequenceNumber uint32
	QuoteID        string
	Amount         uint64
}

type dispatchItem struct {
	channelID      uint32
	sequenceNumber uint32
	req            sv2mintquote.MintQuoteRequest
}

// DefaultQueueSize is the bounded dispatch queue's capacity. Past this,
// Dispatch drops the oldest queued item to make room rather than block
// the share-validation path that calls it.
const DefaultQueueSize = 100

// Dispatcher enqueues MintQuoteRequests built from accepted shares and
// drains them to the mint on a single worker goroutine.
type Dispatcher struct {
	sender QuoteSender
	queue  chan dispatchItem

	mu      sync.Mutex
	running bool

	pendingMu sync.RWMutex
	pending   map[string]PendingQuote // keyed by quote ID once known

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewDispatcher(sender QuoteSender, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		sender:  sender,
		queue:   make(chan dispatchItem, queueSize),
		pending: make(map[string]PendingQuote),
	}
}

// Start launches the worker goroutine that drains the dispatch queue.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.wg.Add(1)
	go d.run(runCtx)
}

func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.running = false
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) isRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Dispatch builds a MintQuoteRequest for an accepted share and enqueues
// it. lockingKey must already be the channel's parsed, validated
// locking key; a nil key is reported as MissingLockingKeyError rather
// than silently skipped, since a channel with no locking key can never
// redeem ehash.
func (d *Dispatcher) Dispatch(channelID, sequenceNumber uint32, headerHash [32]byte, lockingKey *lockingkey.Key, amount uint64, unit string) error {
	if !d.isRunning() {
		return ErrMintDispatcherUnavailable
	}
	if lockingKey == nil {
		return &MissingLockingKeyError{ChannelID: channelID}
	}
	item := dispatchItem{
		channelID:      channelID,
		sequenceNumber: sequenceNumber,
		req: sv2mintquote.MintQuoteRequest{
			Amount:     amount,
			Unit:       unit,
			HeaderHash: headerHash,
			LockingKey: lockingKey.Bytes(),
		},
	}
	d.enqueue(item)
	return nil
}

// DispatchRaw is the same as Dispatch but takes a locking key that has
// not yet been parsed, surfacing the format/validity checks that
// channel-open time would normally have already done.
func (d *Dispatcher) DispatchRaw(channelID, sequenceNumber uint32, headerHash [32]byte, rawKey []byte, amount uint64, unit string) error {
	if !d.isRunning() {
		return ErrMintDispatcherUnavailable
	}
	if len(rawKey) == 0 {
		return &MissingLockingKeyError{ChannelID: channelID}
	}
	if len(rawKey) != 33 {
		return &InvalidLockingKeyFormatError{ChannelID: channelID, Length: len(rawKey)}
	}
	var raw [33]byte
	copy(raw[:], rawKey)
	key, err := lockingkey.Parse(raw)
	if err != nil {
		return &InvalidLockingKeyError{ChannelID: channelID, Reason: err.Error()}
	}
	return d.Dispatch(channelID, sequenceNumber, headerHash, &key, amount, unit)
}

// enqueue drops the oldest queued item to make room when full, so a
// slow or unreachable mint never backs up into share validation.
func (d *Dispatcher) enqueue(item dispatchItem) {
	select {
	case d.queue <- item:
		return
	default:
	}
	select {
	case dropped := <-d.queue:
		util.Warnf("quotehub: dispatch queue full, dropping oldest quote request (channel %d, seq %d)", dropped.channelID, dropped.sequenceNumber)
	default:
	}
	select {
	case d.queue <- item:
	default:
		util.Warnf("quotehub: dispatch queue still full after eviction, dropping quote request (channel %d, seq %d)", item.channelID, item.sequenceNumber)
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-d.queue:
			d.send(ctx, item)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, item dispatchItem) {
	resp, err := d.sender.SendMintQuoteRequest(ctx, item.req)
	if err != nil {
		util.Warnf("quotehub: %s", (&QuoteDispatchFailedError{Reason: err.Error()}).Error())
		return
	}
	d.pendingMu.Lock()
	d.pending[resp.QuoteID] = PendingQuote{
		ChannelID:      item.channelID,
		SequenceNumber: item.sequenceNumber,
		QuoteID:        resp.QuoteID,
		Amount:         item.req.Amount,
	}
	d.pendingMu.Unlock()
}

// TakePending removes and returns the pending record for quoteID, if
// any. Called by the Poller once the mint reports a quote paid.
func (d *Dispatcher) TakePending(quoteID string) (PendingQuote, bool) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	p, ok := d.pending[quoteID]
	if ok {
		delete(d.pending, quoteID)
	}
	return p, ok
}

// PendingCount reports how many quotes are awaiting payment, for
// metrics/tests.
func (d *Dispatcher) PendingCount() int {
	d.pendingMu.RLock()
	defer d.pendingMu.RUnlock()
	return len(d.pending)
}
