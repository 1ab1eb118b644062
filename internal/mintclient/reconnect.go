package mintclient

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/hashpool/hashpool/internal/sv2mintquote"
	"github.com/hashpool/hashpool/internal/sv2noise"
	"github.com/hashpool/hashpool/internal/util"
)

// ErrMintDisconnected is returned by ReconnectingSender while a redial
// is in progress; quotehub.Dispatcher treats it the same as any other
// transport error: it logs the failure, drops that request and moves on
// to the next queued one.
var ErrMintDisconnected = errors.New("mintclient: not currently connected to mint")

// ReconnectingSender wraps Sv2Sender with a background redial loop, so
// poold's single long-lived connection to the mint survives the mint
// restarting or a transient network drop instead of leaving quote
// dispatch permanently dead. Grounded on ShaeOJ-GoVault's
// internal/upstream/client.go reconnect loop (doubling backoff capped
// at 30s, jittered), adapted from its read-loop-driven reconnect
// trigger to one driven by SendMintQuoteRequest failures, since this
// connection has no continuous read loop of its own.
type ReconnectingSender struct {
	addr           string
	expectedStatic [sv2noise.DHKeySize]byte
	endpointHost   string
	endpointPort   uint16

	mu      sync.Mutex
	current *Sv2Sender
	closed  bool

	needReconnect chan struct{}
	quit          chan struct{}
	wg            sync.WaitGroup
}

// NewReconnectingSender starts dialing addr in the background and
// returns immediately; callers don't block on the mint being reachable
// at startup. Satisfies internal/quotehub.QuoteSender.
func NewReconnectingSender(addr string, expectedStatic [sv2noise.DHKeySize]byte, endpointHost string, endpointPort uint16) *ReconnectingSender {
	r := &ReconnectingSender{
		addr:           addr,
		expectedStatic: expectedStatic,
		endpointHost:   endpointHost,
		endpointPort:   endpointPort,
		needReconnect:  make(chan struct{}, 1),
		quit:           make(chan struct{}),
	}
	r.wg.Add(1)
	go r.connectLoop()
	return r
}

func (r *ReconnectingSender) connectLoop() {
	defer r.wg.Done()
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		select {
		case <-r.quit:
			return
		default:
		}

		sender, err := DialSv2Sender(r.addr, r.expectedStatic, r.endpointHost, r.endpointPort)
		if err != nil {
			util.Warnf("mintclient: dial mint %s failed, retrying in %v: %v", r.addr, backoff, err)
			select {
			case <-r.quit:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			backoff += time.Duration(rand.Intn(1000)) * time.Millisecond
			continue
		}
		backoff = time.Second
		util.Infof("mintclient: connected to mint %s", r.addr)

		r.mu.Lock()
		r.current = sender
		r.mu.Unlock()

		select {
		case <-r.quit:
			sender.Close()
			return
		case <-r.needReconnect:
		}

		r.mu.Lock()
		if r.current == sender {
			r.current = nil
		}
		r.mu.Unlock()
		sender.Close()
		util.Warnf("mintclient: lost connection to mint %s, reconnecting", r.addr)
	}
}

// reportFailure marks sender dead and wakes connectLoop, but only if
// sender is still the active connection (an older, already-replaced
// sender failing after the fact shouldn't tear down its successor).
func (r *ReconnectingSender) reportFailure(sender *Sv2Sender) {
	r.mu.Lock()
	isCurrent := r.current == sender
	r.mu.Unlock()
	if !isCurrent {
		return
	}
	select {
	case r.needReconnect <- struct{}{}:
	default:
	}
}

// SendMintQuoteRequest implements internal/quotehub.QuoteSender. It
// fails fast with ErrMintDisconnected while a reconnect is in progress
// rather than blocking the caller through a backoff sleep; quotehub's
// bounded dispatch queue is built to tolerate exactly this (see
// internal/quotehub/dispatcher.go's enqueue).
func (r *ReconnectingSender) SendMintQuoteRequest(ctx context.Context, req sv2mintquote.MintQuoteRequest) (sv2mintquote.MintQuoteResponse, error) {
	r.mu.Lock()
	sender := r.current
	r.mu.Unlock()
	if sender == nil {
		return sv2mintquote.MintQuoteResponse{}, ErrMintDisconnected
	}

	resp, err := sender.SendMintQuoteRequest(ctx, req)
	if err != nil {
		r.reportFailure(sender)
	}
	return resp, err
}

// Close stops the reconnect loop and closes the current connection, if
// any.
func (r *ReconnectingSender) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	close(r.quit)
	r.wg.Wait()
	return nil
}
