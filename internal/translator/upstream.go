package translator

import (
	"bytes"
	"fmt"
	"net"
	"sync"

	"github.com/hashpool/hashpool/internal/setup"
	"github.com/hashpool/hashpool/internal/sv2common"
	"github.com/hashpool/hashpool/internal/sv2frame"
	"github.com/hashpool/hashpool/internal/sv2mining"
	"github.com/hashpool/hashpool/internal/sv2noise"
)

// Upstream is the translator's SV2 client connection to the pool: the
// Noise initiator side mirroring internal/pool/engine.go's responder
// handshake, and a conn wrapper mirroring internal/pool/conn.go but for
// the initiator role (one upstream connection, one or more open
// channels, never a registry of many peers).
type Upstream struct {
	raw       net.Conn
	transport *sv2noise.Transport
	writeMu   sync.Mutex

	remoteStatic [sv2noise.DHKeySize]byte

	OnSetNewPrevHash        func(sv2mining.SetNewPrevHash)
	OnNewExtendedMiningJob  func(sv2mining.NewExtendedMiningJob)
	OnSetTarget             func(sv2mining.SetTarget)
	OnSubmitSharesSuccess   func(sv2mining.SubmitSharesSuccess)
	OnSubmitSharesError     func(sv2mining.SubmitSharesError)
	OnMintQuoteNotification func(sv2mining.MintQuoteNotification)
	OnMintQuoteFailure      func(sv2mining.MintQuoteFailure)
}

// DialUpstream connects to addr, expects to see expectedStatic as the
// pool's long-term Noise static key (the out-of-band certificate
// verification spec §4.2 calls for is a config-time concern; here it
// is a simple equality check against the configured key), and
// negotiates SetupConnection for the mining protocol.
func DialUpstream(addr string, expectedStatic [sv2noise.DHKeySize]byte, req sv2common.SetupConnection) (*Upstream, error) {
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("translator: dial upstream %s: %w", addr, err)
	}
	u, err := newUpstreamFromConn(raw, expectedStatic)
	if err != nil {
		raw.Close()
		return nil, err
	}
	if err := u.negotiateSetup(req); err != nil {
		raw.Close()
		return nil, err
	}
	return u, nil
}

func newUpstreamFromConn(raw net.Conn, expectedStatic [sv2noise.DHKeySize]byte) (*Upstream, error) {
	transport, err := setup.Initiator(raw, expectedStatic)
	if err != nil {
		return nil, fmt.Errorf("translator: %w", err)
	}
	return &Upstream{raw: raw, transport: transport, remoteStatic: expectedStatic}, nil
}

func (u *Upstream) negotiateSetup(req sv2common.SetupConnection) error {
	if err := setup.Request(u.send, u.receive, req); err != nil {
		return fmt.Errorf("translator: %w", err)
	}
	return nil
}

// OpenExtendedMiningChannel sends OpenExtendedMiningChannel and blocks
// for the matching success/error reply. Call this before Run, since it
// reads directly off the transport rather than through the dispatch
// loop.
func (u *Upstream) OpenExtendedMiningChannel(msg sv2mining.OpenExtendedMiningChannel) (sv2mining.OpenExtendedMiningChannelSuccess, error) {
	payload, err := msg.Encode()
	if err != nil {
		return sv2mining.OpenExtendedMiningChannelSuccess{}, err
	}
	if err := u.send(sv2mining.MsgOpenExtendedMiningChannel, payload); err != nil {
		return sv2mining.OpenExtendedMiningChannelSuccess{}, err
	}
	frame, err := u.receive()
	if err != nil {
		return sv2mining.OpenExtendedMiningChannelSuccess{}, err
	}
	if frame.MsgType == sv2mining.MsgOpenExtendedMiningChannelError {
		errMsg, _ := sv2mining.DecodeOpenMiningChannelError(frame.Payload)
		return sv2mining.OpenExtendedMiningChannelSuccess{}, fmt.Errorf("translator: upstream refused channel open: %s", errMsg.ErrorCode)
	}
	if frame.MsgType != sv2mining.MsgOpenExtendedMiningChannelSuccess {
		return sv2mining.OpenExtendedMiningChannelSuccess{}, fmt.Errorf("translator: expected OpenExtendedMiningChannelSuccess, got msg_type %#x", frame.MsgType)
	}
	return sv2mining.DecodeOpenExtendedMiningChannelSuccess(frame.Payload)
}

// SubmitSharesExtended forwards one downstream share upstream.
func (u *Upstream) SubmitSharesExtended(msg sv2mining.SubmitSharesExtended) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	return u.send(sv2mining.MsgSubmitSharesExtended, payload)
}

// UpdateChannel reports a new aggregate (or per-downstream, in
// non-aggregated mode) claimed hash-rate for one upstream channel.
func (u *Upstream) UpdateChannel(msg sv2mining.UpdateChannel) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	return u.send(sv2mining.MsgUpdateChannel, payload)
}

// Run reads frames until the connection closes (Close from another
// goroutine also ends it), dispatching each to its
// registered callback. Unset callbacks silently drop their message
// type; Manager sets all of them before calling Run.
func (u *Upstream) Run() error {
	for {
		frame, err := u.receive()
		if err != nil {
			return err
		}
		switch frame.MsgType {
		case sv2mining.MsgSetNewPrevHash:
			msg, err := sv2mining.DecodeSetNewPrevHash(frame.Payload)
			if err != nil {
				return fmt.Errorf("translator: decode SetNewPrevHash: %w", err)
			}
			if u.OnSetNewPrevHash != nil {
				u.OnSetNewPrevHash(msg)
			}
		case sv2mining.MsgNewExtendedMiningJob:
			msg, err := sv2mining.DecodeNewExtendedMiningJob(frame.Payload)
			if err != nil {
				return fmt.Errorf("translator: decode NewExtendedMiningJob: %w", err)
			}
			if u.OnNewExtendedMiningJob != nil {
				u.OnNewExtendedMiningJob(msg)
			}
		case sv2mining.MsgSetTarget:
			msg, err := sv2mining.DecodeSetTarget(frame.Payload)
			if err != nil {
				return fmt.Errorf("translator: decode SetTarget: %w", err)
			}
			if u.OnSetTarget != nil {
				u.OnSetTarget(msg)
			}
		case sv2mining.MsgSubmitSharesSuccess:
			msg, err := sv2mining.DecodeSubmitSharesSuccess(frame.Payload)
			if err != nil {
				return fmt.Errorf("translator: decode SubmitSharesSuccess: %w", err)
			}
			if u.OnSubmitSharesSuccess != nil {
				u.OnSubmitSharesSuccess(msg)
			}
		case sv2mining.MsgSubmitSharesError:
			msg, err := sv2mining.DecodeSubmitSharesError(frame.Payload)
			if err != nil {
				return fmt.Errorf("translator: decode SubmitSharesError: %w", err)
			}
			if u.OnSubmitSharesError != nil {
				u.OnSubmitSharesError(msg)
			}
		case sv2mining.MsgMintQuoteNotification:
			msg, err := sv2mining.DecodeMintQuoteNotification(frame.Payload)
			if err != nil {
				return fmt.Errorf("translator: decode MintQuoteNotification: %w", err)
			}
			if u.OnMintQuoteNotification != nil {
				u.OnMintQuoteNotification(msg)
			}
		case sv2mining.MsgMintQuoteFailure:
			msg, err := sv2mining.DecodeMintQuoteFailure(frame.Payload)
			if err != nil {
				return fmt.Errorf("translator: decode MintQuoteFailure: %w", err)
			}
			if u.OnMintQuoteFailure != nil {
				u.OnMintQuoteFailure(msg)
			}
		default:
			// Unknown or not-yet-handled message type; ignore rather
			// than tearing down the connection over a forward-
			// compatible extension.
		}
	}
}

func (u *Upstream) Close() error {
	return u.raw.Close()
}

func (u *Upstream) send(msgType uint8, payload []byte) error {
	buf, err := sv2frame.Encode(sv2frame.Frame{MsgType: msgType, Payload: payload})
	if err != nil {
		return fmt.Errorf("translator: encode frame: %w", err)
	}
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	return u.transport.WriteMessage(buf)
}

func (u *Upstream) receive() (sv2frame.Frame, error) {
	msg, err := u.transport.ReadMessage()
	if err != nil {
		return sv2frame.Frame{}, err
	}
	return sv2frame.Read(bytes.NewReader(msg))
}
