package mintclient

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/hashpool/hashpool/internal/setup"
	"github.com/hashpool/hashpool/internal/sv2common"
	"github.com/hashpool/hashpool/internal/sv2frame"
	"github.com/hashpool/hashpool/internal/sv2mintquote"
	"github.com/hashpool/hashpool/internal/sv2noise"
)

// Sv2Sender is the pool's dedicated SV2 connection to one mint,
// carrying only the MintQuoteRequest/Response/Error subprotocol
// (sv2common.ProtocolMintQuote). Grounded on internal/translator/
// upstream.go's DialUpstream/newUpstreamFromConn (Noise initiator
// handshake, then SetupConnection) and its OpenExtendedMiningChannel's
// blocking send-then-wait-for-reply shape, generalized to one request
// type instead of a channel-open plus a long-lived dispatch loop: every
// call the quotehub.Dispatcher makes against this connection is a
// single request awaiting a single reply, so one mutex serializes
// requests rather than needing Upstream's separate Run() dispatch
// goroutine and per-message-type callbacks.
type Sv2Sender struct {
	raw       net.Conn
	transport *sv2noise.Transport
	mu        sync.Mutex
}

// DialSv2Sender connects to addr, verifies the mint's long-term Noise
// static key matches expectedStatic, and negotiates SetupConnection for
// the mint-quote protocol.
func DialSv2Sender(addr string, expectedStatic [sv2noise.DHKeySize]byte, endpointHost string, endpointPort uint16) (*Sv2Sender, error) {
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("mintclient: dial mint %s: %w", addr, err)
	}
	s, err := newSv2SenderFromConn(raw, expectedStatic)
	if err != nil {
		raw.Close()
		return nil, err
	}
	req := sv2common.SetupConnection{
		Protocol:     sv2common.ProtocolMintQuote,
		MinVersion:   2,
		MaxVersion:   2,
		EndpointHost: endpointHost,
		EndpointPort: endpointPort,
	}
	if err := s.negotiateSetup(req); err != nil {
		raw.Close()
		return nil, err
	}
	return s, nil
}

func newSv2SenderFromConn(raw net.Conn, expectedStatic [sv2noise.DHKeySize]byte) (*Sv2Sender, error) {
	transport, err := setup.Initiator(raw, expectedStatic)
	if err != nil {
		return nil, fmt.Errorf("mintclient: %w", err)
	}
	return &Sv2Sender{raw: raw, transport: transport}, nil
}

func (s *Sv2Sender) negotiateSetup(req sv2common.SetupConnection) error {
	if err := setup.Request(s.send, s.receive, req); err != nil {
		return fmt.Errorf("mintclient: %w", err)
	}
	return nil
}

// SendMintQuoteRequest satisfies internal/quotehub.QuoteSender: it sends
// req and blocks for the matching MintQuoteResponse or MintQuoteError.
// ctx is honored only insofar as the caller can arrange a deadline on
// the underlying connection; quotehub.Dispatcher calls this from its
// single worker goroutine, so one request is in flight at a time and
// the mutex here only guards against concurrent callers from outside
// that goroutine (e.g. a direct caller in tests).
func (s *Sv2Sender) SendMintQuoteRequest(ctx context.Context, req sv2mintquote.MintQuoteRequest) (sv2mintquote.MintQuoteResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := req.Encode()
	if err != nil {
		return sv2mintquote.MintQuoteResponse{}, err
	}
	if err := s.send(sv2mintquote.MsgMintQuoteRequest, payload); err != nil {
		return sv2mintquote.MintQuoteResponse{}, err
	}
	frame, err := s.receive()
	if err != nil {
		return sv2mintquote.MintQuoteResponse{}, err
	}
	if frame.MsgType == sv2mintquote.MsgMintQuoteError {
		quoteErr, _ := sv2mintquote.DecodeMintQuoteError(frame.Payload)
		return sv2mintquote.MintQuoteResponse{}, fmt.Errorf("mintclient: mint rejected quote: %s: %s", quoteErr.ErrorCode, quoteErr.ErrorMessage)
	}
	if frame.MsgType != sv2mintquote.MsgMintQuoteResponse {
		return sv2mintquote.MintQuoteResponse{}, fmt.Errorf("mintclient: expected MintQuoteResponse, got msg_type %#x", frame.MsgType)
	}
	return sv2mintquote.DecodeMintQuoteResponse(frame.Payload)
}

func (s *Sv2Sender) Close() error {
	return s.raw.Close()
}

func (s *Sv2Sender) send(msgType uint8, payload []byte) error {
	buf, err := sv2frame.Encode(sv2frame.Frame{MsgType: msgType, Payload: payload})
	if err != nil {
		return fmt.Errorf("mintclient: encode frame: %w", err)
	}
	return s.transport.WriteMessage(buf)
}

func (s *Sv2Sender) receive() (sv2frame.Frame, error) {
	msg, err := s.transport.ReadMessage()
	if err != nil {
		return sv2frame.Frame{}, err
	}
	return sv2frame.Read(bytes.NewReader(msg))
}
