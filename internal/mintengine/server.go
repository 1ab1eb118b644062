package mintengine

import (
	"bytes"
	"fmt"
	"net"
	"sync"

	"github.com/hashpool/hashpool/internal/setup"
	"github.com/hashpool/hashpool/internal/sv2common"
	"github.com/hashpool/hashpool/internal/sv2frame"
	"github.com/hashpool/hashpool/internal/sv2mintquote"
	"github.com/hashpool/hashpool/internal/sv2noise"
	"github.com/hashpool/hashpool/internal/util"
)

// Server accepts the pool's dedicated mint-quote connection: Noise
// responder handshake, SetupConnection restricted to
// sv2common.ProtocolMintQuote, then a MintQuoteRequest/Response loop.
// Grounded on internal/pool/engine.go's handshake/negotiateSetup pair
// (the responder side of the same Noise_NX + SetupConnection
// exchange), trimmed to the single message type this binary needs
// instead of the full mining-channel dispatch table.
type Server struct {
	staticKey *sv2noise.KeyPair
	ledger    *Ledger

	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewServer returns a Server that signs its Noise handshakes with
// staticKey and answers quote requests via ledger.
func NewServer(staticKey *sv2noise.KeyPair, ledger *Ledger) *Server {
	return &Server{staticKey: staticKey, ledger: ledger, quit: make(chan struct{})}
}

// Start listens on listenAddr and accepts connections until Stop.
func (s *Server) Start(listenAddr string) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("mintengine: listen on %s: %w", listenAddr, err)
	}
	s.listener = ln
	util.Infof("mintengine: accepting connections on %s", ln.Addr())
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and waits for in-flight connections to exit.
func (s *Server) Stop() {
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		raw, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				util.Warnf("mintengine: accept error: %v", err)
				continue
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(raw)
		}()
	}
}

func (s *Server) handleConnection(raw net.Conn) {
	defer raw.Close()

	transport, err := s.handshake(raw)
	if err != nil {
		util.Warnf("mintengine: handshake with %s failed: %v", raw.RemoteAddr(), err)
		return
	}
	if err := s.negotiateSetup(transport); err != nil {
		util.Warnf("mintengine: setup negotiation with %s failed: %v", raw.RemoteAddr(), err)
		return
	}

	for {
		frame, err := receiveFrame(transport)
		if err != nil {
			return
		}
		if err := s.dispatchFrame(transport, frame); err != nil {
			util.Warnf("mintengine: %s: %v", raw.RemoteAddr(), err)
			return
		}
	}
}

func (s *Server) handshake(raw net.Conn) (*sv2noise.Transport, error) {
	return setup.Responder(raw, s.staticKey)
}

func (s *Server) negotiateSetup(transport *sv2noise.Transport) error {
	_, err := setup.AwaitRequest(
		func() (sv2frame.Frame, error) { return receiveFrame(transport) },
		func(msgType uint8, payload []byte) error { return sendFrame(transport, msgType, payload) },
		sv2common.ProtocolMintQuote,
	)
	return err
}

func (s *Server) dispatchFrame(transport *sv2noise.Transport, frame sv2frame.Frame) error {
	if frame.MsgType != sv2mintquote.MsgMintQuoteRequest {
		return fmt.Errorf("unexpected msg_type %#x", frame.MsgType)
	}
	req, err := sv2mintquote.DecodeMintQuoteRequest(frame.Payload)
	if err != nil {
		payload, _ := sv2mintquote.MintQuoteError{ErrorCode: "malformed-request", ErrorMessage: err.Error()}.Encode()
		return sendFrame(transport, sv2mintquote.MsgMintQuoteError, payload)
	}
	resp, err := s.ledger.CreateQuote(req)
	if err != nil {
		payload, _ := sv2mintquote.MintQuoteError{ErrorCode: "quote-creation-failed", ErrorMessage: err.Error()}.Encode()
		return sendFrame(transport, sv2mintquote.MsgMintQuoteError, payload)
	}
	payload, err := resp.Encode()
	if err != nil {
		return err
	}
	return sendFrame(transport, sv2mintquote.MsgMintQuoteResponse, payload)
}

func receiveFrame(transport *sv2noise.Transport) (sv2frame.Frame, error) {
	msg, err := transport.ReadMessage()
	if err != nil {
		return sv2frame.Frame{}, err
	}
	return sv2frame.Read(bytes.NewReader(msg))
}

func sendFrame(transport *sv2noise.Transport, msgType uint8, payload []byte) error {
	buf, err := sv2frame.Encode(sv2frame.Frame{MsgType: msgType, Payload: payload})
	if err != nil {
		return err
	}
	return transport.WriteMessage(buf)
}
