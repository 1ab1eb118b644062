package mintclient

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/hashpool/hashpool/internal/sv2common"
	"github.com/hashpool/hashpool/internal/sv2frame"
	"github.com/hashpool/hashpool/internal/sv2mintquote"
	"github.com/hashpool/hashpool/internal/sv2noise"
)

// fakeMint drives the responder side of a connection in tests: Noise
// handshake, SetupConnection, then whatever the test script wants to
// do with the MintQuoteRequest that follows. Grounded on
// internal/pool/engine.go's handshake/negotiateSetup pair, the
// responder-side mirror of Sv2Sender's initiator logic.
type fakeMint struct {
	t         *testing.T
	raw       net.Conn
	transport *sv2noise.Transport
}

func acceptFakeMint(t *testing.T, raw net.Conn, static *sv2noise.KeyPair) *fakeMint {
	t.Helper()
	hs, err := sv2noise.NewResponderHandshake(static)
	if err != nil {
		t.Fatalf("new responder handshake: %v", err)
	}
	msg1, err := sv2noise.ReadHandshakeMessage(raw)
	if err != nil {
		t.Fatalf("read handshake message 1: %v", err)
	}
	if _, err := hs.ReadMessage(msg1); err != nil {
		t.Fatalf("process handshake message 1: %v", err)
	}
	msg2, err := hs.WriteMessage(nil)
	if err != nil {
		t.Fatalf("build handshake message 2: %v", err)
	}
	if err := sv2noise.WriteHandshakeMessage(raw, msg2); err != nil {
		t.Fatalf("write handshake message 2: %v", err)
	}
	send, recv, err := hs.Split()
	if err != nil {
		t.Fatalf("split transport keys: %v", err)
	}
	return &fakeMint{t: t, raw: raw, transport: sv2noise.NewTransport(raw, raw, send, recv)}
}

func (f *fakeMint) receive() sv2frame.Frame {
	f.t.Helper()
	msg, err := f.transport.ReadMessage()
	if err != nil {
		f.t.Fatalf("transport read: %v", err)
	}
	frame, err := sv2frame.Read(bytes.NewReader(msg))
	if err != nil {
		f.t.Fatalf("frame decode: %v", err)
	}
	return frame
}

func (f *fakeMint) send(msgType uint8, payload []byte) {
	f.t.Helper()
	buf, err := sv2frame.Encode(sv2frame.Frame{MsgType: msgType, Payload: payload})
	if err != nil {
		f.t.Fatalf("frame encode: %v", err)
	}
	if err := f.transport.WriteMessage(buf); err != nil {
		f.t.Fatalf("transport write: %v", err)
	}
}

func (f *fakeMint) acceptSetupConnection() sv2common.SetupConnection {
	f.t.Helper()
	frame := f.receive()
	if frame.MsgType != sv2common.MsgSetupConnection {
		f.t.Fatalf("expected SetupConnection, got msg_type %#x", frame.MsgType)
	}
	setup, err := sv2common.DecodeSetupConnection(frame.Payload)
	if err != nil {
		f.t.Fatalf("decode SetupConnection: %v", err)
	}
	payload, err := sv2common.SetupConnectionSuccess{UsedVersion: setup.MaxVersion}.Encode()
	if err != nil {
		f.t.Fatalf("encode SetupConnectionSuccess: %v", err)
	}
	f.send(sv2common.MsgSetupConnectionSuccess, payload)
	return setup
}

func (f *fakeMint) rejectSetupConnection(errorCode string) {
	f.t.Helper()
	frame := f.receive()
	if frame.MsgType != sv2common.MsgSetupConnection {
		f.t.Fatalf("expected SetupConnection, got msg_type %#x", frame.MsgType)
	}
	payload, err := sv2common.SetupConnectionError{ErrorCode: errorCode}.Encode()
	if err != nil {
		f.t.Fatalf("encode SetupConnectionError: %v", err)
	}
	f.send(sv2common.MsgSetupConnectionError, payload)
}

func dialedPair(t *testing.T) (client net.Conn, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverCh := make(chan net.Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			errCh <- err
			return
		}
		serverCh <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	select {
	case server = <-serverCh:
	case err := <-errCh:
		t.Fatalf("accept: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	return client, server
}

func locking33() [33]byte {
	var k [33]byte
	k[0] = 0x02
	return k
}

func TestSv2SenderRoundTrip(t *testing.T) {
	client, server := dialedPair(t)
	defer client.Close()
	defer server.Close()

	static, err := sv2noise.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate static key: %v", err)
	}

	mintDone := make(chan sv2mintquote.MintQuoteRequest, 1)
	go func() {
		mint := acceptFakeMint(t, server, static)
		mint.acceptSetupConnection()

		frame := mint.receive()
		if frame.MsgType != sv2mintquote.MsgMintQuoteRequest {
			t.Errorf("expected MintQuoteRequest, got msg_type %#x", frame.MsgType)
			return
		}
		req, err := sv2mintquote.DecodeMintQuoteRequest(frame.Payload)
		if err != nil {
			t.Errorf("decode MintQuoteRequest: %v", err)
			return
		}
		mintDone <- req

		resp, err := sv2mintquote.MintQuoteResponse{QuoteID: "quote-1", Status: sv2mintquote.StatusPending, Expiry: 1234}.Encode()
		if err != nil {
			t.Errorf("encode MintQuoteResponse: %v", err)
			return
		}
		mint.send(sv2mintquote.MsgMintQuoteResponse, resp)
	}()

	sender, err := newSv2SenderFromConn(client, static.Public)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	defer sender.Close()
	if err := sender.negotiateSetup(sv2common.SetupConnection{
		Protocol:     sv2common.ProtocolMintQuote,
		MinVersion:   2,
		MaxVersion:   2,
		EndpointHost: "pool.example",
		EndpointPort: 4000,
	}); err != nil {
		t.Fatalf("negotiate setup: %v", err)
	}

	req := sv2mintquote.MintQuoteRequest{
		Amount:     1000,
		Unit:       "sat",
		HeaderHash: [32]byte{1, 2, 3},
		LockingKey: locking33(),
	}
	resp, err := sender.SendMintQuoteRequest(nil, req)
	if err != nil {
		t.Fatalf("SendMintQuoteRequest: %v", err)
	}
	if resp.QuoteID != "quote-1" || resp.Status != sv2mintquote.StatusPending || resp.Expiry != 1234 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	select {
	case got := <-mintDone:
		if got.Amount != 1000 || got.Unit != "sat" {
			t.Fatalf("mint saw unexpected request: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("mint goroutine never observed the request")
	}
}

func TestSv2SenderSurfacesMintQuoteError(t *testing.T) {
	client, server := dialedPair(t)
	defer client.Close()
	defer server.Close()

	static, err := sv2noise.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate static key: %v", err)
	}

	go func() {
		mint := acceptFakeMint(t, server, static)
		mint.acceptSetupConnection()
		mint.receive()
		payload, err := sv2mintquote.MintQuoteError{ErrorCode: "insufficient-liquidity", ErrorMessage: "mint is out of funds"}.Encode()
		if err != nil {
			t.Errorf("encode MintQuoteError: %v", err)
			return
		}
		mint.send(sv2mintquote.MsgMintQuoteError, payload)
	}()

	sender, err := newSv2SenderFromConn(client, static.Public)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	defer sender.Close()
	if err := sender.negotiateSetup(sv2common.SetupConnection{Protocol: sv2common.ProtocolMintQuote, MinVersion: 2, MaxVersion: 2}); err != nil {
		t.Fatalf("negotiate setup: %v", err)
	}

	_, err = sender.SendMintQuoteRequest(nil, sv2mintquote.MintQuoteRequest{Amount: 1, Unit: "sat", LockingKey: locking33()})
	if err == nil {
		t.Fatal("expected error from MintQuoteError response")
	}
}

func TestSv2SenderSurfacesSetupConnectionRejection(t *testing.T) {
	client, server := dialedPair(t)
	defer client.Close()
	defer server.Close()

	static, err := sv2noise.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate static key: %v", err)
	}

	go func() {
		mint := acceptFakeMint(t, server, static)
		mint.rejectSetupConnection(sv2common.ErrProtocolVersionMismatch)
	}()

	sender, err := newSv2SenderFromConn(client, static.Public)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	defer sender.Close()

	err = sender.negotiateSetup(sv2common.SetupConnection{Protocol: sv2common.ProtocolMintQuote, MinVersion: 2, MaxVersion: 2})
	if err == nil {
		t.Fatal("expected SetupConnection rejection to surface as an error")
	}
}

func TestSv2SenderRejectsMintStaticKeyMismatch(t *testing.T) {
	client, server := dialedPair(t)
	defer client.Close()
	defer server.Close()

	actualStatic, err := sv2noise.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate static key: %v", err)
	}
	wrongStatic, err := sv2noise.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate static key: %v", err)
	}

	go func() {
		acceptFakeMint(t, server, actualStatic)
	}()

	_, err = newSv2SenderFromConn(client, wrongStatic.Public)
	if err == nil {
		t.Fatal("expected mismatch on mint static key to be rejected")
	}
}
