package pool

import (
	"bytes"
	"context"
	"math/big"
	"net"
	"testing"

	"github.com/hashpool/hashpool/internal/quotehub"
	"github.com/hashpool/hashpool/internal/sv2common"
	"github.com/hashpool/hashpool/internal/sv2frame"
	"github.com/hashpool/hashpool/internal/sv2mining"
	"github.com/hashpool/hashpool/internal/sv2mintquote"
	"github.com/hashpool/hashpool/internal/sv2noise"
	"github.com/hashpool/hashpool/internal/target"
	"github.com/hashpool/hashpool/internal/vardiff"
)

type fakeTemplateProvider struct {
	tmpl Template
}

func (f *fakeTemplateProvider) Current() Template { return f.tmpl }

func (f *fakeTemplateProvider) Updates() <-chan Template {
	return make(chan Template)
}

func (f *fakeTemplateProvider) SubmitBlockSolution(ctx context.Context, headerBytes []byte, tmpl Template) error {
	return nil
}

type fakeQuoteSender struct{}

func (fakeQuoteSender) SendMintQuoteRequest(ctx context.Context, req sv2mintquote.MintQuoteRequest) (sv2mintquote.MintQuoteResponse, error) {
	return sv2mintquote.MintQuoteResponse{QuoteID: "q1", Status: sv2mintquote.StatusPending}, nil
}

// easyTemplate builds a template whose network target is 2^255, so
// about half of all header hashes qualify as a block solution. At 1 H/s
// and 1 share/min the channel target is about 2^256/61, so roughly one
// candidate nonce in 61 clears it, keeping the test's nonce search
// bounded.
func easyTemplate() Template {
	easy := new(big.Int).Lsh(big.NewInt(1), 255) // top bit clear ~= half of all hashes
	return Template{
		JobID:            1,
		Version:          1,
		PrevHash:         [32]byte{1, 2, 3},
		NTimeMin:         0,
		NBits:            0x207fffff,
		FutureJob:        false,
		MerklePath:       nil,
		CoinbaseTxPrefix: []byte("prefix"),
		CoinbaseTxSuffix: []byte("suffix"),
		NetworkTarget:    easy,
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeTemplateProvider) {
	t.Helper()
	staticKey, err := sv2noise.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	provider := &fakeTemplateProvider{tmpl: easyTemplate()}
	dispatcher := quotehub.NewDispatcher(fakeQuoteSender{}, 10)
	dispatcher.Start(context.Background())
	t.Cleanup(dispatcher.Stop)

	cfg := Config{
		StaticKey:                  staticKey,
		MinimumShareDifficultyBits: 0,
		ClockSkewSeconds:           600,
		SharesPerMinute:            1,
		VardiffConfig:              vardiff.DefaultConfig(1, 1),
		ExtranoncePrefixSize:       4,
	}
	e := NewEngine(cfg, dispatcher, provider)
	return e, provider
}

// clientHandshake drives the initiator side of the Noise handshake
// over conn against the engine's static key, returning a ready
// transport.
func clientHandshake(t *testing.T, conn net.Conn, serverStatic [sv2noise.DHKeySize]byte) *sv2noise.Transport {
	t.Helper()
	hs, err := sv2noise.NewInitiatorHandshake()
	if err != nil {
		t.Fatal(err)
	}
	msg1, err := hs.WriteMessage(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := sv2noise.WriteHandshakeMessage(conn, msg1); err != nil {
		t.Fatal(err)
	}
	msg2, err := sv2noise.ReadHandshakeMessage(conn)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := hs.ReadMessage(msg2); err != nil {
		t.Fatal(err)
	}
	if hs.RemoteStatic() != serverStatic {
		t.Fatal("server static key mismatch")
	}
	send, recv, err := hs.Split()
	if err != nil {
		t.Fatal(err)
	}
	return sv2noise.NewTransport(conn, conn, send, recv)
}

func sendFrame(t *testing.T, tr *sv2noise.Transport, msgType uint8, payload []byte) {
	t.Helper()
	buf, err := sv2frame.Encode(sv2frame.Frame{MsgType: msgType, Payload: payload})
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.WriteMessage(buf); err != nil {
		t.Fatal(err)
	}
}

func recvFrame(t *testing.T, tr *sv2noise.Transport) sv2frame.Frame {
	t.Helper()
	msg, err := tr.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	f, err := sv2frame.Read(bytes.NewReader(msg))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestEngineHandshakeSetupAndChannelOpen(t *testing.T) {
	e, _ := newTestEngine(t)
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go e.handleConnection(serverConn)

	tr := clientHandshake(t, clientConn, e.cfg.StaticKey.Public)

	setup := sv2common.SetupConnection{Protocol: sv2common.ProtocolMining, MinVersion: 2, MaxVersion: 2}
	payload, err := setup.Encode()
	if err != nil {
		t.Fatal(err)
	}
	sendFrame(t, tr, sv2common.MsgSetupConnection, payload)

	reply := recvFrame(t, tr)
	if reply.MsgType != sv2common.MsgSetupConnectionSuccess {
		t.Fatalf("expected SetupConnectionSuccess, got %#x", reply.MsgType)
	}

	open := sv2mining.OpenStandardMiningChannel{
		RequestID:       1,
		UserIdentity:    "worker1",
		NominalHashRate: 1,
		MaxTarget:       target.ToU256LE(new(big.Int).Lsh(big.NewInt(1), 255)),
	}
	openPayload, err := open.Encode()
	if err != nil {
		t.Fatal(err)
	}
	sendFrame(t, tr, sv2mining.MsgOpenStandardMiningChannel, openPayload)

	success := recvFrame(t, tr)
	if success.MsgType != sv2mining.MsgOpenStandardMiningChannelSuccess {
		t.Fatalf("expected OpenStandardMiningChannelSuccess, got %#x", success.MsgType)
	}
	decoded, err := sv2mining.DecodeOpenStandardMiningChannelSuccess(success.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.ChannelID != 1 {
		t.Fatalf("expected channel id 1, got %d", decoded.ChannelID)
	}

	prevHash := recvFrame(t, tr)
	if prevHash.MsgType != sv2mining.MsgSetNewPrevHash {
		t.Fatalf("expected SetNewPrevHash, got %#x", prevHash.MsgType)
	}
	job := recvFrame(t, tr)
	if job.MsgType != sv2mining.MsgNewMiningJob {
		t.Fatalf("expected NewMiningJob, got %#x", job.MsgType)
	}
}

func TestEngineRejectsSubmitOnUnknownChannel(t *testing.T) {
	e, _ := newTestEngine(t)
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go e.handleConnection(serverConn)

	tr := clientHandshake(t, clientConn, e.cfg.StaticKey.Public)

	setup := sv2common.SetupConnection{Protocol: sv2common.ProtocolMining, MinVersion: 2, MaxVersion: 2}
	payload, _ := setup.Encode()
	sendFrame(t, tr, sv2common.MsgSetupConnection, payload)
	recvFrame(t, tr) // SetupConnectionSuccess

	submit := sv2mining.SubmitSharesStandard{ChannelID: 999, SequenceNumber: 1, JobID: 1, NTime: 0, Nonce: 0, Version: 1}
	out, _ := submit.Encode()
	sendFrame(t, tr, sv2mining.MsgSubmitSharesStandard, out)

	reply := recvFrame(t, tr)
	if reply.MsgType != sv2mining.MsgSubmitSharesError {
		t.Fatalf("expected SubmitSharesError, got %#x", reply.MsgType)
	}
	decoded, err := sv2mining.DecodeSubmitSharesError(reply.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.ErrorCode != sv2mining.ErrUnknownChannel {
		t.Fatalf("expected unknown-channel error, got %q", decoded.ErrorCode)
	}
}

func TestEngineAcceptsShareMeetingEasyTarget(t *testing.T) {
	e, _ := newTestEngine(t)
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go e.handleConnection(serverConn)

	tr := clientHandshake(t, clientConn, e.cfg.StaticKey.Public)

	setup := sv2common.SetupConnection{Protocol: sv2common.ProtocolMining, MinVersion: 2, MaxVersion: 2}
	payload, _ := setup.Encode()
	sendFrame(t, tr, sv2common.MsgSetupConnection, payload)
	recvFrame(t, tr)

	open := sv2mining.OpenStandardMiningChannel{
		RequestID:       1,
		UserIdentity:    "worker1",
		NominalHashRate: 1,
		MaxTarget:       target.ToU256LE(new(big.Int).Lsh(big.NewInt(1), 255)),
	}
	openPayload, _ := open.Encode()
	sendFrame(t, tr, sv2mining.MsgOpenStandardMiningChannel, openPayload)
	recvFrame(t, tr) // success
	recvFrame(t, tr) // SetNewPrevHash
	recvFrame(t, tr) // NewMiningJob

	var accepted bool
	for nonce := uint32(0); nonce < 2000 && !accepted; nonce++ {
		submit := sv2mining.SubmitSharesStandard{ChannelID: 1, SequenceNumber: nonce + 1, JobID: 1, NTime: 0, Nonce: nonce, Version: 1}
		out, _ := submit.Encode()
		sendFrame(t, tr, sv2mining.MsgSubmitSharesStandard, out)
		reply := recvFrame(t, tr)
		if reply.MsgType == sv2mining.MsgSubmitSharesSuccess {
			accepted = true
			break
		}
		if reply.MsgType != sv2mining.MsgSubmitSharesError {
			t.Fatalf("unexpected message type %#x", reply.MsgType)
		}
	}
	if !accepted {
		t.Fatal("expected at least one nonce to produce an accepted share against an easy target")
	}
}
