package mintclient

import (
	"net"
	"testing"
	"time"

	"github.com/hashpool/hashpool/internal/sv2mintquote"
	"github.com/hashpool/hashpool/internal/sv2noise"
)

// reconnectTestMint accepts connections on ln in a loop, answering
// exactly one MintQuoteRequest per connection before closing it, so
// tests can exercise ReconnectingSender's redial path across multiple
// server-side connections.
func reconnectTestMint(t *testing.T, ln net.Listener, static *sv2noise.KeyPair, quoteID string) {
	t.Helper()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				mint := acceptFakeMint(t, c, static)
				mint.acceptSetupConnection()
				frame := mint.receive()
				if frame.MsgType != sv2mintquote.MsgMintQuoteRequest {
					return
				}
				resp, err := sv2mintquote.MintQuoteResponse{QuoteID: quoteID, Status: sv2mintquote.StatusPending, Expiry: 1}.Encode()
				if err != nil {
					return
				}
				mint.send(sv2mintquote.MsgMintQuoteResponse, resp)
			}(conn)
		}
	}()
}

func TestReconnectingSenderReconnectsAfterConnectionDrop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	static, err := sv2noise.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate static key: %v", err)
	}
	reconnectTestMint(t, ln, static, "quote-1")

	sender := NewReconnectingSender(ln.Addr().String(), static.Public, "pool.example", 4000)
	defer sender.Close()

	req := sv2mintquote.MintQuoteRequest{Amount: 1000, Unit: "sat", LockingKey: locking33()}

	var resp sv2mintquote.MintQuoteResponse
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = sender.SendMintQuoteRequest(nil, req)
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("first SendMintQuoteRequest never succeeded: %v", err)
	}
	if resp.QuoteID != "quote-1" {
		t.Fatalf("unexpected quote id %q", resp.QuoteID)
	}

	// The fake mint closes its side of the connection right after
	// answering; the next send should observe the drop, and the
	// background loop should redial and serve a second request on a
	// fresh connection.
	deadline = time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = sender.SendMintQuoteRequest(nil, req)
		if err == nil && resp.QuoteID == "quote-1" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("SendMintQuoteRequest never recovered after reconnect: %v", err)
	}
}

func TestReconnectingSenderFailsFastWhileDisconnected(t *testing.T) {
	// Reserve an address, then close the listener immediately so
	// nothing answers: connectLoop's dial fails and it backs off,
	// leaving the sender disconnected for the test's duration.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	var static [sv2noise.DHKeySize]byte
	sender := NewReconnectingSender(addr, static, "pool.example", 4000)
	defer sender.Close()

	_, err = sender.SendMintQuoteRequest(nil, sv2mintquote.MintQuoteRequest{Amount: 1, Unit: "sat", LockingKey: locking33()})
	if err != ErrMintDisconnected {
		t.Fatalf("expected ErrMintDisconnected while never having connected, got %v", err)
	}
}
