// Package translator implements the SV1-to-SV2 proxy: it terminates
// classic Stratum (JSON-RPC over line-delimited TCP or WebSocket) from
// downstream miners and speaks SV2 upstream to a pool, aggregating or
// passing through each downstream's shares as SV2 SubmitSharesExtended
// submissions and routing paid-quote notifications back to the miner
// that earned them. Grounded on internal/slave/stratum.go's
// StratumServer/Session (accept loop, policy wiring, line-delimited
// JSON-RPC dispatch), generalized from its flat TOS-specific job format
// to genuine Bitcoin-style SV1 (mining.notify coinb1/coinb2/merkle
// branch, 5-param mining.submit) since upstream here is real SV2/
// Bitcoin rather than a custom header.
package translator

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashpool/hashpool/internal/policy"
	"github.com/hashpool/hashpool/internal/util"
)

// Security constants, matching the teacher's flood-detection sizing
// for a line-delimited JSON-RPC session.
const (
	MaxRequestSize   = 1024
	MaxRequestBuffer = MaxRequestSize + 64
)

// Request is a JSON-RPC request from an SV1 downstream.
type Request struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Response is a JSON-RPC response to an SV1 downstream.
type Response struct {
	ID     interface{} `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  interface{} `json:"error,omitempty"`
}

// Notify is a server-initiated JSON-RPC notification (mining.notify,
// mining.set_difficulty) with no id.
type Notify struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// downstreamConn abstracts the transport carrying one SV1 session, so
// the same session/dispatch core in this file serves both a raw TCP
// listener and the WebSocket listener in wsstratum.go.
type downstreamConn interface {
	ReadLine() (line []byte, isPrefix bool, err error)
	WriteFrame(b []byte) error
	Close() error
	RemoteAddr() string
	SetReadDeadline(t time.Time) error
}

// tcpConn is a downstreamConn over a raw net.Conn, matching
// stratum.go's bufio.NewReaderSize(conn, MaxRequestBuffer) framing.
type tcpConn struct {
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
}

func newTCPConn(conn net.Conn) *tcpConn {
	return &tcpConn{conn: conn, reader: bufio.NewReaderSize(conn, MaxRequestBuffer)}
}

func (c *tcpConn) ReadLine() ([]byte, bool, error) {
	return c.reader.ReadLine()
}

func (c *tcpConn) WriteFrame(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_, err := c.conn.Write(b)
	return err
}

func (c *tcpConn) Close() error { return c.conn.Close() }

func (c *tcpConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *tcpConn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

// Session is one downstream miner's SV1 connection, authorization
// state, and locally-assigned extranonce1. Its mining-specific state
// (the local pre-check channel, pending vardiff target, upstream
// binding) lives in downstream in manager.go; Session itself only
// knows how to speak SV1 JSON-RPC.
type Session struct {
	ID          uint64
	conn        downstreamConn
	RemoteAddr  string
	ConnectedAt time.Time

	ExtraNonce1     string
	ExtraNonce2Size int

	mu         sync.Mutex
	worker     string
	authorized bool

	writeMu sync.Mutex
}

func newSession(id uint64, conn downstreamConn, extranonce1 string, extranonce2Size int) *Session {
	return &Session{
		ID:              id,
		conn:            conn,
		RemoteAddr:      conn.RemoteAddr(),
		ConnectedAt:     time.Now(),
		ExtraNonce1:     extranonce1,
		ExtraNonce2Size: extranonce2Size,
	}
}

// Authorize records a successful mining.authorize for worker. A
// session must go through this, not just receive a success response,
// before handleSubmit accepts shares from it: returning success on the
// wire without recording the worker name here would leave an
// unauthorized session able to submit.
func (s *Session) Authorize(worker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worker = worker
	s.authorized = true
}

func (s *Session) IsAuthorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorized
}

func (s *Session) Worker() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worker
}

func (s *Session) sendResult(id interface{}, result interface{}) error {
	return s.send(Response{ID: id, Result: result})
}

func (s *Session) sendError(id interface{}, code int, message string) error {
	return s.send(Response{ID: id, Error: []interface{}{code, message, nil}})
}

func (s *Session) sendNotify(method string, params []interface{}) error {
	return s.send(Notify{Method: method, Params: params})
}

func (s *Session) send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteFrame(append(data, '\n'))
}

func (s *Session) Close() {
	s.conn.Close()
}

// Dispatcher handles one decoded SV1 request for a session; Manager
// implements this to wire mining.subscribe/authorize/submit into the
// channel-manager/upstream-client logic in manager.go.
type Dispatcher interface {
	HandleSubscribe(s *Session, req *Request)
	HandleAuthorize(s *Session, req *Request)
	HandleSubmit(s *Session, req *Request)
	OnDisconnect(s *Session)
}

// idAllocator hands out session IDs and extranonce1 values shared
// across every listener (raw TCP and WebSocket) feeding one Manager,
// so a session ID is never reused between the two transports.
type idAllocator struct {
	sessionSeq    uint64
	extranonceSeq uint32
}

func newIDAllocator() *idAllocator {
	return &idAllocator{}
}

func (a *idAllocator) nextSessionID() uint64 {
	return atomic.AddUint64(&a.sessionSeq, 1)
}

func (a *idAllocator) nextExtranonce1() string {
	return fmt.Sprintf("%08x", atomic.AddUint32(&a.extranonceSeq, 1))
}

// Server is the raw-TCP SV1 listener. WebSocket connections are
// accepted by wsstratum.go's WSServer and fed into the same
// serveSession loop via their own downstreamConn implementation,
// sharing this Server's idAllocator.
type Server struct {
	listenAddr string
	policy     *policy.PolicyServer
	dispatcher Dispatcher

	ids             *idAllocator
	extranonce2Size int

	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup
}

func NewServer(listenAddr string, policyServer *policy.PolicyServer, dispatcher Dispatcher, ids *idAllocator, extranonce2Size int) *Server {
	if extranonce2Size <= 0 {
		extranonce2Size = 4
	}
	if ids == nil {
		ids = newIDAllocator()
	}
	return &Server{
		listenAddr:      listenAddr,
		policy:          policyServer,
		dispatcher:      dispatcher,
		ids:             ids,
		extranonce2Size: extranonce2Size,
		quit:            make(chan struct{}),
	}
}

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("translator: bind stratum listener: %w", err)
	}
	s.listener = listener
	util.Infof("translator: SV1 stratum listening on %s", s.listenAddr)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

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
				util.Warnf("translator: accept error: %v", err)
				continue
			}
		}

		ip := extractIP(raw.RemoteAddr().String())
		if s.policy != nil {
			if s.policy.IsBanned(ip) {
				raw.Close()
				continue
			}
			if !s.policy.ApplyConnectionLimit(ip) {
				raw.Close()
				continue
			}
		}

		id := s.ids.nextSessionID()
		extranonce1 := s.ids.nextExtranonce1()
		session := newSession(id, newTCPConn(raw), extranonce1, s.extranonce2Size)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			serveSession(session, s.policy, s.dispatcher, s.quit)
		}()
	}
}

// serveSession runs the read loop shared by tcpConn and wsConn
// sessions: flood detection, JSON-RPC parse, policy-gated malformed-
// request handling, and method dispatch. Grounded on stratum.go's
// handleSession.
func serveSession(session *Session, p *policy.PolicyServer, dispatcher Dispatcher, quit chan struct{}) {
	defer func() {
		dispatcher.OnDisconnect(session)
		session.Close()
	}()

	ip := extractIP(session.RemoteAddr)
	session.conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	for {
		select {
		case <-quit:
			return
		default:
		}

		line, isPrefix, err := session.conn.ReadLine()
		if err != nil {
			return
		}

		if isPrefix {
			util.Warnf("translator: session %d (%s): request too large (flood detected)", session.ID, ip)
			if p != nil {
				p.BanIP(ip)
			}
			return
		}
		if len(line) == 0 {
			continue
		}
		if len(line) > MaxRequestSize {
			if p != nil && !p.ApplyMalformedPolicy(ip) {
				return
			}
			session.sendError(nil, -32600, "Request too large")
			continue
		}

		session.conn.SetReadDeadline(time.Now().Add(5 * time.Minute))

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if p != nil && !p.ApplyMalformedPolicy(ip) {
				return
			}
			session.sendError(nil, -32700, "Parse error")
			continue
		}

		switch req.Method {
		case "mining.subscribe":
			dispatcher.HandleSubscribe(session, &req)
		case "mining.authorize":
			dispatcher.HandleAuthorize(session, &req)
		case "mining.submit":
			dispatcher.HandleSubmit(session, &req)
		case "mining.extranonce.subscribe":
			session.sendResult(req.ID, true)
		default:
			session.sendError(req.ID, -32601, "Method not found")
		}
	}
}

// extractIP strips the port from a host:port remote address, handling
// bracketed IPv6 forms.
func extractIP(remoteAddr string) string {
	if idx := strings.LastIndex(remoteAddr, ":"); idx != -1 {
		ip := remoteAddr[:idx]
		ip = strings.TrimPrefix(ip, "[")
		ip = strings.TrimSuffix(ip, "]")
		return ip
	}
	return remoteAddr
}
