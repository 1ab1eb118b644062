package translator

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hashpool/hashpool/internal/policy"
	"github.com/hashpool/hashpool/internal/util"
)

// upgrader matches the teacher's permissive CheckOrigin: mining
// clients are not browsers, there is no cross-origin credential to
// protect.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsConn adapts a gorilla websocket.Conn to downstreamConn, so
// serveSession in downstream.go drives WebSocket-carried SV1 sessions
// through the exact same dispatch path as raw TCP ones. Each whole
// WebSocket message is treated as one "line"; ReadLine's isPrefix
// return is always false since gorilla already frames messages.
type wsConn struct {
	conn *websocket.Conn
	addr string
	mu   sync.Mutex
}

func (c *wsConn) ReadLine() ([]byte, bool, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, false, err
	}
	return data, false, nil
}

func (c *wsConn) WriteFrame(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *wsConn) Close() error { return c.conn.Close() }

func (c *wsConn) RemoteAddr() string { return c.addr }

func (c *wsConn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

// WSServer is the WebSocket-carried SV1 listener, for miners that
// speak stratum over WebSocket instead of raw TCP. Grounded on
// internal/slave/websocket.go's WebSocketServer (HTTP upgrade, origin
// policy, per-connection goroutine), feeding into the same
// Dispatcher/serveSession core as Server rather than its own
// handleRequest switch, since that switch is SV1-shaped here from the
// start.
type WSServer struct {
	listenAddr string
	policy     *policy.PolicyServer
	dispatcher Dispatcher

	ids             *idAllocator
	extranonce2Size int

	httpServer *http.Server
	quit       chan struct{}
	wg         sync.WaitGroup
}

func NewWSServer(listenAddr string, policyServer *policy.PolicyServer, dispatcher Dispatcher, ids *idAllocator, extranonce2Size int) *WSServer {
	if extranonce2Size <= 0 {
		extranonce2Size = 4
	}
	if ids == nil {
		ids = newIDAllocator()
	}
	return &WSServer{
		listenAddr:      listenAddr,
		policy:          policyServer,
		dispatcher:      dispatcher,
		ids:             ids,
		extranonce2Size: extranonce2Size,
		quit:            make(chan struct{}),
	}
}

func (s *WSServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	mux.HandleFunc("/ws", s.handleUpgrade)

	s.httpServer = &http.Server{Addr: s.listenAddr, Handler: mux}
	util.Infof("translator: SV1 WebSocket stratum listening on %s", s.listenAddr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Errorf("translator: WebSocket server error: %v", err)
		}
	}()
	return nil
}

func (s *WSServer) Stop() {
	close(s.quit)
	if s.httpServer != nil {
		s.httpServer.Close()
	}
	s.wg.Wait()
}

func (s *WSServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ip := extractIP(r.RemoteAddr)
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ip = forwarded
	}

	if s.policy != nil {
		if s.policy.IsBanned(ip) {
			http.Error(w, "Banned", http.StatusForbidden)
			return
		}
		if !s.policy.ApplyConnectionLimit(ip) {
			http.Error(w, "Too many connections", http.StatusTooManyRequests)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.Warnf("translator: WebSocket upgrade error: %v", err)
		return
	}

	id := s.ids.nextSessionID()
	extranonce1 := s.ids.nextExtranonce1()
	session := newSession(id, &wsConn{conn: conn, addr: r.RemoteAddr}, extranonce1, s.extranonce2Size)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		serveSession(session, s.policy, s.dispatcher, s.quit)
	}()
}
