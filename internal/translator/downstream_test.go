package translator

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"
)

// recordingDispatcher is a fake Dispatcher recording every call it
// receives, used to test Server's accept loop and request dispatch in
// isolation from Manager's channel/upstream logic.
type recordingDispatcher struct {
	mu           sync.Mutex
	subscribes   []string
	authorizes   []string
	submits      []string
	disconnected int
}

func (d *recordingDispatcher) HandleSubscribe(s *Session, req *Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribes = append(d.subscribes, s.ExtraNonce1)
	s.sendResult(req.ID, []interface{}{[][]string{}, s.ExtraNonce1, s.ExtraNonce2Size})
}

func (d *recordingDispatcher) HandleAuthorize(s *Session, req *Request) {
	worker, _ := req.Params[0].(string)
	d.mu.Lock()
	d.authorizes = append(d.authorizes, worker)
	d.mu.Unlock()
	s.Authorize(worker)
	s.sendResult(req.ID, true)
}

func (d *recordingDispatcher) HandleSubmit(s *Session, req *Request) {
	if !s.IsAuthorized() {
		s.sendError(req.ID, 24, "Unauthorized worker")
		return
	}
	worker, _ := req.Params[0].(string)
	d.mu.Lock()
	d.submits = append(d.submits, worker)
	d.mu.Unlock()
	s.sendResult(req.ID, true)
}

func (d *recordingDispatcher) OnDisconnect(s *Session) {
	d.mu.Lock()
	d.disconnected++
	d.mu.Unlock()
}

func startTestServer(t *testing.T) (*Server, *recordingDispatcher) {
	t.Helper()
	dispatcher := &recordingDispatcher{}
	srv := NewServer("127.0.0.1:0", nil, dispatcher, nil, 4)
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv, dispatcher
}

func TestServerDispatchesSubscribeAuthorizeSubmit(t *testing.T) {
	srv, dispatcher := startTestServer(t)

	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	reader := bufio.NewReader(conn)
	writeLine := func(v interface{}) {
		data, _ := json.Marshal(v)
		data = append(data, '\n')
		if _, err := conn.Write(data); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	readResponse := func() Response {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var resp Response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		return resp
	}

	writeLine(map[string]interface{}{"id": 1, "method": "mining.subscribe", "params": []interface{}{}})
	sub := readResponse()
	if sub.Error != nil {
		t.Fatalf("subscribe error: %v", sub.Error)
	}

	writeLine(map[string]interface{}{"id": 2, "method": "mining.authorize", "params": []interface{}{"worker1", "x"}})
	auth := readResponse()
	if auth.Error != nil {
		t.Fatalf("authorize error: %v", auth.Error)
	}

	writeLine(map[string]interface{}{"id": 3, "method": "mining.submit", "params": []interface{}{"worker1", "00000001", "00000000", "00000000", "00000000"}})
	submit := readResponse()
	if submit.Error != nil {
		t.Fatalf("submit error: %v", submit.Error)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond)

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.subscribes) != 1 {
		t.Fatalf("expected 1 subscribe, got %d", len(dispatcher.subscribes))
	}
	if len(dispatcher.authorizes) != 1 || dispatcher.authorizes[0] != "worker1" {
		t.Fatalf("expected 1 authorize for worker1, got %v", dispatcher.authorizes)
	}
	if len(dispatcher.submits) != 1 || dispatcher.submits[0] != "worker1" {
		t.Fatalf("expected 1 submit for worker1, got %v", dispatcher.submits)
	}
	if dispatcher.disconnected != 1 {
		t.Fatalf("expected OnDisconnect to fire once, got %d", dispatcher.disconnected)
	}
}

func TestServerRejectsSubmitBeforeAuthorize(t *testing.T) {
	srv, _ := startTestServer(t)

	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	reader := bufio.NewReader(conn)
	writeLine := func(v interface{}) {
		data, _ := json.Marshal(v)
		data = append(data, '\n')
		conn.Write(data)
	}
	readResponse := func() Response {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var resp Response
		json.Unmarshal([]byte(line), &resp)
		return resp
	}

	writeLine(map[string]interface{}{"id": 1, "method": "mining.submit", "params": []interface{}{"worker1", "00000001", "00000000", "00000000", "00000000"}})
	resp := readResponse()
	if resp.Error == nil {
		t.Fatal("expected an error response for an unauthorized submit")
	}
}

func TestServerRejectsMalformedJSON(t *testing.T) {
	srv, _ := startTestServer(t)

	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := conn.Write([]byte("not json at all\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", line, err)
	}
	if resp.Error == nil {
		t.Fatal("expected a parse-error response for malformed JSON")
	}
}

func TestServerUnknownMethodReturnsError(t *testing.T) {
	srv, _ := startTestServer(t)

	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	data, _ := json.Marshal(map[string]interface{}{"id": 1, "method": "mining.bogus", "params": []interface{}{}})
	conn.Write(append(data, '\n'))

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", line, err)
	}
	if resp.Error == nil {
		t.Fatal("expected an error response for an unknown method")
	}
}
