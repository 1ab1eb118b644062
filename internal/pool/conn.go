package pool

import (
	"bytes"
	"fmt"
	"net"
	"sync"

	"github.com/hashpool/hashpool/internal/sv2frame"
	"github.com/hashpool/hashpool/internal/sv2noise"
)

// conn is one downstream connection after its Noise handshake and
// SetupConnection negotiation have completed: a transport that seals
// and opens SV2 frames, and the set of channels it has open. One
// connection may open several channels (one per worker, in the common
// case of a multi-worker proxy sitting downstream).
type conn struct {
	raw       net.Conn
	transport *sv2noise.Transport

	writeMu sync.Mutex

	mu       sync.Mutex
	channels map[uint32]struct{}
}

func newConn(raw net.Conn, transport *sv2noise.Transport) *conn {
	return &conn{
		raw:       raw,
		transport: transport,
		channels:  make(map[uint32]struct{}),
	}
}

func (c *conn) addChannel(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[id] = struct{}{}
}

func (c *conn) removeChannel(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, id)
}

func (c *conn) ownsChannel(id uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[id]
	return ok
}

func (c *conn) channelIDs() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint32, 0, len(c.channels))
	for id := range c.channels {
		out = append(out, id)
	}
	return out
}

// send encodes and seals one SV2 frame, serialized against concurrent
// writers by writeMu so two goroutines racing to notify the same
// connection (e.g. a job update and a mint quote notification) never
// interleave partial records.
func (c *conn) send(extensionType uint16, msgType uint8, payload []byte) error {
	buf, err := sv2frame.Encode(sv2frame.Frame{ExtensionType: extensionType, MsgType: msgType, Payload: payload})
	if err != nil {
		return fmt.Errorf("pool: encode frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.transport.WriteMessage(buf)
}

// receive blocks for the next sealed record and decodes it as one SV2
// frame.
func (c *conn) receive() (sv2frame.Frame, error) {
	msg, err := c.transport.ReadMessage()
	if err != nil {
		return sv2frame.Frame{}, err
	}
	return sv2frame.Read(bytes.NewReader(msg))
}

func (c *conn) close() {
	c.raw.Close()
}
