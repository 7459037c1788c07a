package agent

import (
	"context"
	"sync"
)

// FakeClient is an in-process agent used by tests and local development. Each
// Connect yields a FakeConn whose events are driven by the test.
type FakeClient struct {
	mu         sync.Mutex
	ConnectErr error
	conns      []*FakeConn
}

func NewFakeClient() *FakeClient { return &FakeClient{} }

func (c *FakeClient) Connect(_ context.Context) (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ConnectErr != nil {
		return nil, c.ConnectErr
	}
	conn := NewFakeConn()
	c.conns = append(c.conns, conn)
	return conn, nil
}

// Conns returns every connection handed out so far.
func (c *FakeClient) Conns() []*FakeConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*FakeConn, len(c.conns))
	copy(out, c.conns)
	return out
}

type FakeConn struct {
	mu         sync.Mutex
	events     chan Event
	closed     bool
	closeCount int
	configured []Settings
	sent       [][]byte

	ConfigureErr error
	SendErr      error
}

func NewFakeConn() *FakeConn {
	return &FakeConn{events: make(chan Event, 256)}
}

func (c *FakeConn) Configure(_ context.Context, settings Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ConfigureErr != nil {
		return c.ConfigureErr
	}
	c.configured = append(c.configured, settings)
	return nil
}

func (c *FakeConn) SendAudio(_ context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	c.sent = append(c.sent, buf)
	return nil
}

func (c *FakeConn) Events() <-chan Event { return c.events }

func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.events)
	return nil
}

// EmitOpen, EmitAudio, EmitError and EmitClose inject synthetic upstream
// events. They are no-ops once the connection is closed.

func (c *FakeConn) EmitOpen() { c.emit(Event{Type: EventOpen}) }

func (c *FakeConn) EmitAudio(audio []byte) { c.emit(Event{Type: EventAudio, Audio: audio}) }

func (c *FakeConn) EmitError(code, detail string) {
	c.emit(Event{Type: EventError, Code: code, Detail: detail})
}

func (c *FakeConn) EmitClose() { c.emit(Event{Type: EventClose}) }

func (c *FakeConn) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- ev
}

// Configured returns a copy of every settings payload received.
func (c *FakeConn) Configured() []Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Settings, len(c.configured))
	copy(out, c.configured)
	return out
}

// Sent returns a copy of every audio frame received, in arrival order.
func (c *FakeConn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// CloseCount reports how many times Close has been called.
func (c *FakeConn) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}
