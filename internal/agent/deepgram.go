package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

var ErrAlreadyConfigured = errors.New("agent connection already configured")

type DeepgramConfig struct {
	APIKey string
	WSURL  string
}

// DeepgramClient dials the Deepgram voice agent websocket endpoint.
type DeepgramClient struct {
	cfg DeepgramConfig
}

func NewDeepgramClient(cfg DeepgramConfig) *DeepgramClient {
	if strings.TrimSpace(cfg.WSURL) == "" {
		cfg.WSURL = "wss://agent.deepgram.com/v1/agent/converse"
	}
	return &DeepgramClient{cfg: cfg}
}

func (c *DeepgramClient) Connect(ctx context.Context) (Conn, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+c.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.WSURL, headers)
	if err != nil {
		return nil, fmt.Errorf("dial agent websocket: %w", err)
	}

	s := &deepgramConn{conn: conn, events: make(chan Event, 256)}
	// The socket is up, which is what the agent protocol treats as open; the
	// buffered channel holds the event until the session drains it.
	s.events <- Event{Type: EventOpen}
	go s.readLoop()
	return s, nil
}

type deepgramConn struct {
	conn       *websocket.Conn
	writeMu    sync.Mutex
	closeOnce  sync.Once
	configured atomic.Bool
	events     chan Event
}

type settingsMessage struct {
	Type  string      `json:"type"`
	Audio AudioConfig `json:"audio"`
	Agent AgentConfig `json:"agent"`
}

func (s *deepgramConn) Configure(_ context.Context, settings Settings) error {
	if !s.configured.CompareAndSwap(false, true) {
		return ErrAlreadyConfigured
	}
	msg := settingsMessage{Type: "Settings", Audio: settings.Audio, Agent: settings.Agent}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *deepgramConn) SendAudio(_ context.Context, frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (s *deepgramConn) Events() <-chan Event { return s.events }

func (s *deepgramConn) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		retErr = s.conn.Close()
	})
	return retErr
}

// readLoop owns the events channel: it is the only writer after Connect
// returns and the only closer, so a concurrent Close cannot race a send.
func (s *deepgramConn) readLoop() {
	defer close(s.events)
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.events <- Event{Type: EventClose}
			s.closeOnce.Do(func() { _ = s.conn.Close() })
			return
		}
		if msgType == websocket.BinaryMessage {
			s.events <- Event{Type: EventAudio, Audio: data}
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		switch asString(raw["type"]) {
		case "Error":
			s.events <- Event{
				Type:   EventError,
				Code:   asString(raw["code"]),
				Detail: asString(raw["description"]),
			}
		default:
			// Welcome, SettingsApplied, transcript events, keepalives.
		}
	}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
