package agent

import "context"

type EventType string

const (
	EventOpen  EventType = "open"
	EventAudio EventType = "audio"
	EventClose EventType = "close"
	EventError EventType = "error"
)

// Event is a single occurrence on an upstream agent connection. Audio is set
// for EventAudio; Code and Detail are set for EventError.
type Event struct {
	Type   EventType
	Audio  []byte
	Code   string
	Detail string
}

// Settings is the one-time configuration payload for an agent connection.
type Settings struct {
	Audio AudioConfig `json:"audio"`
	Agent AgentConfig `json:"agent"`
}

type AudioConfig struct {
	Input  AudioFormat `json:"input"`
	Output AudioFormat `json:"output"`
}

type AudioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Container  string `json:"container,omitempty"`
}

type AgentConfig struct {
	Listen Listen `json:"listen"`
	Speak  Speak  `json:"speak"`
	Think  Think  `json:"think"`
}

type Provider struct {
	Type  string `json:"type"`
	Model string `json:"model,omitempty"`
	URL   string `json:"url,omitempty"`
}

type Listen struct {
	Provider Provider `json:"provider"`
}

type Speak struct {
	Provider Provider `json:"provider"`
}

type Think struct {
	Provider Provider `json:"provider"`
	Prompt   string   `json:"prompt"`
}

// Conn is one live upstream agent connection. Events returns the channel the
// connection was created with, so no event emitted after Connect can be lost.
// The channel is closed when the connection dies.
type Conn interface {
	Configure(ctx context.Context, settings Settings) error
	SendAudio(ctx context.Context, frame []byte) error
	Events() <-chan Event
	Close() error
}

// Client opens upstream agent connections.
type Client interface {
	Connect(ctx context.Context) (Conn, error)
}
