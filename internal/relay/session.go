package relay

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcolletti/prepcall/internal/agent"
	"github.com/mcolletti/prepcall/internal/observability"
	"github.com/mcolletti/prepcall/internal/store"
)

// State enumerates the relay session lifecycle. Closed is terminal and
// reachable from every other state.
type State int32

const (
	StateResolvingContent State = iota
	StateConnectingUpstream
	StateConfiguring
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateResolvingContent:
		return "resolving_content"
	case StateConnectingUpstream:
		return "connecting_upstream"
	case StateConfiguring:
		return "configuring"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	closeReasonMissingID     = "Interview ID is required"
	closeReasonResolveFailed = "Could not retrieve interview questions."
	closeReasonUpstream      = "Could not reach the voice agent."
)

// Session relays audio between one client websocket and one upstream agent
// connection. It owns both endpoints exclusively and shares nothing with
// other sessions.
type Session struct {
	id          string
	interviewID string
	client      *websocket.Conn
	agentClient agent.Client
	questions   store.Store
	metrics     *observability.Metrics
	opts        SessionOptions

	upstream     agent.Conn
	state        atomic.Int32
	clientWMu    sync.Mutex
	clientClosed atomic.Bool
	shutdownOnce sync.Once
}

// SessionOptions carries the per-session tunables resolved from config.
type SessionOptions struct {
	ResolveTimeout      time.Duration
	UpstreamOpenTimeout time.Duration
	ListenModel         string
	SpeakModel          string
	ThinkProviderURL    string
}

func newSession(id, interviewID string, client *websocket.Conn, agentClient agent.Client, questions store.Store, metrics *observability.Metrics, opts SessionOptions) *Session {
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = 10 * time.Second
	}
	if opts.UpstreamOpenTimeout <= 0 {
		opts.UpstreamOpenTimeout = 10 * time.Second
	}
	return &Session{
		id:          id,
		interviewID: interviewID,
		client:      client,
		agentClient: agentClient,
		questions:   questions,
		metrics:     metrics,
		opts:        opts,
	}
}

// Run drives the session to completion. It returns once both endpoints are
// released. Failures are fatal to this session only.
func (s *Session) Run(ctx context.Context) {
	start := time.Now()

	// RESOLVING_CONTENT
	resolveCtx, cancel := context.WithTimeout(ctx, s.opts.ResolveTimeout)
	questions, err := s.questions.Questions(resolveCtx, s.interviewID)
	cancel()
	if err != nil || len(questions) == 0 {
		log.Printf("relay %s: could not resolve questions for interview %s: %v", s.id, s.interviewID, err)
		s.metrics.SessionEvents.WithLabelValues("resolve_failed").Inc()
		s.shutdown(websocket.CloseInternalServerErr, closeReasonResolveFailed)
		return
	}

	// CONNECTING_UPSTREAM
	s.setState(StateConnectingUpstream)
	dialCtx, cancel := context.WithTimeout(ctx, s.opts.UpstreamOpenTimeout)
	upstream, err := s.agentClient.Connect(dialCtx)
	cancel()
	if err != nil {
		log.Printf("relay %s: upstream connect failed: %v", s.id, err)
		s.metrics.SessionEvents.WithLabelValues("upstream_connect_failed").Inc()
		s.shutdown(websocket.CloseInternalServerErr, closeReasonUpstream)
		return
	}
	s.upstream = upstream

	if !s.awaitOpen(ctx, upstream) {
		s.metrics.SessionEvents.WithLabelValues("upstream_open_failed").Inc()
		s.shutdown(websocket.CloseInternalServerErr, closeReasonUpstream)
		return
	}

	// CONFIGURING
	s.setState(StateConfiguring)
	settings := s.buildSettings(questions)
	if err := upstream.Configure(ctx, settings); err != nil {
		log.Printf("relay %s: upstream configure failed: %v", s.id, err)
		s.metrics.SessionEvents.WithLabelValues("configure_failed").Inc()
		s.shutdown(websocket.CloseInternalServerErr, closeReasonUpstream)
		return
	}
	s.metrics.ObserveConfigureLatency(time.Since(start))
	s.metrics.SessionEvents.WithLabelValues("configured").Inc()

	// STREAMING
	s.setState(StateStreaming)
	s.metrics.ActiveSessions.Inc()
	defer s.metrics.ActiveSessions.Dec()

	upstreamDone := make(chan struct{})
	go func() {
		defer close(upstreamDone)
		s.upstreamLoop(upstream)
	}()

	s.clientLoop(ctx, upstream)

	s.shutdown(websocket.CloseNormalClosure, "")
	<-upstreamDone
}

// awaitOpen drains upstream events until the open event arrives. Anything
// else before open (close, error, a dead channel, timeout) is fatal.
func (s *Session) awaitOpen(ctx context.Context, upstream agent.Conn) bool {
	timer := time.NewTimer(s.opts.UpstreamOpenTimeout)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-upstream.Events():
			if !ok {
				log.Printf("relay %s: upstream closed before open", s.id)
				return false
			}
			switch ev.Type {
			case agent.EventOpen:
				return true
			case agent.EventClose, agent.EventError:
				log.Printf("relay %s: upstream %s before open: %s %s", s.id, ev.Type, ev.Code, ev.Detail)
				return false
			default:
				// Audio before open would be a protocol violation; skip it.
			}
		case <-timer.C:
			log.Printf("relay %s: timed out waiting for upstream open", s.id)
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func (s *Session) buildSettings(questions []string) agent.Settings {
	return agent.Settings{
		Audio: agent.AudioConfig{
			Input:  agent.AudioFormat{Encoding: "linear16", SampleRate: 16000},
			Output: agent.AudioFormat{Encoding: "mp3", SampleRate: 24000, Container: "mp3"},
		},
		Agent: agent.AgentConfig{
			Listen: agent.Listen{Provider: agent.Provider{Type: "deepgram", Model: s.opts.ListenModel}},
			Speak:  agent.Speak{Provider: agent.Provider{Type: "deepgram", Model: s.opts.SpeakModel}},
			Think: agent.Think{
				Provider: agent.Provider{Type: "webhook", URL: s.opts.ThinkProviderURL},
				Prompt:   ComposePrompt(questions),
			},
		},
	}
}

// clientLoop forwards client binary frames upstream in arrival order. It
// returns when the client disconnects or an upstream write fails.
func (s *Session) clientLoop(ctx context.Context, upstream agent.Conn) {
	for {
		msgType, data, err := s.client.ReadMessage()
		if err != nil {
			log.Printf("relay %s: client disconnected", s.id)
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := upstream.SendAudio(ctx, data); err != nil {
			log.Printf("relay %s: upstream send failed: %v", s.id, err)
			break
		}
		s.metrics.AudioFrames.WithLabelValues("client_to_upstream").Inc()
		s.metrics.AudioBytes.WithLabelValues("client_to_upstream").Add(float64(len(data)))
	}
	s.clientClosed.Store(true)
}

// upstreamLoop forwards upstream audio to the client until the upstream
// event channel is drained. Audio arriving after the client went away is
// dropped silently.
func (s *Session) upstreamLoop(upstream agent.Conn) {
	for ev := range upstream.Events() {
		switch ev.Type {
		case agent.EventAudio:
			if s.clientClosed.Load() {
				continue
			}
			s.clientWMu.Lock()
			err := s.client.WriteMessage(websocket.BinaryMessage, ev.Audio)
			s.clientWMu.Unlock()
			if err != nil {
				s.clientClosed.Store(true)
				continue
			}
			s.metrics.AudioFrames.WithLabelValues("upstream_to_client").Inc()
			s.metrics.AudioBytes.WithLabelValues("upstream_to_client").Add(float64(len(ev.Audio)))
		case agent.EventError:
			log.Printf("relay %s: upstream error %s: %s", s.id, ev.Code, ev.Detail)
			s.metrics.UpstreamErrors.WithLabelValues(errorCode(ev.Code)).Inc()
			s.shutdown(websocket.CloseInternalServerErr, closeReasonUpstream)
		case agent.EventClose:
			// Upstream hangup ends the session; the client reconnects to retry.
			log.Printf("relay %s: upstream connection closed", s.id)
			s.shutdown(websocket.CloseNormalClosure, "")
		case agent.EventOpen:
			// Already open; duplicate is harmless.
		}
	}
}

// shutdown is the single teardown path. Safe to call from any state and any
// goroutine; every call after the first is a no-op.
func (s *Session) shutdown(code int, reason string) {
	s.shutdownOnce.Do(func() {
		s.setState(StateClosed)
		if s.upstream != nil {
			_ = s.upstream.Close()
		}
		s.clientWMu.Lock()
		_ = s.client.SetWriteDeadline(time.Now().Add(2 * time.Second))
		_ = s.client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
		s.clientWMu.Unlock()
		_ = s.client.Close()
		s.clientClosed.Store(true)
		s.metrics.SessionEvents.WithLabelValues("closed").Inc()
		log.Printf("relay %s: session closed (%d %s)", s.id, code, reason)
	})
}

func (s *Session) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev != next {
		log.Printf("relay %s: %s -> %s", s.id, prev, next)
	}
}

func errorCode(code string) string {
	if code == "" {
		return "unknown"
	}
	return code
}
