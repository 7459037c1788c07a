package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcolletti/prepcall/internal/agent"
	"github.com/mcolletti/prepcall/internal/config"
	"github.com/mcolletti/prepcall/internal/observability"
	"github.com/mcolletti/prepcall/internal/store"
)

var metricsSeq atomic.Int64

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("relaytest%d", metricsSeq.Add(1)))
}

// countingStore wraps a Store and counts Questions lookups.
type countingStore struct {
	store.Store
	mu    sync.Mutex
	calls int
}

func (c *countingStore) Questions(ctx context.Context, id string) ([]string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Store.Questions(ctx, id)
}

func (c *countingStore) questionCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type relayFixture struct {
	ts     *httptest.Server
	store  *countingStore
	client *agent.FakeClient
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	cs := &countingStore{Store: store.NewInMemoryStore()}
	fake := agent.NewFakeClient()
	cfg := config.Config{
		ResolveTimeout:      2 * time.Second,
		UpstreamOpenTimeout: 2 * time.Second,
		ListenModel:         "nova-2",
		SpeakModel:          "aura-asteria-en",
		ThinkProviderURL:    "http://localhost:3001/api/deepgram/generate",
		AllowAnyOrigin:      true,
	}
	srv := NewServer(cfg, cs, fake, newTestMetrics())
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWS))
	t.Cleanup(ts.Close)
	return &relayFixture{ts: ts, store: cs, client: fake}
}

func (f *relayFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", query, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *relayFixture) seedInterview(t *testing.T, questions []string) store.Interview {
	t.Helper()
	iv, err := f.store.Create(context.Background(), store.Interview{
		UserID:    "u1",
		Role:      "Backend Engineer",
		Questions: questions,
	})
	if err != nil {
		t.Fatalf("seed interview: %v", err)
	}
	return iv
}

// expectClose reads until the peer closes and returns the close code/text.
func expectClose(t *testing.T, conn *websocket.Conn) (int, string) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return ce.Code, ce.Text
		}
		t.Fatalf("connection ended without close frame: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRejectsMissingInterviewID(t *testing.T) {
	f := newRelayFixture(t)
	conn := f.dial(t, "")

	code, text := expectClose(t, conn)
	if code != websocket.ClosePolicyViolation {
		t.Fatalf("close code = %d, want 1008", code)
	}
	if text != "Interview ID is required" {
		t.Fatalf("close reason = %q", text)
	}
	if got := f.store.questionCalls(); got != 0 {
		t.Fatalf("store was queried %d times, want 0", got)
	}
	if got := len(f.client.Conns()); got != 0 {
		t.Fatalf("upstream connections = %d, want 0", got)
	}
}

func TestClosesWhenInterviewUnknown(t *testing.T) {
	f := newRelayFixture(t)
	conn := f.dial(t, "?interviewId=missing")

	code, text := expectClose(t, conn)
	if code != websocket.CloseInternalServerErr {
		t.Fatalf("close code = %d, want 1011", code)
	}
	if text != "Could not retrieve interview questions." {
		t.Fatalf("close reason = %q", text)
	}
	if got := len(f.client.Conns()); got != 0 {
		t.Fatalf("upstream connections = %d, want 0", got)
	}
}

func TestClosesWhenQuestionListEmpty(t *testing.T) {
	f := newRelayFixture(t)
	iv := f.seedInterview(t, nil)
	conn := f.dial(t, "?interviewId="+iv.ID)

	code, text := expectClose(t, conn)
	if code != websocket.CloseInternalServerErr || text != "Could not retrieve interview questions." {
		t.Fatalf("close = %d %q, want 1011 with resolve reason", code, text)
	}
	if got := len(f.client.Conns()); got != 0 {
		t.Fatalf("upstream connections = %d, want 0", got)
	}
}

func TestClosesWhenUpstreamConnectFails(t *testing.T) {
	f := newRelayFixture(t)
	f.client.ConnectErr = errors.New("upstream down")
	iv := f.seedInterview(t, []string{"Why us?"})
	conn := f.dial(t, "?interviewId="+iv.ID)

	code, _ := expectClose(t, conn)
	if code != websocket.CloseInternalServerErr {
		t.Fatalf("close code = %d, want 1011", code)
	}
}

func TestConfiguresAfterOpenAndRelaysBothWays(t *testing.T) {
	f := newRelayFixture(t)
	iv := f.seedInterview(t, []string{"What is your name?", "Describe a challenge you overcame."})
	conn := f.dial(t, "?interviewId="+iv.ID)

	waitFor(t, "upstream connect", func() bool { return len(f.client.Conns()) == 1 })
	up := f.client.Conns()[0]

	if got := len(up.Configured()); got != 0 {
		t.Fatalf("configured before open: %d payloads", got)
	}
	up.EmitOpen()
	waitFor(t, "configure", func() bool { return len(up.Configured()) == 1 })

	settings := up.Configured()[0]
	if settings.Audio.Input.Encoding != "linear16" || settings.Audio.Input.SampleRate != 16000 {
		t.Fatalf("input audio = %+v", settings.Audio.Input)
	}
	if settings.Audio.Output.Encoding != "mp3" || settings.Audio.Output.SampleRate != 24000 {
		t.Fatalf("output audio = %+v", settings.Audio.Output)
	}
	if settings.Agent.Listen.Provider.Model != "nova-2" || settings.Agent.Speak.Provider.Model != "aura-asteria-en" {
		t.Fatalf("model selectors = %+v", settings.Agent)
	}
	wantTail := "1. What is your name?\n2. Describe a challenge you overcame."
	if !strings.HasSuffix(settings.Agent.Think.Prompt, wantTail) {
		t.Fatalf("prompt tail mismatch:\n%s", settings.Agent.Think.Prompt)
	}

	// Client to upstream, order preserved.
	frames := [][]byte{{1}, {2, 2}, {3, 3, 3}}
	for _, frame := range frames {
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			t.Fatalf("client write: %v", err)
		}
	}
	waitFor(t, "frames forwarded", func() bool { return len(up.Sent()) == len(frames) })
	for i, frame := range up.Sent() {
		if !bytes.Equal(frame, frames[i]) {
			t.Fatalf("frame %d = %v, want %v", i, frame, frames[i])
		}
	}

	// Upstream to client.
	up.EmitAudio([]byte{9, 9})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if msgType != websocket.BinaryMessage || !bytes.Equal(data, []byte{9, 9}) {
		t.Fatalf("client received %d %v", msgType, data)
	}

	// Client hangup releases the upstream connection exactly once, even with
	// the upstream close event racing in.
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	waitFor(t, "upstream released", func() bool { return up.CloseCount() >= 1 })
	up.EmitClose()
	time.Sleep(20 * time.Millisecond)
	if got := up.CloseCount(); got != 1 {
		t.Fatalf("upstream Close called %d times, want 1", got)
	}
}

func TestUpstreamCloseTearsDownSession(t *testing.T) {
	f := newRelayFixture(t)
	iv := f.seedInterview(t, []string{"Why us?"})
	conn := f.dial(t, "?interviewId="+iv.ID)

	waitFor(t, "upstream connect", func() bool { return len(f.client.Conns()) == 1 })
	up := f.client.Conns()[0]
	up.EmitOpen()
	waitFor(t, "configure", func() bool { return len(up.Configured()) == 1 })

	up.EmitClose()
	code, _ := expectClose(t, conn)
	if code != websocket.CloseNormalClosure {
		t.Fatalf("close code = %d, want 1000", code)
	}
	waitFor(t, "upstream released", func() bool { return up.CloseCount() >= 1 })
}

func TestAudioAfterClientCloseIsDropped(t *testing.T) {
	f := newRelayFixture(t)
	iv := f.seedInterview(t, []string{"Why us?"})
	conn := f.dial(t, "?interviewId="+iv.ID)

	waitFor(t, "upstream connect", func() bool { return len(f.client.Conns()) == 1 })
	up := f.client.Conns()[0]
	up.EmitOpen()
	waitFor(t, "configure", func() bool { return len(up.Configured()) == 1 })

	_ = conn.Close()
	waitFor(t, "upstream released", func() bool { return up.CloseCount() >= 1 })

	// A straggling audio chunk after teardown must be swallowed.
	up.EmitAudio([]byte{1, 2, 3})

	// A second, concurrent session is unaffected.
	other := f.seedInterview(t, []string{"Still here?"})
	conn2 := f.dial(t, "?interviewId="+other.ID)
	waitFor(t, "second upstream connect", func() bool { return len(f.client.Conns()) == 2 })
	up2 := f.client.Conns()[1]
	up2.EmitOpen()
	waitFor(t, "second configure", func() bool { return len(up2.Configured()) == 1 })
	if err := conn2.WriteMessage(websocket.BinaryMessage, []byte{4}); err != nil {
		t.Fatalf("second session write: %v", err)
	}
	waitFor(t, "second session forward", func() bool { return len(up2.Sent()) == 1 })
}
