package relay

import (
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mcolletti/prepcall/internal/agent"
	"github.com/mcolletti/prepcall/internal/config"
	"github.com/mcolletti/prepcall/internal/observability"
	"github.com/mcolletti/prepcall/internal/store"
)

// Server accepts client websocket connections and runs one Session per
// connection. Sessions share nothing, so there is no cross-connection state
// to guard here beyond the injected collaborators.
type Server struct {
	cfg      config.Config
	store    store.Store
	agent    agent.Client
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func NewServer(cfg config.Config, st store.Store, agentClient agent.Client, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		store:   st,
		agent:   agentClient,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up. Non-browser clients
				// omit Origin and are allowed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// HandleWS upgrades the connection, validates the interview identifier, and
// runs the relay session to completion. A missing identifier is rejected
// before any store or upstream work happens.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	interviewID := strings.TrimSpace(r.URL.Query().Get("interviewId"))
	if interviewID == "" {
		log.Printf("relay: rejected connection without interviewId")
		s.metrics.SessionEvents.WithLabelValues("rejected_missing_id").Inc()
		closeWith(conn, websocket.ClosePolicyViolation, closeReasonMissingID)
		return
	}

	sessionID := uuid.NewString()
	log.Printf("relay %s: client connected for interview %s", sessionID, interviewID)
	s.metrics.SessionEvents.WithLabelValues("accepted").Inc()

	sess := newSession(sessionID, interviewID, conn, s.agent, s.store, s.metrics, SessionOptions{
		ResolveTimeout:      s.cfg.ResolveTimeout,
		UpstreamOpenTimeout: s.cfg.UpstreamOpenTimeout,
		ListenModel:         s.cfg.ListenModel,
		SpeakModel:          s.cfg.SpeakModel,
		ThinkProviderURL:    s.cfg.ThinkProviderURL,
	})
	sess.Run(r.Context())
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	_ = conn.Close()
}
