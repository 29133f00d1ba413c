// Package httpserver exposes the call channel over websocket plus health
// and debug endpoints. Audio travels as binary frames; prompts, interrupts,
// and the end-of-call signal as JSON text frames.
package httpserver

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/LegalCornerLawOffice/AI-Voice/internal/agent"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/catalog"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/config"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/flow"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/session"
)

// Deps carries the shared pieces every call session is wired from.
type Deps struct {
	Catalog   *catalog.Catalog
	Engine    *flow.Engine
	Store     session.Store
	Recorder  agent.Recorder
	Responder agent.Responder
	Speech    agent.Speech
	// NewTranscriber builds a fresh STT stream per call.
	NewTranscriber func() agent.Transcriber
}

type activeCall struct {
	sess      *agent.Session
	startedAt time.Time
}

// Server bundles the router and the registry of in-flight calls.
type Server struct {
	Echo *echo.Echo

	cfg  config.Config
	deps Deps

	mu     sync.Mutex
	active map[string]*activeCall
}

// New constructs the HTTP server with routes.
func New(cfg config.Config, deps Deps) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		active: make(map[string]*activeCall),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/call", s.handleCall)
	e.GET("/debug/sessions", s.handleDebugSessions)

	s.Echo = e
	return s
}

func (s *Server) register(id string, sess *agent.Session) {
	s.mu.Lock()
	s.active[id] = &activeCall{sess: sess, startedAt: time.Now()}
	s.mu.Unlock()
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

type sessionInfo struct {
	ID        string    `json:"id"`
	Phase     string    `json:"phase"`
	StartedAt time.Time `json:"started_at"`

	DurationSeconds float64 `json:"duration_seconds"`
	CurrentSection  string  `json:"current_section,omitempty"`
	Collected       int     `json:"fields_collected"`
	Confirmed       int     `json:"fields_confirmed"`
}

// handleDebugSessions reports the in-flight calls of this process.
// Progress figures come from the last persisted snapshot, so a call that
// has not written state yet shows zeros.
func (s *Server) handleDebugSessions(c echo.Context) error {
	if !authOK(c.Request(), s.cfg.AuthPassword) {
		return c.String(http.StatusUnauthorized, "unauthorized")
	}
	s.mu.Lock()
	out := make([]sessionInfo, 0, len(s.active))
	for id, call := range s.active {
		info := sessionInfo{
			ID:              id,
			Phase:           phaseName(call.sess.Phase()),
			StartedAt:       call.startedAt,
			DurationSeconds: time.Since(call.startedAt).Seconds(),
		}
		if st, err := s.deps.Store.Get(c.Request().Context(), id); err == nil {
			info.Collected = len(st.Answers)
			info.Confirmed = len(st.Confirmed())
			if st.SectionIdx < len(st.SectionOrder) {
				info.CurrentSection = st.SectionOrder[st.SectionIdx]
			}
		}
		out = append(out, info)
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]any{
		"active":   len(out),
		"sessions": out,
	})
}

func phaseName(p agent.Phase) string {
	switch p {
	case agent.PhaseGreeting:
		return "greeting"
	case agent.PhaseQuestioning:
		return "questioning"
	case agent.PhaseClosing:
		return "closing"
	default:
		return "ended"
	}
}

// authOK accepts the shared password via query parameter, X-Auth-Token
// header, or Authorization bearer token. An empty expected password
// disables the check.
func authOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	if r.URL.Query().Get("password") == expected {
		return true
	}
	if r.Header.Get("X-Auth-Token") == expected {
		return true
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") && auth[7:] == expected {
		return true
	}
	return false
}

func newCallID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}
