package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LegalCornerLawOffice/AI-Voice/internal/agent"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/catalog"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/config"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/flow"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/session"
)

const testCatalog = `
sections:
  - name: Basics
    questions:
      - id: Job_Title
        label: Job title
        kind: text
`

type fakeTranscriber struct {
	partials chan string
	finals   chan string
}

func newFakeTranscriber() *fakeTranscriber {
	return &fakeTranscriber{partials: make(chan string, 10), finals: make(chan string, 10)}
}

func (f *fakeTranscriber) Connect() error                                  { return nil }
func (f *fakeTranscriber) SendPCM16KLE(pcm []byte) error                   { return nil }
func (f *fakeTranscriber) Partials() <-chan string                         { return f.partials }
func (f *fakeTranscriber) Finals() <-chan string                           { return f.finals }
func (f *fakeTranscriber) RecentlyDetectedVoice(window time.Duration) bool { return false }
func (f *fakeTranscriber) Err() error                                      { return nil }
func (f *fakeTranscriber) Close() error                                    { return nil }

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = time.Hour
	}
	return New(cfg, Deps{
		Catalog:        cat,
		Engine:         flow.New(cat),
		Store:          session.NewMemoryStore(),
		NewTranscriber: func() agent.Transcriber { return newFakeTranscriber() },
	})
}

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(t, config.Config{})
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Echo.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAuthOK(t *testing.T) {
	// Missing expected -> accept
	if !authOK(nil, "") {
		t.Fatalf("expected true when expected empty")
	}
	r := httptest.NewRequest(http.MethodGet, "/?password=secret", nil)
	if !authOK(r, "secret") {
		t.Fatalf("expected true with query password")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "tok")
	if !authOK(r2, "tok") {
		t.Fatalf("expected true with X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Bearer abc")
	if !authOK(r3, "abc") {
		t.Fatalf("expected true with Authorization bearer")
	}
	r4 := httptest.NewRequest(http.MethodGet, "/", nil)
	r4.Header.Set("Authorization", "bearer abc")
	if !authOK(r4, "abc") {
		t.Fatalf("expected true with lowercase bearer prefix")
	}
}

func TestAuthOK_NegativeCases(t *testing.T) {
	r1 := httptest.NewRequest(http.MethodGet, "/?password=wrong", nil)
	if authOK(r1, "secret") {
		t.Fatalf("expected false with wrong query token")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "nope")
	if authOK(r2, "secret") {
		t.Fatalf("expected false with wrong X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Bearer nope")
	if authOK(r3, "secret") {
		t.Fatalf("expected false with wrong bearer token")
	}
}

func TestCall_Unauthorized(t *testing.T) {
	srv := newTestServer(t, config.Config{AuthPassword: "secret"})
	r := httptest.NewRequest(http.MethodGet, "/call", nil)
	w := httptest.NewRecorder()
	srv.Echo.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestDebugSessions_Unauthorized(t *testing.T) {
	srv := newTestServer(t, config.Config{AuthPassword: "secret"})
	r := httptest.NewRequest(http.MethodGet, "/debug/sessions", nil)
	w := httptest.NewRecorder()
	srv.Echo.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestCall_WebsocketGreetingAndRegistry(t *testing.T) {
	srv := newTestServer(t, config.Config{})
	ts := httptest.NewServer(srv.Echo)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/call?session=ws-test"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// the greeting arrives as the first prompt-text frame
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	var ev struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != "prompt-text" || ev.Text == "" {
		t.Fatalf("expected greeting prompt-text, got %+v", ev)
	}

	// while the call is connected it shows up in the debug registry
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r := httptest.NewRequest(http.MethodGet, "/debug/sessions", nil)
		w := httptest.NewRecorder()
		srv.Echo.ServeHTTP(w, r)
		var body struct {
			Active int `json:"active"`
		}
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		if body.Active == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("call never appeared in debug registry")
}
