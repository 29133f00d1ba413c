package httpserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/LegalCornerLawOffice/AI-Voice/internal/agent"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsEvent is the JSON control frame sent to the client. Audio goes out as
// separate binary frames.
type wsEvent struct {
	Type    string `json:"type"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text,omitempty"`
	Status  string `json:"status,omitempty"`
}

// clientMessage is the JSON control frame received from the client.
type clientMessage struct {
	Type string `json:"type"`
}

// wsSink delivers session events over one websocket connection. Writes are
// serialized; gorilla connections allow one concurrent writer only.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{conn: conn, done: make(chan struct{})}
}

func (w *wsSink) writeJSON(ev wsEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteJSON(ev); err != nil {
		log.Printf("ws sink: write %s event: %v", ev.Type, err)
	}
}

func (w *wsSink) PromptText(sp session.Speaker, text string) {
	w.writeJSON(wsEvent{Type: "prompt-text", Speaker: string(sp), Text: text})
}

func (w *wsSink) AudioChunk(pcm []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		log.Printf("ws sink: write audio: %v", err)
	}
}

func (w *wsSink) Interrupt() {
	w.writeJSON(wsEvent{Type: "interrupt"})
}

func (w *wsSink) End(status session.Status) {
	w.writeJSON(wsEvent{Type: "end", Status: string(status)})
	w.once.Do(func() { close(w.done) })
}

// Done is closed once the end event has been sent.
func (w *wsSink) Done() <-chan struct{} { return w.done }

// handleCall upgrades to websocket and runs one intake call over it.
// Inbound binary frames are 16kHz LE mono PCM; inbound text frames are
// control messages ("barge-in", "hangup").
func (s *Server) handleCall(c echo.Context) error {
	if !authOK(c.Request(), s.cfg.AuthPassword) {
		return c.String(http.StatusUnauthorized, "unauthorized")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return nil
	}
	defer conn.Close()

	id := c.QueryParam("session")
	if id == "" {
		id = newCallID()
	}
	prefilled := map[string]string{}
	if from := c.QueryParam("from"); from != "" {
		prefilled["Client_Phone_Number"] = from
	}

	sink := newWSSink(conn)
	sess := agent.NewSession(id, prefilled, s.cfg.SessionTTL, agent.Deps{
		Catalog:     s.deps.Catalog,
		Engine:      s.deps.Engine,
		Store:       s.deps.Store,
		Transcriber: s.deps.NewTranscriber(),
		Responder:   s.deps.Responder,
		Speech:      s.deps.Speech,
		Sink:        sink,
		Recorder:    s.deps.Recorder,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop, err := sess.Start(ctx)
	if err != nil {
		log.Printf("session %s: start failed: %v", id, err)
		sink.writeJSON(wsEvent{Type: "end", Status: string(session.StatusFailed)})
		return nil
	}
	defer stop()
	s.register(id, sess)
	defer s.unregister(id)
	log.Printf("session %s: call connected", id)

	// close the socket shortly after the end event so the client hears the
	// tail of the closing audio
	go func() {
		select {
		case <-ctx.Done():
		case <-sink.Done():
			time.Sleep(500 * time.Millisecond)
			s.closeConn(conn)
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("session %s: client disconnected: %v", id, err)
			return nil
		}
		switch msgType {
		case websocket.BinaryMessage:
			sess.FeedPCM16KLE(data)
		case websocket.TextMessage:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Printf("session %s: bad control frame: %v", id, err)
				continue
			}
			switch msg.Type {
			case "barge-in":
				sess.BargeIn()
			case "hangup":
				s.closeConn(conn)
				return nil
			}
		}
	}
}

func (s *Server) closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}
