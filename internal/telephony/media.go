package telephony

import (
	"context"
	"encoding/base64"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/LegalCornerLawOffice/AI-Voice/internal/agent"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/session"
)

var mediaUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// mediaMessage covers the Twilio media stream frames we care about.
type mediaMessage struct {
	Event string `json:"event"`
	Start *struct {
		StreamSid string `json:"streamSid"`
		CallSid   string `json:"callSid"`
	} `json:"start,omitempty"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
}

// mediaSink renders session events onto a Twilio media stream. Prompt text
// has no channel on a phone call and is dropped; interrupts map to the
// stream's clear event.
type mediaSink struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	streamSid string
	done      chan struct{}
	once      sync.Once
}

func newMediaSink(conn *websocket.Conn, streamSid string) *mediaSink {
	return &mediaSink{conn: conn, streamSid: streamSid, done: make(chan struct{})}
}

func (m *mediaSink) writeJSON(v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.conn.WriteJSON(v); err != nil {
		log.Printf("media sink: write: %v", err)
	}
}

func (m *mediaSink) PromptText(session.Speaker, string) {}

func (m *mediaSink) AudioChunk(pcm48k []byte) {
	payload := base64.StdEncoding.EncodeToString(MulawEncode(Downsample48kTo8k(pcm48k)))
	m.writeJSON(map[string]any{
		"event":     "media",
		"streamSid": m.streamSid,
		"media":     map[string]string{"payload": payload},
	})
}

func (m *mediaSink) Interrupt() {
	m.writeJSON(map[string]any{"event": "clear", "streamSid": m.streamSid})
}

func (m *mediaSink) End(session.Status) {
	m.once.Do(func() { close(m.done) })
}

func (m *mediaSink) Done() <-chan struct{} { return m.done }

// handleMedia runs one phone call over a Twilio bidirectional media stream.
// Inbound frames carry base64 mulaw at 8kHz; they are transcoded to 16kHz
// PCM for the transcriber, and agent audio goes back the other way.
func (s *Service) handleMedia(c echo.Context) error {
	conn, err := mediaUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("media upgrade failed: %v", err)
		return nil
	}
	defer conn.Close()

	from := c.QueryParam("from")
	id := c.QueryParam("session")

	// Twilio sends connected then start before any media; the session can
	// only speak once the streamSid is known.
	var sink *mediaSink
	var callSID string
	for sink == nil {
		var msg mediaMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Printf("media stream: handshake read: %v", err)
			return nil
		}
		if msg.Event == "start" && msg.Start != nil {
			callSID = msg.Start.CallSid
			if id == "" {
				id = callSID
			}
			sink = newMediaSink(conn, msg.Start.StreamSid)
		}
	}

	if callSID != "" {
		callbackURL := buildURL(c.Request(), "/twilio/recording-status")
		go func() {
			if err := s.startRecording(callSID, callbackURL); err != nil {
				log.Printf("session %s: start call recording: %v", id, err)
			}
		}()
	}

	prefilled := map[string]string{}
	if from != "" {
		prefilled["Client_Phone_Number"] = from
	}

	sess := agent.NewSession(id, prefilled, s.deps.SessionTTL, agent.Deps{
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
		return nil
	}
	defer stop()
	log.Printf("session %s: media stream connected", id)

	go func() {
		select {
		case <-ctx.Done():
		case <-sink.Done():
			cancel()
		}
	}()

	for {
		var msg mediaMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Printf("session %s: media stream closed: %v", id, err)
			return nil
		}
		switch msg.Event {
		case "media":
			if msg.Media == nil {
				continue
			}
			ulaw, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				log.Printf("session %s: bad media payload: %v", id, err)
				continue
			}
			sess.FeedPCM16KLE(Upsample8kTo16k(MulawDecode(ulaw)))
		case "stop":
			return nil
		}
	}
}
