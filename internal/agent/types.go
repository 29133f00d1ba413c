package agent

import (
	"context"
	"time"

	"github.com/LegalCornerLawOffice/AI-Voice/internal/session"
)

// Transcriber is the minimal interface for realtime STT.
// It must accept PCM 16kHz little-endian mono buffers and emit live and finalized text.
type Transcriber interface {
	Connect() error
	SendPCM16KLE(pcm []byte) error
	// Partials streams interim transcript fragments (optional UI, barge-in signal).
	Partials() <-chan string
	// Finals signals end-of-utterance with the committable text.
	Finals() <-chan string
	// RecentlyDetectedVoice returns true if voice energy was seen within the given window.
	RecentlyDetectedVoice(window time.Duration) bool
	// Err reports the terminal stream failure once Finals has closed; nil
	// means the stream ended cleanly (caller hangup or orderly Close).
	Err() error
	Close() error
}

// Responder re-phrases a scripted prompt given recent conversation history.
// It has no authority over the flow: on error or empty output the scripted
// text is spoken verbatim.
type Responder interface {
	Respond(ctx context.Context, history []session.Turn, promptContext string) (string, error)
}

// Speech streams 48kHz PCM mono audio for the given text.
type Speech interface {
	StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// EventSink consumes the ordered event stream of one call. The transport
// layer (browser websocket, telephony bridge) renders it.
type EventSink interface {
	PromptText(speaker session.Speaker, text string)
	AudioChunk(pcm []byte)
	// Interrupt drops any queued audio immediately (used for barge-in).
	Interrupt()
	End(status session.Status)
}

// Recorder persists the finalized call record once the session ends.
type Recorder interface {
	Finalize(ctx context.Context, rec *session.Record) error
}
