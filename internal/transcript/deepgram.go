// Package transcript streams caller audio to Deepgram's live API and turns
// the result stream into interim fragments and finalized utterances.
package transcript

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gorilla/websocket"
)

// FLUSH_TIMEOUT bounds the best-effort delivery of the last utterance on
// shutdown.
const FLUSH_TIMEOUT = 200 * time.Millisecond

// DeepgramService is a live streaming transcription client over the
// Deepgram listen websocket.
type DeepgramService struct {
	apiKey    string
	endpoint  string
	conn      *websocket.Conn
	partials  chan string
	finals    chan string
	audioData chan []byte
	stopCh    chan struct{}
	mu        sync.RWMutex
	connected bool

	// utterance accumulation and terminal-failure state
	accMu         sync.Mutex
	pendingFinals []string
	lastVoiceTime time.Time
	termErr       error
}

type resultsMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type metadataMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
}

// NewDeepgramService creates a live transcription client for 16kHz
// little-endian mono PCM.
func NewDeepgramService(apiKey string) *DeepgramService {
	return &DeepgramService{
		apiKey:    apiKey,
		endpoint:  "wss://api.deepgram.com/v1/listen",
		partials:  make(chan string, 100),
		finals:    make(chan string, 10),
		audioData: make(chan []byte, 1000),
		stopCh:    make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the read and
// write pumps.
func (s *DeepgramService) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}
	if s.apiKey == "" {
		return fmt.Errorf("deepgram api key is empty")
	}

	params := url.Values{}
	params.Set("encoding", "linear16")
	params.Set("sample_rate", "16000")
	params.Set("channels", "1")
	params.Set("interim_results", "true")
	params.Set("endpointing", "700")
	params.Set("utterance_end_ms", "1200")
	params.Set("vad_events", "true")
	params.Set("smart_format", "true")

	wsURL := fmt.Sprintf("%s?%s", s.endpoint, params.Encode())
	headers := map[string][]string{
		"Authorization": {"Token " + s.apiKey},
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("Deepgram connection failed with status: %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	s.conn = conn
	s.connected = true
	s.lastVoiceTime = time.Now()

	go s.handleMessages()
	go s.sendAudioData()

	log.Println("Connected to Deepgram live transcription")
	return nil
}

// SendPCM16KLE queues caller audio for the write pump.
func (s *DeepgramService) SendPCM16KLE(pcm []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return fmt.Errorf("not connected to Deepgram")
	}
	s.detectVoiceActivity(pcm)
	select {
	case s.audioData <- pcm:
		return nil
	default:
		log.Println("Audio buffer full, dropping packet")
		return nil
	}
}

// detectVoiceActivity updates lastVoiceTime when a PCM buffer carries voice
// energy above a fixed RMS threshold. Expects 16-bit LE mono at 16kHz.
func (s *DeepgramService) detectVoiceActivity(pcm []byte) {
	const minSamples = 160 // 10ms at 16kHz
	if len(pcm) < minSamples*2 {
		return
	}
	step := 2
	if len(pcm) > 3200 {
		step = 4
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 * step {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	if count == 0 {
		return
	}
	rms := math.Sqrt(sumSquares / float64(count))
	const voiceRMS = 250.0
	if rms >= voiceRMS {
		s.accMu.Lock()
		s.lastVoiceTime = time.Now()
		s.accMu.Unlock()
	}
}

// Partials streams interim transcript fragments.
func (s *DeepgramService) Partials() <-chan string { return s.partials }

// Finals signals end-of-utterance with the accumulated text.
func (s *DeepgramService) Finals() <-chan string { return s.finals }

// RecentlyDetectedVoice reports whether voice energy (or a Deepgram speech
// event) was observed within the given window.
func (s *DeepgramService) RecentlyDetectedVoice(window time.Duration) bool {
	s.accMu.Lock()
	last := s.lastVoiceTime
	s.accMu.Unlock()
	return time.Since(last) <= window
}

// Err reports the terminal stream failure, if any. Meaningful once Finals
// has closed; nil after close means the stream ended cleanly.
func (s *DeepgramService) Err() error {
	s.accMu.Lock()
	defer s.accMu.Unlock()
	return s.termErr
}

func (s *DeepgramService) setTerminalErr(err error) {
	s.accMu.Lock()
	if s.termErr == nil {
		s.termErr = err
	}
	s.accMu.Unlock()
}

// Close terminates the stream. The read pump owns partials and finals and
// closes them on its way out, after flushing any pending utterance.
func (s *DeepgramService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	close(s.stopCh)
	if s.conn != nil {
		_ = s.conn.WriteJSON(map[string]string{"type": "CloseStream"})
		_ = s.conn.Close()
	}
	s.connected = false
	s.conn = nil
	close(s.audioData)
	log.Println("Deepgram connection closed")
	return nil
}

// handleMessages is the sole sender on partials and finals, so it alone
// closes them when it exits. An unexpected read error while the stream is
// still wanted is recorded as the terminal error for Err.
func (s *DeepgramService) handleMessages() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in handleMessages: %v", r)
		}
		s.flushPending()
		close(s.partials)
		close(s.finals)
	}()
	for {
		select {
		case <-s.stopCh:
			return
		default:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			_, message, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-s.stopCh:
					// orderly shutdown
				default:
					log.Printf("Deepgram stream lost: %v", err)
					s.setTerminalErr(fmt.Errorf("transcript: stream lost: %w", err))
				}
				return
			}
			s.processMessage(message)
		}
	}
}

func (s *DeepgramService) processMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		log.Printf("Error unmarshaling Deepgram message: %v", err)
		return
	}
	switch base.Type {
	case "Results":
		var msg resultsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Results message: %v", err)
			return
		}
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
		if text == "" {
			return
		}
		select {
		case s.partials <- text:
		default:
		}
		if !msg.IsFinal {
			return
		}
		s.accMu.Lock()
		s.pendingFinals = append(s.pendingFinals, text)
		pending := strings.Join(s.pendingFinals, " ")
		// hold the utterance open when the ending suggests the caller
		// will continue the sentence; UtteranceEnd flushes it regardless
		flush := msg.SpeechFinal && !isContinuationLikely(pending)
		if flush {
			s.pendingFinals = nil
		}
		s.accMu.Unlock()
		if flush {
			s.deliverFinal(pending)
		}
	case "UtteranceEnd":
		s.accMu.Lock()
		pending := strings.Join(s.pendingFinals, " ")
		s.pendingFinals = nil
		s.accMu.Unlock()
		if strings.TrimSpace(pending) != "" {
			s.deliverFinal(pending)
		}
	case "SpeechStarted":
		s.accMu.Lock()
		s.lastVoiceTime = time.Now()
		s.accMu.Unlock()
	case "Metadata":
		var msg metadataMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			log.Printf("Deepgram stream closed: request_id=%s", msg.RequestID)
		}
	default:
		// Error and unknown frames are logged and otherwise ignored
		log.Printf("Deepgram message: %s", strings.TrimSpace(string(message)))
	}
}

// deliverFinal blocks rather than drops so every finalized utterance reaches
// the turn loop.
func (s *DeepgramService) deliverFinal(text string) {
	select {
	case <-s.stopCh:
	case s.finals <- text:
	}
}

// flushPending sends any accumulated segments that never saw a speech_final.
func (s *DeepgramService) flushPending() {
	s.accMu.Lock()
	pending := strings.Join(s.pendingFinals, " ")
	s.pendingFinals = nil
	s.accMu.Unlock()
	if strings.TrimSpace(pending) == "" {
		return
	}
	select {
	case s.finals <- pending:
	case <-time.After(FLUSH_TIMEOUT):
		log.Printf("Deepgram flush: timed out delivering final utterance")
	}
}

// isContinuationLikely returns true if the last meaningful word indicates
// the speaker is likely to continue (conjunctions, prepositions, fillers).
func isContinuationLikely(text string) bool {
	w := lastWord(text)
	if w == "" {
		return false
	}
	_, ok := continuationWords[w]
	return ok
}

func lastWord(text string) string {
	trim := strings.TrimSpace(text)
	if trim == "" {
		return ""
	}
	fields := strings.FieldsFunc(trim, func(r rune) bool { return !unicode.IsLetter(r) })
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

var continuationWords = map[string]struct{}{
	"and": {}, "or": {}, "but": {}, "nor": {}, "yet": {}, "so": {},
	"if": {}, "when": {}, "while": {}, "though": {}, "although": {},
	"because": {}, "since": {}, "unless": {}, "until": {}, "whereas": {},
	"also": {}, "plus": {}, "um": {}, "uh": {}, "like": {},
	"about": {}, "with": {}, "to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
}

func (s *DeepgramService) sendAudioData() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in sendAudioData: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		case pcm, ok := <-s.audioData:
			if !ok {
				return
			}
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
					log.Printf("Error sending audio data: %v", err)
					return
				}
			}
		}
	}
}
