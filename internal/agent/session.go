// Package agent runs the turn loop of one intake call: finalized caller
// utterances go through the flow engine, the resulting prompt is spoken via
// streaming TTS, and caller speech during playback barges in and cancels it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/LegalCornerLawOffice/AI-Voice/internal/catalog"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/flow"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/prompt"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/session"
)

const (
	// maxValidationRetries bounds consecutive validation failures on one
	// question before the raw answer is kept unconfirmed and the flow
	// moves on.
	maxValidationRetries = 3
	// historyWindow limits how many turns the responder sees.
	historyWindow    = 20
	responderTimeout = 10 * time.Second
)

// Phase is the coarse lifecycle of a call.
type Phase int

const (
	PhaseGreeting Phase = iota
	PhaseQuestioning
	PhaseClosing
	PhaseEnded
)

// Deps bundles everything a Session needs. Responder and Recorder are
// optional; Speech may be nil in text-only development mode.
type Deps struct {
	Catalog     *catalog.Catalog
	Engine      *flow.Engine
	Store       session.Store
	Transcriber Transcriber
	Responder   Responder
	Speech      Speech
	Sink        EventSink
	Recorder    Recorder
}

// Session orchestrates one call. A single goroutine owns the session state;
// only barge-in crosses goroutines, guarded by mu.
type Session struct {
	id  string
	d   Deps
	ttl time.Duration

	st *session.State

	mu               sync.Mutex
	phase            Phase
	speaking         bool
	ttsCancel        context.CancelFunc
	bargeInRequested bool
	finalized        bool
}

// chunkPrompt splits prompt text into sentence-like chunks so only audio
// actually emitted before a barge-in is committed to the history.
// Heuristic: split on '.', '?', '!' and newlines, retaining punctuation.
func chunkPrompt(text string) []string {
	txt := strings.TrimSpace(text)
	if txt == "" {
		return nil
	}
	var chunks []string
	var b strings.Builder
	for _, r := range txt {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			chunk := strings.TrimSpace(b.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		case '\n', '\r':
			chunk := strings.TrimSpace(b.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	tail := strings.TrimSpace(b.String())
	if tail != "" {
		chunks = append(chunks, tail)
	}
	return chunks
}

// NewSession builds a session seeded from the catalog's section order,
// optionally pre-filled with values supplied before the call.
func NewSession(id string, prefilled map[string]string, ttl time.Duration, d Deps) *Session {
	secs := d.Catalog.Sections()
	order := make([]string, len(secs))
	for i, sec := range secs {
		order[i] = sec.Name
	}
	return &Session{
		id:  id,
		d:   d,
		ttl: ttl,
		st:  session.New(id, order, prefilled),
	}
}

// Start connects the transcriber and begins the call. It returns a stop
// function that closes the transcriber; the session then finalizes as
// abandoned unless it already completed.
func (s *Session) Start(ctx context.Context) (func(), error) {
	if err := s.d.Transcriber.Connect(); err != nil {
		return nil, err
	}
	s.persist(ctx)

	// Interim fragments double as the barge-in signal: any caller speech
	// while the agent is talking interrupts it.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-s.d.Transcriber.Partials():
				if !ok {
					return
				}
				if t != "" && s.IsSpeaking() {
					s.BargeIn()
				}
			}
		}
	}()

	go s.run(ctx)

	stop := func() {
		_ = s.d.Transcriber.Close()
	}
	return stop, nil
}

func (s *Session) run(ctx context.Context) {
	if err := s.say(ctx, prompt.Greeting, ""); err != nil {
		s.abortSpeech(ctx, err)
		return
	}
	s.setPhase(PhaseQuestioning)
	if err := s.advance(ctx); err != nil {
		s.abortSpeech(ctx, err)
		return
	}
	s.persist(ctx)

	for {
		select {
		case <-ctx.Done():
			s.finish(context.Background(), session.StatusAbandoned)
			return
		case utterance, ok := <-s.d.Transcriber.Finals():
			if !ok {
				// a clean close is the caller hanging up; a terminal
				// transcriber error is a provider failure
				if err := s.d.Transcriber.Err(); err != nil {
					log.Printf("session %s: transcriber failed: %v", s.id, err)
					s.Abort(context.Background())
				} else {
					s.finish(context.Background(), session.StatusAbandoned)
				}
				return
			}
			text := strings.TrimSpace(utterance)
			if text == "" {
				continue
			}
			if s.Phase() != PhaseQuestioning {
				continue
			}
			log.Printf("session %s heard(final): %s", s.id, text)
			s.waitForSilence(ctx)
			if err := s.handleTurn(ctx, text); err != nil {
				s.abortSpeech(ctx, err)
				return
			}
			s.persist(ctx)
			if s.Phase() == PhaseEnded {
				return
			}
		}
	}
}

func (s *Session) abortSpeech(ctx context.Context, err error) {
	log.Printf("session %s: speech synthesis failed: %v", s.id, err)
	s.Abort(ctx)
}

// handleTurn routes one finalized utterance: into the outstanding
// confirmation if there is one, otherwise as an answer to the current
// question.
func (s *Session) handleTurn(ctx context.Context, text string) error {
	st := s.st
	if st.Pending != nil {
		p := *st.Pending
		st.AppendTurn(session.SpeakerCaller, text, p.QuestionID)
		res, q, err := s.d.Engine.Resolve(st, text)
		if err != nil {
			log.Printf("session %s: resolve confirmation: %v", s.id, err)
			return s.advance(ctx)
		}
		switch res {
		case flow.ResolutionCommitted:
			return s.advance(ctx)
		case flow.ResolutionRepeat:
			return s.say(ctx, prompt.ConfirmReprompt(s.confirmPrompt(q, p.Value, p.Kind)), q.ID)
		}
		// tentative value discarded; re-ask the base question fresh
		return s.advance(ctx)
	}

	step := s.d.Engine.Next(st)
	if step.Outcome != flow.OutcomeAsk {
		// caller spoke with no question outstanding
		st.AppendTurn(session.SpeakerCaller, text, "")
		return s.advance(ctx)
	}
	q := step.Question
	st.AppendTurn(session.SpeakerCaller, text, q.ID)

	value, err := s.d.Catalog.Validate(q, text)
	if err != nil {
		st.Retries++
		if st.Retries >= maxValidationRetries {
			// keep the raw answer unconfirmed and move on
			s.d.Engine.Commit(st, q, text, session.SourceSpoken)
			s.d.Engine.Skip(st)
			if err := s.say(ctx, "Okay, I've noted that down. Let's move on.", q.ID); err != nil {
				return err
			}
			return s.advance(ctx)
		}
		reason := "I didn't catch that"
		var verr *catalog.ValidationError
		if errors.As(err, &verr) {
			reason = verr.Reason
		}
		return s.say(ctx, prompt.ValidationReprompt(q, reason), q.ID)
	}

	if kind, need := flow.ConfirmationFor(q, false); need {
		if err := s.d.Engine.Begin(st, q, value, kind); err != nil {
			log.Printf("session %s: begin confirmation: %v", s.id, err)
			return nil
		}
		return s.say(ctx, s.confirmPrompt(q, value, kind), q.ID)
	}

	s.d.Engine.Commit(st, q, value, session.SourceSpoken)
	s.d.Engine.ConfirmAnswer(st, q.ID)
	return s.advance(ctx)
}

// advance drives the flow to the next prompt: the next question, a yes/no
// confirmation of a pre-filled value, or the closing once every section is
// complete.
func (s *Session) advance(ctx context.Context) error {
	crossedSection := false
	for {
		step := s.d.Engine.Next(s.st)
		switch step.Outcome {
		case flow.OutcomeAsk:
			q := step.Question
			if crossedSection {
				if err := s.say(ctx, prompt.SectionIntro(step.Section), ""); err != nil {
					return err
				}
			}
			if a, ok := s.st.Answers[q.ID]; ok && !a.Confirmed && a.Source == session.SourcePrefilled {
				if err := s.d.Engine.Begin(s.st, q, a.Value, session.ConfirmYesNo); err == nil {
					return s.say(ctx, prompt.PrefilledConfirm(q, a.Value), q.ID)
				}
			}
			return s.say(ctx, s.phrase(ctx, prompt.Question(q), step.Section), q.ID)
		case flow.OutcomeSectionComplete:
			crossedSection = true
			continue
		case flow.OutcomeIntakeComplete:
			// every answer is already in; a synthesis failure on the
			// closing line must not turn a completed call into a failed one
			s.setPhase(PhaseClosing)
			_ = s.say(ctx, prompt.Closing, "")
			s.finish(ctx, session.StatusCompleted)
			return nil
		}
	}
}

func (s *Session) confirmPrompt(q *catalog.Question, value string, kind session.ConfirmKind) string {
	switch kind {
	case session.ConfirmSpelling:
		return prompt.SpellingConfirm(value)
	case session.ConfirmDigits:
		return prompt.DigitsConfirm(value)
	default:
		return prompt.PrefilledConfirm(q, value)
	}
}

// phrase lets the responder re-word a scripted question. Read-backs and
// re-prompts never go through here; their wording is load-bearing.
func (s *Session) phrase(ctx context.Context, scripted, section string) string {
	if s.d.Responder == nil {
		return scripted
	}
	collected := make([]string, 0, len(s.st.Answers))
	for id, a := range s.st.Answers {
		if a.Confirmed {
			collected = append(collected, id)
		}
	}
	sort.Strings(collected)
	rctx, cancel := context.WithTimeout(ctx, responderTimeout)
	defer cancel()
	out, err := s.d.Responder.Respond(rctx, s.st.RecentHistory(historyWindow), prompt.Context(section, collected, scripted))
	if err != nil {
		log.Printf("session %s: responder error, using scripted prompt: %v", s.id, err)
		return scripted
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return scripted
	}
	return out
}

// say emits the prompt text event and streams its audio chunk by chunk.
// Only the chunks fully emitted before a barge-in are committed to the
// history, with an [interrupted] marker when cut short. A synthesis stream
// error is returned unless the prompt was barged in or ctx already ended.
func (s *Session) say(ctx context.Context, text, questionID string) error {
	s.d.Sink.PromptText(session.SpeakerAgent, text)

	if s.d.Speech == nil {
		s.st.AppendTurn(session.SpeakerAgent, text, questionID)
		return nil
	}

	ctxTTS, cancelTTS := context.WithCancel(ctx)
	s.mu.Lock()
	s.speaking = true
	s.ttsCancel = cancelTTS
	s.bargeInRequested = false
	s.mu.Unlock()

	var spoken strings.Builder
	var ttsErr error
	chunks := chunkPrompt(text)
CHUNK_LOOP:
	for i, chunk := range chunks {
		s.mu.Lock()
		barged := s.bargeInRequested
		s.mu.Unlock()
		if barged {
			break CHUNK_LOOP
		}

		pcmCh, errCh := s.d.Speech.StreamPCM48k(ctxTTS, chunk)
		openPCM, openErr := true, true
		for openPCM || openErr {
			select {
			case b, ok := <-pcmCh:
				if ok {
					if len(b) > 0 {
						s.mu.Lock()
						drop := s.bargeInRequested
						s.mu.Unlock()
						if !drop {
							s.d.Sink.AudioChunk(b)
						}
					}
				} else {
					openPCM = false
				}
			case e, ok := <-errCh:
				if ok && e != nil {
					log.Printf("session %s: tts stream error: %v", s.id, e)
					if ttsErr == nil {
						ttsErr = e
					}
				}
				openErr = false
			case <-ctx.Done():
				openPCM, openErr = false, false
			}
		}
		if ttsErr != nil {
			break CHUNK_LOOP
		}
		s.mu.Lock()
		barged = s.bargeInRequested
		s.mu.Unlock()
		if barged {
			break CHUNK_LOOP
		}
		spoken.WriteString(strings.TrimSpace(chunk))
		if i < len(chunks)-1 {
			spoken.WriteString(" ")
		}
	}

	s.mu.Lock()
	wasBarged := s.bargeInRequested
	s.speaking = false
	s.ttsCancel = nil
	s.bargeInRequested = false
	s.mu.Unlock()
	cancelTTS()

	spokenText := strings.TrimSpace(spoken.String())
	if wasBarged {
		if spokenText != "" {
			spokenText += " [interrupted]"
		} else {
			spokenText = "[interrupted]"
		}
	}
	if spokenText != "" {
		s.st.AppendTurn(session.SpeakerAgent, spokenText, questionID)
	}
	if ttsErr != nil && !wasBarged && ctx.Err() == nil {
		return fmt.Errorf("speak prompt: %w", ttsErr)
	}
	return nil
}

// waitForSilence holds the reply until the caller has actually stopped
// talking, bounded so a noisy line cannot stall the turn forever.
func (s *Session) waitForSilence(ctx context.Context) {
	deadline := time.Now().Add(3 * time.Second)
	for ctx.Err() == nil && time.Now().Before(deadline) {
		if !s.d.Transcriber.RecentlyDetectedVoice(500 * time.Millisecond) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// finish finalizes the call exactly once: stamps the terminal status, hands
// the record to the recorder, deletes the live state, and emits the end
// event.
func (s *Session) finish(ctx context.Context, status session.Status) {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	s.finalized = true
	s.mu.Unlock()
	s.setPhase(PhaseEnded)

	s.st.Status = status
	s.st.EndedAt = time.Now().UTC()
	if s.d.Recorder != nil {
		if err := s.d.Recorder.Finalize(ctx, s.st.Record()); err != nil {
			log.Printf("session %s: persist call record: %v", s.id, err)
		}
	}
	if err := s.d.Store.Delete(ctx, s.id); err != nil {
		log.Printf("session %s: delete live state: %v", s.id, err)
	}
	s.d.Sink.End(status)
	log.Printf("session %s ended: %s", s.id, status)
}

// Abort ends the call early after an unrecoverable provider failure. The
// failure line is best effort; the broken provider may be the one asked to
// speak it.
func (s *Session) Abort(ctx context.Context) {
	if s.Phase() == PhaseEnded {
		return
	}
	s.setPhase(PhaseClosing)
	_ = s.say(ctx, prompt.Failure, "")
	s.finish(ctx, session.StatusFailed)
}

func (s *Session) persist(ctx context.Context) {
	if s.Phase() == PhaseEnded {
		return
	}
	if err := s.d.Store.Put(ctx, s.id, s.st, s.ttl); err != nil {
		// recoverable: the in-memory state is still authoritative
		log.Printf("session %s: persist state: %v", s.id, err)
	}
}

// FeedPCM16KLE sends caller audio to the transcriber.
func (s *Session) FeedPCM16KLE(pcm []byte) {
	_ = s.d.Transcriber.SendPCM16KLE(pcm)
}

// IsSpeaking reports whether TTS is currently active for this session.
func (s *Session) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Phase returns the current call phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// BargeIn cancels in-flight TTS and stops further audio for the current
// prompt. Safe to call at any time; a no-op when the agent is silent.
func (s *Session) BargeIn() {
	s.mu.Lock()
	cancel := s.ttsCancel
	wasSpeaking := s.speaking
	if wasSpeaking {
		s.bargeInRequested = true
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if wasSpeaking {
		s.d.Sink.Interrupt()
	}
}
