// Package telephony connects Twilio voice calls to the intake engine: the
// voice webhook answers with TwiML that opens a media stream, the media
// handler bridges mulaw telephone audio to the session, and recording
// callbacks archive call audio.
package telephony

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"

	"github.com/LegalCornerLawOffice/AI-Voice/internal/agent"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/catalog"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/flow"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/session"
)

// Storage archives call recordings.
type Storage interface {
	Upload(key, contentType string, data []byte) error
}

type Config struct {
	AccountSID string
	AuthToken  string
}

// Deps carries the per-call session wiring shared with the browser channel.
type Deps struct {
	Catalog        *catalog.Catalog
	Engine         *flow.Engine
	Store          session.Store
	Recorder       agent.Recorder
	Responder      agent.Responder
	Speech         agent.Speech
	NewTranscriber func() agent.Transcriber
	SessionTTL     time.Duration
}

type Service struct {
	config     Config
	storage    Storage
	deps       Deps
	client     *twilio.RestClient
	httpClient *http.Client

	// swapped by tests to observe recording starts without Twilio
	startRecording func(callSID, callbackURL string) error
}

func New(config Config, storage Storage, deps Deps) *Service {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: config.AccountSID,
		Password: config.AuthToken,
	})
	s := &Service{
		config:     config,
		storage:    storage,
		deps:       deps,
		client:     client,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	s.startRecording = s.StartRecording
	return s
}

func (s *Service) RegisterHandlers(e *echo.Echo) {
	e.POST("/twilio/voice", s.handleVoice, s.authMiddleware)
	e.POST("/twilio/recording-status", s.handleRecordingStatus, s.authMiddleware)
	e.GET("/twilio/media", s.handleMedia)
}

// handleVoice answers an inbound call with TwiML that opens a
// bidirectional media stream to this server.
func (s *Service) handleVoice(c echo.Context) error {
	params := c.Get("twilioParams").(map[string]string)

	callSID := params["CallSid"]
	from := params["From"]
	log.Printf("Inbound call from %s, CallSID: %s", from, callSID)

	streamURL := buildWSURL(c.Request(), "/twilio/media")
	q := url.Values{}
	q.Set("session", callSID)
	q.Set("from", from)
	stream := &twiml.VoiceStream{Url: streamURL + "?" + q.Encode()}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}

	doc, err := twiml.Voice([]twiml.Element{connect})
	if err != nil {
		log.Printf("twiml render failed: %v", err)
		return c.String(http.StatusInternalServerError, "twiml error")
	}
	return c.Blob(http.StatusOK, "text/xml", []byte(doc))
}

func (s *Service) handleRecordingStatus(c echo.Context) error {
	params := c.Get("twilioParams").(map[string]string)

	status := params["RecordingStatus"]
	recordingURL := params["RecordingUrl"]
	recordingSID := params["RecordingSid"]
	log.Printf("Recording status: %s, SID: %s", status, recordingSID)

	if status == "completed" && recordingURL != "" {
		filename := fmt.Sprintf("recording_%s_%d.wav", recordingSID, time.Now().Unix())
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.uploadRecording(ctx, recordingURL, filename); err != nil {
				log.Printf("Failed to upload recording: %v", err)
			} else {
				log.Printf("Recording uploaded: %s", filename)
			}
		}()
	}
	return c.String(http.StatusOK, "OK")
}

// StartRecording asks Twilio to record the live call, with completion
// delivered to the recording-status webhook.
func (s *Service) StartRecording(callSID, callbackURL string) error {
	params := &twilioApi.CreateCallRecordingParams{}
	params.SetRecordingStatusCallback(callbackURL)
	params.SetRecordingStatusCallbackMethod("POST")
	params.SetRecordingStatusCallbackEvent([]string{"completed"})
	params.SetRecordingChannels("mono")

	if _, err := s.client.Api.CreateCallRecording(callSID, params); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	return nil
}

func (s *Service) uploadRecording(ctx context.Context, recordingURL, filename string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", recordingURL+".wav", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.config.AccountSID, s.config.AuthToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download recording failed: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return s.storage.Upload(filename, "audio/wav", data)
}

func (s *Service) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.config.AuthToken == "" {
			return c.String(http.StatusInternalServerError, "Missing TWILIO_AUTH_TOKEN")
		}

		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.String(http.StatusBadRequest, "Failed to read body")
		}
		formData, err := url.ParseQuery(string(body))
		if err != nil {
			return c.String(http.StatusBadRequest, "Failed to parse form")
		}

		params := make(map[string]string)
		for key, values := range formData {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}

		signature := c.Request().Header.Get("X-Twilio-Signature")
		requestURL := buildURL(c.Request(), c.Request().URL.Path)

		if !validateSignature(s.config.AuthToken, signature, requestURL, params) {
			return c.String(http.StatusUnauthorized, "Invalid signature")
		}

		c.Set("twilioParams", params)
		return next(c)
	}
}

// validateSignature checks Twilio's HMAC-SHA1 request signature: the full
// URL concatenated with the sorted form parameters, keyed by the auth token.
func validateSignature(authToken, signature, fullURL string, params map[string]string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	data := fullURL
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params[k]
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func buildURL(r *http.Request, path string) string {
	scheme := "https"
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
		if strings.Contains(host, "localhost") || strings.Contains(host, "127.0.0.1") {
			scheme = "http"
		}
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, path)
}

func buildWSURL(r *http.Request, path string) string {
	u := buildURL(r, path)
	if strings.HasPrefix(u, "https://") {
		return "wss://" + strings.TrimPrefix(u, "https://")
	}
	return "ws://" + strings.TrimPrefix(u, "http://")
}
