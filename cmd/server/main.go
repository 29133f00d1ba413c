package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LegalCornerLawOffice/AI-Voice/internal/agent"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/catalog"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/config"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/flow"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/httpserver"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/llm"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/record"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/session"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/telephony"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/transcript"
	"github.com/LegalCornerLawOffice/AI-Voice/internal/tts"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	// A broken question catalog must stop the process before any call can
	// land on it.
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	eng := flow.New(cat)

	var store session.Store
	if cfg.RedisAddr != "" {
		redisStore := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer redisStore.Close()
		store = redisStore
		log.Printf("session store: redis at %s", cfg.RedisAddr)
	} else {
		store = session.NewMemoryStore()
		log.Printf("session store: in-memory")
	}

	var recorder agent.Recorder
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		sb, err := record.NewSupabaseRecorder(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseTable)
		if err != nil {
			log.Fatalf("recorder: %v", err)
		}
		recorder = sb
		log.Printf("call records: supabase table %s", cfg.SupabaseTable)
	} else {
		recorder = record.NewJSONFileRecorder(cfg.RecordsDir)
		log.Printf("call records: json files in %s", cfg.RecordsDir)
	}

	var responder agent.Responder
	if cfg.CerebrasKey != "" {
		responder = llm.NewCerebrasClient(cfg.CerebrasKey, cfg.CerebrasModelID)
	}

	var speech agent.Speech
	switch cfg.TTSProvider {
	case "elevenlabs":
		speech = tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
	default:
		speech = tts.NewDeepgramClient(cfg.DeepgramAPIKey, cfg.DeepgramTTSModel)
	}

	newTranscriber := func() agent.Transcriber {
		return transcript.NewDeepgramService(cfg.DeepgramAPIKey)
	}

	srv := httpserver.New(cfg, httpserver.Deps{
		Catalog:        cat,
		Engine:         eng,
		Store:          store,
		Recorder:       recorder,
		Responder:      responder,
		Speech:         speech,
		NewTranscriber: newTranscriber,
	})

	if cfg.TwilioAuthToken != "" {
		var audioStorage telephony.Storage
		if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
			bucket, err := record.NewBucketStorage(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket)
			if err != nil {
				log.Fatalf("recording storage: %v", err)
			}
			audioStorage = bucket
		} else {
			audioStorage = record.NewDirStorage(cfg.RecordsDir)
		}
		tel := telephony.New(
			telephony.Config{AccountSID: cfg.TwilioAccountSID, AuthToken: cfg.TwilioAuthToken},
			audioStorage,
			telephony.Deps{
				Catalog:        cat,
				Engine:         eng,
				Store:          store,
				Recorder:       recorder,
				Responder:      responder,
				Speech:         speech,
				NewTranscriber: newTranscriber,
				SessionTTL:     cfg.SessionTTL,
			},
		)
		tel.RegisterHandlers(srv.Echo)
		log.Printf("telephony: twilio webhooks registered")
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Echo,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
