package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress  string
	AuthPassword string

	CatalogPath string

	DeepgramAPIKey   string
	DeepgramTTSModel string

	CerebrasKey     string
	CerebrasModelID string

	ElevenLabsKey     string
	ElevenLabsVoiceID string
	TTSProvider       string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	SupabaseURL     string
	SupabaseKey     string
	SupabaseTable   string
	SupabaseBucket  string
	RecordsDir      string

	TwilioAccountSID string
	TwilioAuthToken  string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	catalogPath := os.Getenv("CATALOG_PATH")
	if catalogPath == "" {
		catalogPath = "catalog.yaml"
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - transcription and speech will not work")
	}

	cerebrasKey := os.Getenv("CEREBRAS_API_KEY")
	cerebrasModel := os.Getenv("CEREBRAS_MODEL_ID")
	if cerebrasModel == "" {
		cerebrasModel = "gpt-oss-120b"
	}
	if cerebrasKey == "" {
		log.Println("Warning: CEREBRAS_API_KEY not set - questions will use scripted phrasing only")
	}

	ttsProvider := os.Getenv("TTS_PROVIDER")
	if ttsProvider == "" {
		ttsProvider = "deepgram"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		} else {
			log.Printf("Warning: invalid REDIS_DB %q, using 0", v)
		}
	}

	ttl := 7200 * time.Second
	if v := os.Getenv("SESSION_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = time.Duration(n) * time.Second
		} else {
			log.Printf("Warning: invalid SESSION_TTL_SECONDS %q, using %s", v, ttl)
		}
	}

	recordsDir := os.Getenv("RECORDS_DIR")
	if recordsDir == "" {
		recordsDir = "records"
	}

	table := os.Getenv("SUPABASE_TABLE")
	if table == "" {
		table = "call_records"
	}
	bucket := os.Getenv("SUPABASE_BUCKET")
	if bucket == "" {
		bucket = "call-recordings"
	}

	log.Printf("config: HTTP_ADDRESS=%s CATALOG_PATH=%s", addr, catalogPath)
	return Config{
		HTTPAddress:       addr,
		AuthPassword:      os.Getenv("AUTH_PASSWORD"),
		CatalogPath:       catalogPath,
		DeepgramAPIKey:    deepgramKey,
		DeepgramTTSModel:  os.Getenv("DEEPGRAM_TTS_MODEL"),
		CerebrasKey:       cerebrasKey,
		CerebrasModelID:   cerebrasModel,
		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
		TTSProvider:       ttsProvider,
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           redisDB,
		SessionTTL:        ttl,
		SupabaseURL:       os.Getenv("SUPABASE_URL"),
		SupabaseKey:       os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseTable:     table,
		SupabaseBucket:    bucket,
		RecordsDir:        recordsDir,
		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
	}
}
