package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Job store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreSupabase = "supabase"
)

type Config struct {
	// Server
	APIPort            string
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	PublicBaseURL      string // Prefix for locally served outputs

	// Logging
	LogLevel  string
	LogFormat string // "json" or "text"

	// Worker
	WorkerEnabled     bool
	MaxConcurrentJobs int
	WorkerQueueSize   int

	// Job store
	StoreBackend string
	DatabaseURL  string
	RedisURL     string

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string
	SupabaseJobsTable     string
	PublishToStorage      bool // Upload finished reels instead of serving them locally

	// Gemini (storyboard analysis, chat edit fallback)
	GeminiKey   string
	GeminiModel string

	// OpenAI (chat edit, TTS fallback)
	OpenAIKey   string
	OpenAIModel string

	// ElevenLabs (preferred TTS provider)
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// Veo b-roll
	VeoEnabled bool
	VeoModel   string

	// Rendering
	RenderTempDir    string
	NarrationTempDir string
	OutputDir        string
	BrollDir         string
	MediaRoots       []string // local scene paths must sit under one of these
	MusicDir         string
	MusicLibraryPath string
	RenderFPS        int
	BrollPlaceholder bool
	FFmpegPath       string
	FFprobePath      string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		PublicBaseURL:         getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "json"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 2),
		WorkerQueueSize:       getEnvInt("WORKER_QUEUE_SIZE", 32),
		StoreBackend:          getEnv("STORE_BACKEND", StoreMemory),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "reels"),
		SupabaseJobsTable:     getEnv("SUPABASE_JOBS_TABLE", "render_jobs"),
		PublishToStorage:      getEnvBool("PUBLISH_TO_STORAGE", false),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ElevenLabsKey:         getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:     getEnv("ELEVENLABS_VOICE_ID", ""),
		VeoEnabled:            getEnvBool("VEO_ENABLED", false),
		VeoModel:              getEnv("VEO_MODEL", "veo-3.1-generate-preview"),
		RenderTempDir:         getEnv("RENDER_TEMP_DIR", "/tmp/reelforge/render"),
		NarrationTempDir:      getEnv("NARRATION_TEMP_DIR", "/tmp/reelforge/narration"),
		OutputDir:             getEnv("OUTPUT_DIR", "outputs"),
		BrollDir:              getEnv("BROLL_DIR", "/tmp/reelforge/broll"),
		MediaRoots:            getEnvList("MEDIA_ROOTS", []string{"uploads"}),
		MusicDir:              getEnv("MUSIC_DIR", "assets/music"),
		MusicLibraryPath:      getEnv("MUSIC_LIBRARY_PATH", ""),
		RenderFPS:             getEnvInt("RENDER_FPS", 30),
		BrollPlaceholder:      getEnvBool("BROLL_PLACEHOLDER", true),
		FFmpegPath:            getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:           getEnv("FFPROBE_PATH", "ffprobe"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backends have what they need. AI keys
// are optional: analysis, chat edit and voiceover degrade without them.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_BACKEND=redis")
		}
	case StoreSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required when STORE_BACKEND=supabase")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want memory, postgres, redis or supabase)", c.StoreBackend)
	}

	if c.PublishToStorage && (c.SupabaseURL == "" || c.SupabaseServiceKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required when PUBLISH_TO_STORAGE is set")
	}

	if c.VeoEnabled && c.GeminiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when VEO_ENABLED is set")
	}

	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1")
	}
	if c.WorkerQueueSize < 1 {
		return fmt.Errorf("WORKER_QUEUE_SIZE must be at least 1")
	}
	if c.RenderFPS < 1 || c.RenderFPS > 120 {
		return fmt.Errorf("RENDER_FPS must be between 1 and 120")
	}
	return nil
}

// SupabaseConfigured reports whether bucket access is available, either for
// publishing or for downloading storage:// media.
func (c *Config) SupabaseConfigured() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
