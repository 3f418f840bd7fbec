package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds everything read from the environment. Missing credentials
// degrade features at request time; they never stop the process from
// starting.
type AppConfig struct {
	Port string

	// HTTPTimeout bounds every outbound provider call.
	HTTPTimeout time.Duration

	// OpenAIAPIKey enables the summarizer, study helper, and speech
	// synthesis. Empty means those features report "unavailable".
	OpenAIAPIKey string
	TTSModel     string
	TTSVoice     string

	// DefaultTimezone is used when neither the request nor the stored home
	// location names one.
	DefaultTimezone string

	// DataDir holds the flat-file preference documents.
	DataDir string

	// PrefsDB, when set, switches preference storage to SQLite at this path.
	PrefsDB string

	// TasksDB is the goals/tasks database path.
	TasksDB string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OAI_API_KEY")
	}
	cfg.TTSModel = getenvDefault("TTS_MODEL", "gpt-4o-mini-tts")
	cfg.TTSVoice = getenvDefault("TTS_VOICE", "alloy")

	cfg.DefaultTimezone = getenvDefault("APP_TIMEZONE", "America/Los_Angeles")
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		// Fail open: an unknown zone falls back to the process-local one.
		log.Printf("INFO: unknown APP_TIMEZONE %q, using local time", cfg.DefaultTimezone)
		cfg.DefaultTimezone = ""
	}

	cfg.DataDir = getenvDefault("DATA_DIR", "data")
	cfg.PrefsDB = os.Getenv("PREFS_DB")
	cfg.TasksDB = getenvDefault("TASKS_DB", filepath.Join(cfg.DataDir, "daybrief.db"))

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
