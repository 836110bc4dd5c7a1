package bootstrap

import (
	"os"
	"strconv"
	"time"

	"github.com/eum-collab/translation-backend/internal/shared"
)

type Config struct {
	ServerAddr string
	LogLevel   string

	BackendWSURL string
	DefaultMode  shared.TranslationMode

	CaptureRate  int
	TargetRate   int
	PlaybackRate int

	ReconnectDelay time.Duration

	LiveKitAPIKey    string
	LiveKitAPISecret string
	LiveKitURL       string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func LoadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		BackendWSURL: getEnv("BACKEND_WS_URL", "ws://localhost:9000/ws"),
		DefaultMode:  shared.TranslationMode(getEnv("TRANSLATION_MODE", string(shared.ModeRoom))),

		CaptureRate:  getEnvInt("CAPTURE_RATE", 48000),
		TargetRate:   getEnvInt("TARGET_RATE", 16000),
		PlaybackRate: getEnvInt("PLAYBACK_RATE", 24000),

		ReconnectDelay: time.Duration(getEnvInt("RECONNECT_DELAY_MS", 3000)) * time.Millisecond,

		LiveKitAPIKey:    getEnv("LIVEKIT_API_KEY", ""),
		LiveKitAPISecret: getEnv("LIVEKIT_API_SECRET", ""),
		LiveKitURL:       getEnv("LIVEKIT_URL", ""),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
