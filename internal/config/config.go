package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port         string
	Env          string
	WriteTimeout time.Duration
	FrontendURL  string

	// Database
	DatabaseURL string

	// Redis (task store, callback inbox, pub/sub)
	RedisURL string

	// Redis used by the post-processing worker
	AIRedisURL   string
	AIRedisQueue string

	// JWT
	JWTSecret string

	// Generation provider (KIE Veo)
	KIEAPIKey      string
	KIEAPIURL      string
	KIEModel       string
	KIEAspectRatio string
	CallbackURL    string
	CallbackSecret string

	// Object storage
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	// Google / YouTube
	GoogleClientID     string
	GoogleClientSecret string
	YouTubeCategoryID  string
	YouTubePrivacy     string

	// Tasks
	TaskTTL         time.Duration
	CallbackWorkers int
	ScratchDir      string
	FFmpegPath      string
	GenerateRateMin int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:               getEnvOrDefault("PORT", "8080"),
		Env:                getEnvOrDefault("ENV", "development"),
		WriteTimeout:       getEnvAsDurationOrDefault("HTTP_WRITE_TIMEOUT", 10*time.Minute),
		FrontendURL:        getEnvOrDefault("FRONTEND_URL", "*"),
		DatabaseURL:        mustGetEnv("DATABASE_URL"),
		RedisURL:           mustGetEnv("REDIS_URL"),
		AIRedisURL:         getEnvOrDefault("AI_REDIS_URL", "redis://10.1.1.10:6379/0"),
		AIRedisQueue:       getEnvOrDefault("AI_REDIS_QUEUE", "video_processing_jobs"),
		JWTSecret:          mustGetEnv("JWT_SECRET"),
		KIEAPIKey:          mustGetEnv("KIE_API_KEY"),
		KIEAPIURL:          getEnvOrDefault("KIE_API_URL", "https://api.kie.ai/api/v1/veo/generate"),
		KIEModel:           getEnvOrDefault("KIE_MODEL", "veo3_fast"),
		KIEAspectRatio:     getEnvOrDefault("KIE_ASPECT_RATIO", "9:16"),
		CallbackURL:        getEnvOrDefault("KIE_CALLBACK_URL", "https://auth.justic.store/api/video/callback"),
		CallbackSecret:     getEnvOrDefault("KIE_CALLBACK_SECRET", ""),
		MinIOEndpoint:      mustGetEnv("MINIO_ENDPOINT"),
		MinIOAccessKey:     mustGetEnv("MINIO_ACCESS_KEY"),
		MinIOSecretKey:     mustGetEnv("MINIO_SECRET_KEY"),
		MinIOBucket:        getEnvOrDefault("MINIO_BUCKET", "videos"),
		MinIOUseSSL:        getEnvAsBoolOrDefault("MINIO_USE_SSL", false),
		GoogleClientID:     getEnvOrDefault("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnvOrDefault("GOOGLE_CLIENT_SECRET", ""),
		YouTubeCategoryID:  getEnvOrDefault("YOUTUBE_CATEGORY_ID", "22"),
		YouTubePrivacy:     getEnvOrDefault("YOUTUBE_PRIVACY_STATUS", "private"),
		TaskTTL:            getEnvAsDurationOrDefault("TASK_TTL", 7*24*time.Hour),
		CallbackWorkers:    getEnvAsIntOrDefault("CALLBACK_WORKERS", 4),
		ScratchDir:         getEnvOrDefault("SCRATCH_DIR", os.TempDir()),
		FFmpegPath:         getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		GenerateRateMin:    getEnvAsIntOrDefault("GENERATE_REQUESTS_PER_MINUTE", 10),
	}

	return cfg
}

// IsDevelopment switches logging to the console writer.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
