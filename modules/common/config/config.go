package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Gemini backend 종류
const (
	BackendGeminiAPI = "gemini"
	BackendVertexAI  = "vertex"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Server
	Port string

	// Gemini API
	GeminiBackend     string
	GeminiAPIKeys     []string
	GeminiImageModel  string
	GeminiTextModel   string
	GeminiRetryPerKey int
	GeminiRetryDelay  time.Duration

	// Vertex AI (GeminiBackend == "vertex" 일 때)
	VertexAIProject  string
	VertexAILocation string

	// Redis (비어있으면 in-memory quota 사용)
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Trial quota
	TrialMaxGenerations int
	TrialWindow         time.Duration

	// Upload / Session
	MaxUploadBytes  int64
	SessionInactive time.Duration
	SessionExpire   time.Duration
}

// LoadConfig - .env + 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Gemini: backend=%s, keys=%d, image=%s, text=%s",
		cfg.GeminiBackend, len(cfg.GeminiAPIKeys), cfg.GeminiImageModel, cfg.GeminiTextModel)
	if cfg.RedisEnabled() {
		log.Printf("   Redis: %s (TLS: %v)", cfg.GetRedisAddr(), cfg.RedisUseTLS)
	} else {
		log.Printf("   Redis: disabled (in-memory trial quota)")
	}
	log.Printf("   Trial: %d generations / %v", cfg.TrialMaxGenerations, cfg.TrialWindow)

	return cfg, nil
}

// Load - 환경변수만 읽어서 Config 생성 (.env 로드 없음, 테스트용)
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		GeminiBackend:     strings.ToLower(getEnv("GEMINI_BACKEND", BackendGeminiAPI)),
		GeminiAPIKeys:     parseKeys(getEnv("GEMINI_API_KEYS", ""), getEnv("GEMINI_API_KEY", "")),
		GeminiImageModel:  getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiTextModel:   getEnv("GEMINI_TEXT_MODEL", "gemini-3-flash-preview"),
		GeminiRetryPerKey: getEnvInt("GEMINI_RETRY_PER_KEY", 3),
		GeminiRetryDelay:  time.Duration(getEnvInt("GEMINI_RETRY_DELAY_MS", 2000)) * time.Millisecond,

		VertexAIProject:  getEnv("VERTEXAI_PROJECT", ""),
		VertexAILocation: getEnv("VERTEXAI_LOCATION", "us-central1"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   getEnvBool("REDIS_USE_TLS", false),

		TrialMaxGenerations: getEnvInt("TRIAL_MAX_GENERATIONS", 20),
		TrialWindow:         time.Duration(getEnvInt("TRIAL_WINDOW_HOURS", 24)) * time.Hour,

		MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_MB", 20)) << 20,
		SessionInactive: time.Duration(getEnvInt("SESSION_INACTIVE_HOURS", 2)) * time.Hour,
		SessionExpire:   time.Duration(getEnvInt("SESSION_EXPIRE_HOURS", 24)) * time.Hour,
	}

	// 필수 환경변수 검증
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	switch c.GeminiBackend {
	case BackendGeminiAPI:
		if len(c.GeminiAPIKeys) == 0 {
			return fmt.Errorf("GEMINI_API_KEYS (or GEMINI_API_KEY) is required")
		}
	case BackendVertexAI:
		if c.VertexAIProject == "" {
			return fmt.Errorf("VERTEXAI_PROJECT is required for the vertex backend")
		}
	default:
		return fmt.Errorf("unknown GEMINI_BACKEND: %s", c.GeminiBackend)
	}
	if c.GeminiRetryPerKey < 1 {
		return fmt.Errorf("GEMINI_RETRY_PER_KEY must be at least 1")
	}
	if c.TrialMaxGenerations < 1 {
		return fmt.Errorf("TRIAL_MAX_GENERATIONS must be at least 1")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	return nil
}

// RedisEnabled - REDIS_HOST 설정 여부
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if str := os.Getenv(key); str != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(str)); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, str, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if str := os.Getenv(key); str != "" {
		if parsed, err := strconv.ParseBool(str); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// parseKeys - 콤마로 구분된 키 목록 + 단일 키를 합쳐서 중복 제거
func parseKeys(list, single string) []string {
	seen := map[string]bool{}
	keys := []string{}
	for _, k := range append(strings.Split(list, ","), single) {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}
