package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kapu/ai-hair-salon-go/internal/constants"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

type Config struct {
	Server     ServerConfig
	AI         AIConfig
	OpenRouter OpenRouterConfig
	Gemini     GeminiConfig
	Narrator   NarratorConfig
	Upload     UploadConfig
	Camera     CameraConfig
	Logging    LoggingConfig
	Tracing    TracingConfig
}

type ServerConfig struct {
	Port    string
	GinMode string
	// AllowedOrigins may open the progress WebSocket; empty means same origin only.
	AllowedOrigins []string
}

type AIConfig struct {
	Provider      string
	AnalysisModel string
	ImageModel    string
	Timeout       time.Duration
}

type OpenRouterConfig struct {
	APIKey  string
	BaseURL string
	Referer string
	Title   string
}

type GeminiConfig struct {
	APIKey string
}

type NarratorConfig struct {
	Interval time.Duration
}

type UploadConfig struct {
	MaxBytes     int64
	AllowedTypes []string
}

type CameraConfig struct {
	SnapshotURL string
}

type TracingConfig struct {
	Enabled bool
}

type LoggingConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	provider := strings.ToLower(getEnv("AI_PROVIDER", ProviderOpenRouter))

	analysisDefault := constants.CollaboratorConfig.AnalysisModel
	imageDefault := constants.CollaboratorConfig.ImageModel
	if provider == ProviderGemini {
		analysisDefault = constants.CollaboratorConfig.GeminiAnalysis
		imageDefault = constants.CollaboratorConfig.GeminiImage
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			GinMode:        getEnv("GIN_MODE", "release"),
			AllowedOrigins: parseCommaSeparated(getEnv("WS_ALLOWED_ORIGINS", "")),
		},
		AI: AIConfig{
			Provider:      provider,
			AnalysisModel: getEnv("ANALYSIS_MODEL", analysisDefault),
			ImageModel:    getEnv("IMAGE_MODEL", imageDefault),
			Timeout:       getEnvDuration("COLLABORATOR_TIMEOUT", constants.CollaboratorConfig.Timeout),
		},
		OpenRouter: OpenRouterConfig{
			APIKey:  getEnv("OPENROUTER_API_KEY", ""),
			BaseURL: getEnv("OPENROUTER_BASE_URL", constants.CollaboratorConfig.OpenRouterURL),
			Referer: getEnv("APP_REFERER", constants.CollaboratorConfig.AppReferer),
			Title:   getEnv("APP_TITLE", constants.CollaboratorConfig.AppTitle),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
		},
		Narrator: NarratorConfig{
			Interval: getEnvDuration("NARRATOR_INTERVAL", constants.NarratorConfig.Interval),
		},
		Upload: UploadConfig{
			MaxBytes:     int64(getEnvInt("UPLOAD_MAX_BYTES", int(constants.UploadLimits.MaxBytes))),
			AllowedTypes: parseCommaSeparated(getEnv("UPLOAD_ALLOWED_TYPES", strings.Join(constants.UploadLimits.AllowedTypes, ","))),
		},
		Camera: CameraConfig{
			SnapshotURL: getEnv("CAMERA_SNAPSHOT_URL", ""),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
		Tracing: TracingConfig{
			Enabled: getEnvBool("TRACING_ENABLED", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.AI.Provider {
	case ProviderOpenRouter:
		if c.OpenRouter.APIKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY is required when AI_PROVIDER=openrouter")
		}
		if c.OpenRouter.BaseURL == "" {
			return fmt.Errorf("OPENROUTER_BASE_URL must not be empty")
		}
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q (want %s or %s)", c.AI.Provider, ProviderOpenRouter, ProviderGemini)
	}
	if c.AI.AnalysisModel == "" || c.AI.ImageModel == "" {
		return fmt.Errorf("ANALYSIS_MODEL and IMAGE_MODEL must not be empty")
	}
	if c.AI.Timeout < 0 {
		return fmt.Errorf("COLLABORATOR_TIMEOUT must not be negative")
	}
	if c.Narrator.Interval <= 0 {
		return fmt.Errorf("NARRATOR_INTERVAL must be positive")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	if len(c.Upload.AllowedTypes) == 0 {
		return fmt.Errorf("UPLOAD_ALLOWED_TYPES is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s", "1m30s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func parseCommaSeparated(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
