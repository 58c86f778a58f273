// Package profile holds process-wide configuration loaded from flags,
// environment variables and defaults.
package profile

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/coworklink/coworklink/internal/version"
)

// AgentMode selects which Language Agent call mode (§4.D) the process runs.
type AgentMode string

const (
	AgentModeStateless    AgentMode = "stateless"    // stateless-with-history
	AgentModeContinuation AgentMode = "continuation" // stateful-continuation
)

// Profile is the process configuration for the matchmaking service.
type Profile struct {
	Mode    string // dev, demo, prod
	Version string

	// Postgres connection.
	DSN string

	// Telegram chat transport.
	TelegramBotToken string
	AdminGroupID     int64

	// HTTP surface (webhook + admin + health + metrics).
	Addr string
	Port int

	// Language model.
	LLMProvider string
	LLMAPIKey   string
	LLMBaseURL  string
	LLMModel    string
	LLMTimeout  time.Duration
	AgentMode   AgentMode
	AssistantID string // required when AgentMode == continuation

	// Embeddings.
	EmbeddingModel      string
	EmbeddingDimensions int

	// Matching tunables (§6 configuration).
	SimilarityThreshold float64
	MaxCandidates       int
	MatchingRetryWait   time.Duration

	// Budget pacing (§4.E).
	WeeklyBudgetUSD float64

	// Callback token integrity (SPEC_FULL §4 callback packing).
	CallbackSecret string

	// Admin broadcast endpoint auth.
	AdminJWTSecret string

	Locale string
}

// FromEnv reads environment variables into the profile. A set variable
// overrides the string and id fields even when they already hold a value;
// the duration and numeric tuning fields are read only while still zero.
// Fields left empty receive their defaults.
func (p *Profile) FromEnv() {
	p.DSN = getEnvOrDefault("COWORKLINK_DSN", p.DSN)
	p.TelegramBotToken = getEnvOrDefault("COWORKLINK_TELEGRAM_BOT_TOKEN", p.TelegramBotToken)
	p.AdminGroupID = getEnvOrDefaultInt64("COWORKLINK_ADMIN_GROUP_ID", p.AdminGroupID)

	p.LLMProvider = getEnvOrDefault("COWORKLINK_LLM_PROVIDER", firstNonEmpty(p.LLMProvider, "openai"))
	p.LLMAPIKey = getEnvOrDefault("COWORKLINK_LLM_API_KEY", p.LLMAPIKey)
	p.LLMBaseURL = getEnvOrDefault("COWORKLINK_LLM_BASE_URL", p.LLMBaseURL)
	p.LLMModel = getEnvOrDefault("COWORKLINK_LLM_MODEL", firstNonEmpty(p.LLMModel, "gpt-4o-mini"))
	if p.LLMTimeout == 0 {
		p.LLMTimeout = time.Duration(getEnvOrDefaultInt("COWORKLINK_LLM_TIMEOUT_SECONDS", 120)) * time.Second
	}
	p.AgentMode = AgentMode(getEnvOrDefault("COWORKLINK_AGENT_MODE", string(firstNonEmptyMode(p.AgentMode, AgentModeStateless))))
	p.AssistantID = getEnvOrDefault("COWORKLINK_ASSISTANT_ID", p.AssistantID)

	p.EmbeddingModel = getEnvOrDefault("COWORKLINK_EMBEDDING_MODEL", firstNonEmpty(p.EmbeddingModel, "text-embedding-3-small"))
	if p.EmbeddingDimensions == 0 {
		p.EmbeddingDimensions = getEnvOrDefaultInt("COWORKLINK_EMBEDDING_DIMENSIONS", 1536)
	}

	if p.SimilarityThreshold == 0 {
		p.SimilarityThreshold = getEnvOrDefaultFloat("COWORKLINK_SIMILARITY_THRESHOLD", 0.7)
	}
	if p.MaxCandidates == 0 {
		p.MaxCandidates = getEnvOrDefaultInt("COWORKLINK_MAX_CANDIDATES", 5)
	}
	if p.MatchingRetryWait == 0 {
		p.MatchingRetryWait = time.Duration(getEnvOrDefaultInt("COWORKLINK_MATCHING_RETRY_MINUTES", 30)) * time.Minute
	}
	if p.WeeklyBudgetUSD == 0 {
		p.WeeklyBudgetUSD = getEnvOrDefaultFloat("COWORKLINK_WEEKLY_BUDGET_USD", 5.0)
	}

	p.CallbackSecret = getEnvOrDefault("COWORKLINK_CALLBACK_SECRET", p.CallbackSecret)
	p.AdminJWTSecret = getEnvOrDefault("COWORKLINK_ADMIN_JWT_SECRET", p.AdminJWTSecret)
	p.Locale = getEnvOrDefault("COWORKLINK_LOCALE", firstNonEmpty(p.Locale, "en"))
}

// Validate checks that the configuration is sufficient to start the process.
// A non-nil error here is a fatal startup error (spec.md §6, §7).
func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "demo" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.Version == "" {
		p.Version = version.GetCurrentVersion(p.Mode)
	}
	if p.DSN == "" {
		return errors.New("dsn is required")
	}
	if p.TelegramBotToken == "" {
		return errors.New("telegram bot token is required")
	}
	if p.LLMAPIKey == "" {
		return errors.New("llm api key is required")
	}
	if p.AgentMode == AgentModeContinuation && p.AssistantID == "" {
		return errors.New("assistant id is required in continuation agent mode")
	}
	if p.CallbackSecret == "" {
		return errors.New("callback secret is required")
	}
	if p.WeeklyBudgetUSD <= 0 {
		return errors.New("weekly budget must be positive")
	}
	return nil
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

func firstNonEmpty(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func firstNonEmptyMode(value, fallback AgentMode) AgentMode {
	if value != "" {
		return value
	}
	return fallback
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
