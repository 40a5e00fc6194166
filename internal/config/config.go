// Package config provides configuration for the orchestrator.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the orchestrator configuration.
type Config struct {
	// Server settings
	HTTPPort    int
	DatabaseURL string

	// Browser agent sidecar
	BrowserAgentURL string
	InboxURL        string
	BrowserTimeout  time.Duration

	// Negotiation policy (LLM)
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Payment processor
	PaymentAPIURL      string
	PaymentSecretKey   string
	ConnectedAccountID string
	CheckoutSuccessURL string
	CheckoutCancelURL  string

	// Polling cadence. Reply intervals apply after a cycle that produced a
	// reply, idle intervals otherwise; actual sleep is randomized in range.
	ReplyIntervalMin time.Duration
	ReplyIntervalMax time.Duration
	IdleIntervalMin  time.Duration
	IdleIntervalMax  time.Duration

	// Session break: every N cycles the browser session is torn down and the
	// poller sleeps a long randomized pause before rebuilding.
	SessionBreakCycles int
	SessionBreakMin    time.Duration
	SessionBreakMax    time.Duration

	// Full inbox sweep every N cycles; other cycles only open conversations
	// whose preview changed.
	FullSweepEvery           int
	MaxConversationsPerCycle int

	// Payment reconciliation
	ProcessorPollInterval time.Duration
	DeliveryAutoConfirm   time.Duration
	RefundDeadline        time.Duration
	PayoutHoldLimitCents  int64

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables, reading a .env file
// first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARN: failed to load .env file: %v", err)
	}

	cfg := &Config{
		HTTPPort:    getEnvInt("HTTP_PORT", 8080),
		DatabaseURL: getEnv("DATABASE_URL", "file:marketbot.db?cache=shared&mode=rwc"),

		BrowserAgentURL: getEnv("BROWSER_AGENT_URL", "http://localhost:8091"),
		InboxURL:        getEnv("INBOX_URL", "https://www.facebook.com/marketplace/inbox"),
		BrowserTimeout:  time.Duration(getEnvInt("BROWSER_TIMEOUT_MS", 120000)) * time.Millisecond,

		LLMBaseURL: getEnv("LLM_BASE_URL", "https://api.openai.com"),
		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMModel:   getEnv("LLM_MODEL", "gpt-4o"),
		LLMTimeout: time.Duration(getEnvInt("LLM_TIMEOUT_MS", 60000)) * time.Millisecond,

		PaymentAPIURL:      getEnv("PAYMENT_API_URL", "https://api.stripe.com"),
		PaymentSecretKey:   getEnv("PAYMENT_SECRET_KEY", ""),
		ConnectedAccountID: getEnv("PAYMENT_CONNECTED_ACCOUNT_ID", ""),
		CheckoutSuccessURL: getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/payment/success?session_id={CHECKOUT_SESSION_ID}"),
		CheckoutCancelURL:  getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/payment/cancel"),

		ReplyIntervalMin: time.Duration(getEnvInt("REPLY_INTERVAL_MIN_S", 3)) * time.Second,
		ReplyIntervalMax: time.Duration(getEnvInt("REPLY_INTERVAL_MAX_S", 8)) * time.Second,
		IdleIntervalMin:  time.Duration(getEnvInt("IDLE_INTERVAL_MIN_S", 20)) * time.Second,
		IdleIntervalMax:  time.Duration(getEnvInt("IDLE_INTERVAL_MAX_S", 45)) * time.Second,

		SessionBreakCycles: getEnvInt("SESSION_BREAK_CYCLES", 75),
		SessionBreakMin:    time.Duration(getEnvInt("SESSION_BREAK_MIN_S", 60)) * time.Second,
		SessionBreakMax:    time.Duration(getEnvInt("SESSION_BREAK_MAX_S", 120)) * time.Second,

		FullSweepEvery:           getEnvInt("FULL_SWEEP_EVERY", 10),
		MaxConversationsPerCycle: getEnvInt("MAX_CONVERSATIONS_PER_CYCLE", 5),

		ProcessorPollInterval: time.Duration(getEnvInt("PROCESSOR_POLL_INTERVAL_S", 10)) * time.Second,
		DeliveryAutoConfirm:   time.Duration(getEnvInt("DELIVERY_AUTO_CONFIRM_S", 259200)) * time.Second,
		RefundDeadline:        time.Duration(getEnvInt("REFUND_DEADLINE_S", 604800)) * time.Second,
		PayoutHoldLimitCents:  int64(getEnvInt("PAYOUT_HOLD_LIMIT_CENTS", 100000)),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
