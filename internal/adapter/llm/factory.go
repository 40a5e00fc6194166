package llm

import (
	"log"
	"os"
	"time"
)

const (
	// EnvMarketbotMode is the environment variable name for mode selection.
	EnvMarketbotMode = "MARKETBOT_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewLLMClient creates an LLM client based on the MARKETBOT_MODE environment
// variable. If MARKETBOT_MODE=MOCK, returns a MockClient; otherwise returns
// a real Client.
func NewLLMClient(baseURL, apiKey string, timeout time.Duration) LLMClient {
	mode := os.Getenv(EnvMarketbotMode)

	if mode == ModeMock {
		log.Println("MARKETBOT_MODE=MOCK detected, using mock LLM client")
		return NewMockClient()
	}

	return NewClient(baseURL, apiKey, timeout)
}
