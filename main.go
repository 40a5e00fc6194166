package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quickflip/marketbot/guard"
	"github.com/quickflip/marketbot/internal/adapter/browser"
	"github.com/quickflip/marketbot/internal/adapter/llm"
	"github.com/quickflip/marketbot/internal/adapter/payment"
	"github.com/quickflip/marketbot/internal/config"
	"github.com/quickflip/marketbot/internal/negotiator"
	"github.com/quickflip/marketbot/internal/service"
	"github.com/quickflip/marketbot/internal/store"
	transport "github.com/quickflip/marketbot/internal/transport/http"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting marketbot...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Browser agent: %s", cfg.BrowserAgentURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize adapters
	browserAgent := browser.NewClient(cfg.BrowserAgentURL, cfg.BrowserTimeout)
	llmClient := llm.NewLLMClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout)
	responder := negotiator.NewResponder(llmClient, cfg.LLMModel)
	payments := payment.NewClient(cfg.PaymentAPIURL, cfg.PaymentSecretKey, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL, 30*time.Second)

	// Initialize action guard
	ctx := context.Background()
	guardEngine, err := guard.NewEngine(ctx, fmt.Sprintf(guard.DefaultPolicy, cfg.PayoutHoldLimitCents))
	if err != nil {
		log.Fatalf("Failed to initialize guard: %v", err)
	}

	// Initialize service
	svc := service.New(db, browserAgent, responder, payments, guardEngine, cfg)

	// Background loops
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	go svc.RunPaymentWorker(workerCtx)
	if err := svc.StartMonitor(workerCtx); err != nil {
		log.Fatalf("Failed to start monitor: %v", err)
	}

	// HTTP server
	server := transport.NewServer(svc)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt, or for the first completed sale
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Println("Shutting down marketbot...")
	case <-svc.SaleCompleted():
		log.Println("Sale completed, shutting down marketbot...")
	}

	// Graceful shutdown: stop the loops first so no cycle is mid-flight when
	// the store closes.
	svc.StopMonitor()
	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Marketbot stopped")
}
