// Package service implements the orchestrator: the inbox monitor, the
// conversation state machine, competing-offer arbitration, and payment
// reconciliation.
package service

import (
	"sync"

	"github.com/quickflip/marketbot/guard"
	"github.com/quickflip/marketbot/internal/adapter/browser"
	"github.com/quickflip/marketbot/internal/adapter/payment"
	"github.com/quickflip/marketbot/internal/config"
	"github.com/quickflip/marketbot/internal/negotiator"
	"github.com/quickflip/marketbot/internal/store"
)

type Service struct {
	store    store.Store
	browser  browser.Agent
	policy   *negotiator.Responder
	payments payment.PaymentClient
	guard    *guard.Engine
	config   *config.Config

	monitor monitorState

	saleOnce sync.Once
	saleDone chan struct{}
}

func New(st store.Store, agent browser.Agent, policy *negotiator.Responder, payments payment.PaymentClient, guardEngine *guard.Engine, cfg *config.Config) *Service {
	return &Service{
		store:    st,
		browser:  agent,
		policy:   policy,
		payments: payments,
		guard:    guardEngine,
		config:   cfg,
		saleDone: make(chan struct{}),
	}
}

// SaleCompleted is closed when the first conversation reaches sold. The
// process treats it as a clean shutdown trigger.
func (s *Service) SaleCompleted() <-chan struct{} {
	return s.saleDone
}

func (s *Service) signalSaleCompleted() {
	s.saleOnce.Do(func() { close(s.saleDone) })
}
