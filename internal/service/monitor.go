package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/quickflip/marketbot/internal/adapter/browser"
	"github.com/quickflip/marketbot/internal/domain"
	"github.com/quickflip/marketbot/internal/match"
)

const errorRingCapacity = 20

type monitorState struct {
	mu           sync.Mutex
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}
	cycleCount   int
	lastPollAt   time.Time
	recentErrors []string
	// lastPreviews maps buyer name to the preview text seen last cycle, so
	// non-sweep cycles only open threads whose preview changed.
	lastPreviews map[string]string
}

// StartMonitor begins the unattended polling loop.
func (s *Service) StartMonitor(ctx context.Context) error {
	m := &s.monitor
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("monitor already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.lastPreviews = make(map[string]string)
	go s.runMonitor(runCtx, m.done)
	log.Println("message monitor started")
	return nil
}

// StopMonitor cancels the loop and waits for the in-flight cycle to finish.
func (s *Service) StopMonitor() {
	m := &s.monitor
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
	log.Println("message monitor stopped")
}

// MonitorStatus reports the loop's current state.
func (s *Service) MonitorStatus() *domain.MonitorStatus {
	m := &s.monitor
	m.mu.Lock()
	defer m.mu.Unlock()

	status := &domain.MonitorStatus{
		Running:      m.running,
		CycleCount:   m.cycleCount,
		RecentErrors: append([]string(nil), m.recentErrors...),
	}
	if !m.lastPollAt.IsZero() {
		status.LastPollAt = m.lastPollAt.UnixMilli()
	}
	return status
}

func (s *Service) runMonitor(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		s.monitor.mu.Lock()
		s.monitor.running = false
		s.monitor.mu.Unlock()
	}()

	var session browser.Session
	defer func() {
		if session != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := session.Close(closeCtx); err != nil {
				log.Printf("WARN: failed to release browser session: %v", err)
			}
			cancel()
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		if session == nil {
			var err error
			session, err = s.browser.StartSession(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.recordMonitorError(fmt.Sprintf("failed to start browser session: %v", err))
				if !s.sleepFor(ctx, s.config.IdleIntervalMax) {
					return
				}
				continue
			}
		}

		replied, err := s.pollCycle(ctx, session)
		switch {
		case errors.Is(err, browser.ErrSessionExpired):
			// Recoverable: the session is rebuilt on the next cycle.
			s.recordMonitorError("browser session expired, rebuilding")
			_ = session.Close(ctx)
			session = nil
		case err != nil && ctx.Err() == nil:
			s.recordMonitorError(fmt.Sprintf("poll cycle error: %v", err))
		}

		s.monitor.mu.Lock()
		s.monitor.cycleCount++
		s.monitor.lastPollAt = time.Now()
		cycle := s.monitor.cycleCount
		s.monitor.mu.Unlock()

		var pause time.Duration
		if s.config.SessionBreakCycles > 0 && cycle%s.config.SessionBreakCycles == 0 {
			if session != nil {
				_ = session.Close(ctx)
				session = nil
			}
			pause = randomBetween(s.config.SessionBreakMin, s.config.SessionBreakMax)
			log.Printf("INFO: session break, sleeping %s", pause.Round(time.Second))
		} else if replied {
			pause = randomBetween(s.config.ReplyIntervalMin, s.config.ReplyIntervalMax)
		} else {
			pause = randomBetween(s.config.IdleIntervalMin, s.config.IdleIntervalMax)
		}
		if !s.sleepFor(ctx, pause) {
			return
		}
	}
}

// pollCycle runs one inbox pass. Conversations are handled strictly
// sequentially: the browser session is a serially reused resource.
func (s *Service) pollCycle(ctx context.Context, session browser.Session) (bool, error) {
	if err := session.Navigate(ctx, s.config.InboxURL); err != nil {
		return false, err
	}

	previews, err := session.ObserveInbox(ctx)
	if err != nil {
		return false, err
	}
	if len(previews) == 0 {
		log.Println("INFO: no conversations in inbox")
		return false, nil
	}

	targets := s.selectTargets(ctx, previews)
	if len(targets) == 0 {
		return false, nil
	}
	log.Printf("INFO: checking %d conversation(s)", len(targets))

	replied := false
	for _, preview := range targets {
		r, err := s.handleConversation(ctx, session, preview)
		if r {
			replied = true
		}
		if err != nil {
			if errors.Is(err, browser.ErrSessionExpired) {
				return replied, err
			}
			s.recordMonitorError(fmt.Sprintf("error handling %s: %v", preview.BuyerName, err))
		}
		if err := session.Act(ctx, "Close the chat popup if one is open"); err != nil {
			if errors.Is(err, browser.ErrSessionExpired) {
				return replied, err
			}
			log.Printf("WARN: failed to close chat popup: %v", err)
		}
	}
	return replied, nil
}

// selectTargets picks the previews to open this cycle: everything on a full
// sweep cycle, otherwise unread or changed previews, always including buyers
// whose conversation is awaiting payment.
func (s *Service) selectTargets(ctx context.Context, previews []domain.ConversationPreview) []domain.ConversationPreview {
	s.monitor.mu.Lock()
	cycle := s.monitor.cycleCount
	last := s.monitor.lastPreviews
	seen := make(map[string]string, len(previews))
	s.monitor.mu.Unlock()

	fullSweep := s.config.FullSweepEvery > 0 && cycle%s.config.FullSweepEvery == 0

	awaiting := s.awaitingPaymentBuyers(ctx)

	var targets []domain.ConversationPreview
	for _, p := range previews {
		seen[p.BuyerName] = p.PreviewText

		include := fullSweep || p.Unread
		if !include {
			prev, known := last[p.BuyerName]
			include = !known || prev != p.PreviewText
		}
		if !include {
			for _, name := range awaiting {
				if match.SameBuyer(p.BuyerName, name) {
					include = true
					break
				}
			}
		}
		if include && len(targets) < s.config.MaxConversationsPerCycle {
			targets = append(targets, p)
		}
	}

	s.monitor.mu.Lock()
	s.monitor.lastPreviews = seen
	s.monitor.mu.Unlock()
	return targets
}

// awaitingPaymentBuyers returns display names of buyers whose conversation
// has a checkout outstanding. Those threads are opened every cycle.
func (s *Service) awaitingPaymentBuyers(ctx context.Context) []string {
	convs, err := s.store.ListConversationsByStatus(ctx, domain.ConversationConfirmed)
	if err != nil {
		log.Printf("WARN: failed to list confirmed conversations: %v", err)
		return nil
	}

	var names []string
	for _, conv := range convs {
		buyer, err := s.store.GetBuyer(ctx, conv.BuyerID)
		if err != nil || buyer == nil {
			continue
		}
		names = append(names, buyer.DisplayName)
	}
	return names
}

func (s *Service) recordMonitorError(msg string) {
	log.Printf("ERROR: %s", msg)
	s.monitor.mu.Lock()
	defer s.monitor.mu.Unlock()
	s.monitor.recentErrors = append(s.monitor.recentErrors, msg)
	if len(s.monitor.recentErrors) > errorRingCapacity {
		s.monitor.recentErrors = s.monitor.recentErrors[len(s.monitor.recentErrors)-errorRingCapacity:]
	}
}

// sleepFor sleeps unless the context is cancelled first. Returns false on
// cancellation.
func (s *Service) sleepFor(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func randomBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
