package browser

import (
	"context"
	"strings"
	"sync"

	"github.com/quickflip/marketbot/internal/domain"
)

// FakeAgent is a scripted in-memory Agent for tests. Each cycle of inbox
// state is queued up front; ObserveInbox consumes the next scripted view
// and sticks on the last one when the script runs out.
type FakeAgent struct {
	mu sync.Mutex

	InboxScript [][]domain.ConversationPreview
	inboxCalls  int

	// Snapshots keyed by buyer name, returned after an Act that opens
	// that buyer's conversation.
	Snapshots map[string]*domain.ConversationSnapshot

	// ExpireAfter, when > 0, makes every call fail with ErrSessionExpired
	// once that many sidecar operations have been performed.
	ExpireAfter int

	Sessions   int
	Actions    []string
	Navigated  []string
	opCount    int
	currentKey string
}

var _ Agent = (*FakeAgent)(nil)

// StartSession returns a session backed by the fake's shared script.
func (f *FakeAgent) StartSession(ctx context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sessions++
	return &fakeSession{agent: f}, nil
}

// SessionCount reports how many sessions have been started.
func (f *FakeAgent) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Sessions
}

func (f *FakeAgent) step() error {
	f.opCount++
	if f.ExpireAfter > 0 && f.opCount > f.ExpireAfter {
		return ErrSessionExpired
	}
	return nil
}

type fakeSession struct {
	agent *FakeAgent
}

var _ Session = (*fakeSession)(nil)

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.agent.mu.Lock()
	defer s.agent.mu.Unlock()
	if err := s.agent.step(); err != nil {
		return err
	}
	s.agent.Navigated = append(s.agent.Navigated, url)
	return nil
}

func (s *fakeSession) ObserveInbox(ctx context.Context) ([]domain.ConversationPreview, error) {
	s.agent.mu.Lock()
	defer s.agent.mu.Unlock()
	if err := s.agent.step(); err != nil {
		return nil, err
	}
	if len(s.agent.InboxScript) == 0 {
		return nil, nil
	}
	idx := s.agent.inboxCalls
	if idx >= len(s.agent.InboxScript) {
		idx = len(s.agent.InboxScript) - 1
	}
	s.agent.inboxCalls++
	return s.agent.InboxScript[idx], nil
}

func (s *fakeSession) ObserveConversation(ctx context.Context) (*domain.ConversationSnapshot, error) {
	s.agent.mu.Lock()
	defer s.agent.mu.Unlock()
	if err := s.agent.step(); err != nil {
		return nil, err
	}
	if snap, ok := s.agent.Snapshots[s.agent.currentKey]; ok {
		return snap, nil
	}
	return &domain.ConversationSnapshot{}, nil
}

func (s *fakeSession) Act(ctx context.Context, instruction string) error {
	s.agent.mu.Lock()
	defer s.agent.mu.Unlock()
	if err := s.agent.step(); err != nil {
		return err
	}
	s.agent.Actions = append(s.agent.Actions, instruction)
	// An instruction that names a scripted buyer "opens" that thread.
	for name := range s.agent.Snapshots {
		if strings.Contains(instruction, name) {
			s.agent.currentKey = name
			break
		}
	}
	return nil
}

func (s *fakeSession) Close(ctx context.Context) error {
	return nil
}
