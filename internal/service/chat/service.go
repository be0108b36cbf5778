package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/nilm-chat/backend/internal/model/chat"
	"github.com/zhouzirui/nilm-chat/backend/pkg/log"
)

// Greeting is the assistant message every session log starts with.
const Greeting = "Hello! I'm your NILM Chat Agent. Ask me about your electrical usage, devices, or power metrics like THD."

const subscriberBuffer = 16

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionIDInvalid = errors.New("session id is required")
)

type subscriber struct {
	id string
	ch chan chat.Message
}

// Service encapsulates conversation state management.
type Service struct {
	mu          sync.RWMutex
	sessions    map[string]chat.Session
	messages    map[string][]chat.Message
	subscribers map[string][]subscriber
	now         func() time.Time
}

// NewService bootstraps the in-memory conversation store. State lives for the process lifetime only.
func NewService() *Service {
	return &Service{
		sessions:    make(map[string]chat.Session),
		messages:    make(map[string][]chat.Message),
		subscribers: make(map[string][]subscriber),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession provisions a new session seeded with the greeting.
func (s *Service) CreateSession(ctx context.Context) (chat.Session, error) {
	return s.EnsureSession(ctx, uuid.NewString())
}

// EnsureSession returns the session with the given id, creating and seeding it when missing.
func (s *Service) EnsureSession(_ context.Context, sessionID string) (chat.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return chat.Session{}, ErrSessionIDInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[sessionID]; ok {
		return session, nil
	}

	now := s.now()
	session := chat.Session{ID: sessionID, CreatedAt: now}
	s.sessions[sessionID] = session
	s.messages[sessionID] = append(make([]chat.Message, 0, 16), chat.Message{
		ID:        uuid.NewString(),
		Content:   Greeting,
		Role:      chat.RoleAssistant,
		Timestamp: now,
	})

	log.Debugw("session created", "session", sessionID)
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// AppendUser appends a user message. Blank text is ignored and reported with ok=false.
func (s *Service) AppendUser(ctx context.Context, sessionID, text string) (chat.Message, bool, error) {
	return s.append(ctx, sessionID, chat.RoleUser, text)
}

// AppendAssistant appends an assistant message under the same rules as AppendUser.
func (s *Service) AppendAssistant(ctx context.Context, sessionID, text string) (chat.Message, bool, error) {
	return s.append(ctx, sessionID, chat.RoleAssistant, text)
}

func (s *Service) append(_ context.Context, sessionID string, role chat.Role, text string) (chat.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return chat.Message{}, false, ErrSessionNotFound
	}
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, false, nil
	}

	message := chat.Message{
		ID:        uuid.NewString(),
		Content:   text,
		Role:      role,
		Timestamp: s.now(),
	}
	s.messages[sessionID] = append(s.messages[sessionID], message)

	for _, sub := range s.subscribers[sessionID] {
		select {
		case sub.ch <- message:
		default:
			log.Warnw("subscriber is full, dropping message event", "session", sessionID, "subscriber", sub.id)
		}
	}

	return message, true, nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// Subscribe registers for messages appended to the session after the call.
// The returned cancel func unregisters and closes the channel.
func (s *Service) Subscribe(sessionID string) (<-chan chat.Message, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, nil, ErrSessionNotFound
	}

	sub := subscriber{id: uuid.NewString(), ch: make(chan chat.Message, subscriberBuffer)}
	s.subscribers[sessionID] = append(s.subscribers[sessionID], sub)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()

			subs := s.subscribers[sessionID]
			for i, candidate := range subs {
				if candidate.id == sub.id {
					s.subscribers[sessionID] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(s.subscribers[sessionID]) == 0 {
				delete(s.subscribers, sessionID)
			}
			close(sub.ch)
		})
	}

	return sub.ch, cancel, nil
}
