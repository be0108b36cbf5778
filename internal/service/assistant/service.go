// Package assistant drives one chat turn: it records the user's message, asks
// the resolver for a reply and records the reply or the fallback apology.
package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/zhouzirui/nilm-chat/backend/internal/model/chat"
	"github.com/zhouzirui/nilm-chat/backend/internal/service/resolver"
	"github.com/zhouzirui/nilm-chat/backend/pkg/log"
)

// FallbackMessage is what the user sees whenever resolution fails.
const FallbackMessage = "Sorry, I encountered an error while processing your request."

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a reply is already being generated for this session")
)

// Store is the subset of the conversation store the driver writes to.
type Store interface {
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	AppendUser(ctx context.Context, sessionID, text string) (chat.Message, bool, error)
	AppendAssistant(ctx context.Context, sessionID, text string) (chat.Message, bool, error)
}

// Exchange is the pair of messages one Send appended.
type Exchange struct {
	User      chat.Message `json:"user"`
	Assistant chat.Message `json:"assistant"`
	Failed    bool         `json:"failed"`
}

type sessionState struct {
	gate    *semaphore.Weighted
	tracker *resolver.Tracker
}

// Service owns one resolver tracker per session; all of them share the resolver picked at startup.
type Service struct {
	store    Store
	resolver resolver.Resolver

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// NewService wires the driver to a store and the startup-selected resolver.
func NewService(store Store, r resolver.Resolver) *Service {
	return &Service{
		store:    store,
		resolver: r,
		sessions: make(map[string]*sessionState),
	}
}

func (s *Service) state(sessionID string) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		st = &sessionState{
			gate:    semaphore.NewWeighted(1),
			tracker: resolver.NewTracker(s.resolver),
		}
		s.sessions[sessionID] = st
	}
	return st
}

// Send runs one chat turn. Blank text and sends overlapping an in-flight turn are
// rejected without touching the log. A resolver failure is not returned: it is
// logged and the fallback message is appended instead. Once the user message is
// appended the turn completes even if ctx is cancelled.
func (s *Service) Send(ctx context.Context, sessionID, text string) (*Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	st := s.state(sessionID)
	if !st.gate.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer st.gate.Release(1)

	userMsg, ok, err := s.store.AppendUser(ctx, sessionID, text)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEmptyMessage
	}

	exchange := &Exchange{User: userMsg}

	// the turn outlives its caller; only the resolver's own timeout bounds it
	ctx = context.WithoutCancel(ctx)

	reply, err := st.tracker.Resolve(ctx, text)
	if err != nil {
		log.Errorw("resolver failed", "session", sessionID, "error", err)
		reply = FallbackMessage
		exchange.Failed = true
	}

	assistantMsg, ok, err := s.store.AppendAssistant(ctx, sessionID, reply)
	if err != nil {
		return nil, err
	}
	if !ok {
		// a blank reply still needs a visible answer
		assistantMsg, _, err = s.store.AppendAssistant(ctx, sessionID, FallbackMessage)
		if err != nil {
			return nil, err
		}
		exchange.Failed = true
	}
	exchange.Assistant = assistantMsg

	log.Infow("chat turn completed", "session", sessionID, "failed", exchange.Failed, "replyLength", len(assistantMsg.Content))
	return exchange, nil
}

// State reports the resolver status for a session. Unknown sessions report idle.
func (s *Service) State(sessionID string) resolver.State {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return resolver.State{}
	}
	return st.tracker.State()
}
