package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"estospaces/internal/model"
)

// ErrSessionClosed is returned by operations invoked after Close.
var ErrSessionClosed = errors.New("chat session is closed")

// State is the lifecycle phase of a Session.
type State int

const (
	// StateUninitialized means LoadConversation has not completed yet.
	StateUninitialized State = iota
	// StateNoConversation means this visitor has no conversation yet.
	StateNoConversation
	// StateReady means a conversation is live and subscribed.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateNoConversation:
		return "no_conversation"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Entry is one visible message. Pending marks an optimistic entry that
// has not been confirmed by the backend yet.
type Entry struct {
	model.Message
	Pending bool `json:"pending,omitempty"`
}

// Session mediates all chat interaction for exactly one visitor: it
// resolves or creates the visitor's conversation, loads history, sends
// messages with an optimistic local echo, and folds realtime inserts
// into the visible list with duplicate suppression.
type Session struct {
	backend   Backend
	visitorID string

	mu           sync.Mutex
	state        State
	conversation model.Conversation
	messages     []Entry
	lastErr      error
	closed       bool
	sub          Subscription
	updates      chan struct{}
}

// NewSession creates a session for the given visitor. The backend is
// injected so the session is testable without a real store; pass
// Unconfigured{} when chat is disabled.
func NewSession(backend Backend, visitorID string) *Session {
	return &Session{
		backend:   backend,
		visitorID: visitorID,
		updates:   make(chan struct{}, 1),
	}
}

// VisitorID returns the visitor identity this session is bound to.
func (s *Session) VisitorID() string { return s.visitorID }

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Conversation returns the live conversation, if any.
func (s *Session) Conversation() (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation, s.conversation.ID != ""
}

// Messages returns a copy of the visible message list.
func (s *Session) Messages() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.messages))
	copy(out, s.messages)
	return out
}

// Err returns the last recorded user-visible error. Each new operation
// clears it.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Updates signals (coalesced) whenever the visible state changed.
func (s *Session) Updates() <-chan struct{} { return s.updates }

// LoadConversation resolves an existing conversation for this visitor.
// "No rows" is not an error: the session simply ends up in
// StateNoConversation. Any other lookup failure is recorded but the
// session still fails open so the visitor can start a conversation.
func (s *Session) LoadConversation(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.lastErr = nil
	s.mu.Unlock()

	conv, err := s.backend.ConversationByVisitor(ctx, s.visitorID)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return ErrSessionClosed
		}
		s.state = StateNoConversation
		if Classify(err) == KindNotFound {
			s.notifyLocked()
			return nil
		}
		s.lastErr = fmt.Errorf("load conversation: %w", err)
		log.Printf("[Chat] ❌ Conversation lookup failed for visitor %s: %v", s.visitorID, err)
		s.notifyLocked()
		return s.lastErr
	}

	s.enterReady(ctx, conv)
	return nil
}

// StartConversation creates the visitor's conversation. Calling it when
// a conversation already exists is an idempotent no-op. A uniqueness
// violation (another create raced and won) is recovered transparently
// by re-fetching the existing conversation.
func (s *Session) StartConversation(ctx context.Context, name, email string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.conversation.ID != "" {
		s.mu.Unlock()
		return nil
	}
	s.lastErr = nil
	s.mu.Unlock()

	conv, err := s.backend.CreateConversation(ctx, s.visitorID, name, email)
	if err != nil {
		if Classify(err) == KindUniqueViolation {
			existing, lookupErr := s.backend.ConversationByVisitor(ctx, s.visitorID)
			if lookupErr == nil {
				log.Printf("[Chat] ♻️  Duplicate conversation for visitor %s, reusing %s", s.visitorID, existing.ID)
				s.enterReady(ctx, existing)
				return nil
			}
			err = lookupErr
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return ErrSessionClosed
		}
		s.lastErr = fmt.Errorf("start conversation: %w", err)
		log.Printf("[Chat] ❌ Failed to start conversation for visitor %s: %v", s.visitorID, err)
		s.notifyLocked()
		return s.lastErr
	}

	// Automatic welcome message, reflected immediately rather than
	// waiting for realtime delivery.
	welcome, welcomeErr := s.backend.CreateMessage(ctx, conv.ID, model.SenderAdmin, welcomeText(name))
	if welcomeErr != nil {
		log.Printf("[Chat] ⚠️  Failed to create welcome message for conversation %s: %v", conv.ID, welcomeErr)
	} else {
		s.mu.Lock()
		if !s.closed {
			s.messages = append(s.messages, Entry{Message: welcome})
			s.notifyLocked()
		}
		s.mu.Unlock()
	}

	// Best-effort admin notification. Failure never fails the create
	// and is never surfaced to the visitor.
	if notifyErr := s.backend.NotifyConversationStarted(ctx, StartedNotification{
		Name:           name,
		Email:          email,
		ConversationID: conv.ID,
		VisitorID:      s.visitorID,
	}); notifyErr != nil {
		log.Printf("[Chat] ⚠️  Conversation-started notification failed for %s: %v", conv.ID, notifyErr)
	}

	s.enterReady(ctx, conv)
	return nil
}

// SendMessage sends a visitor message with an optimistic local echo.
// It is a no-op when no conversation exists. On confirmation the
// optimistic entry is replaced by the backend record; on failure it is
// removed and the error recorded.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.conversation.ID == "" {
		s.mu.Unlock()
		return nil
	}
	s.lastErr = nil
	convID := s.conversation.ID
	tempID := "temp-" + uuid.NewString()
	s.messages = append(s.messages, Entry{
		Message: model.Message{
			ID:             tempID,
			ConversationID: convID,
			SenderType:     model.SenderVisitor,
			Message:        text,
			CreatedAt:      time.Now(),
		},
		Pending: true,
	})
	s.notifyLocked()
	s.mu.Unlock()

	confirmed, err := s.backend.CreateMessage(ctx, convID, model.SenderVisitor, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if err != nil {
		s.removeLocked(tempID)
		s.lastErr = fmt.Errorf("send message: %w", err)
		log.Printf("[Chat] ❌ Failed to send message in conversation %s: %v", convID, err)
		s.notifyLocked()
		return s.lastErr
	}

	replaced := false
	for i := range s.messages {
		if s.messages[i].ID == tempID {
			s.messages[i] = Entry{Message: confirmed}
			replaced = true
			break
		}
	}
	if !replaced && !s.containsLocked(confirmed.ID) {
		s.messages = append(s.messages, Entry{Message: confirmed})
	}
	s.notifyLocked()
	return nil
}

// Close releases the realtime subscription synchronously. Results of
// in-flight requests that resolve afterwards are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// enterReady installs the conversation, loads its history sorted by
// created_at ascending and opens the realtime subscription, replacing
// any previous one.
func (s *Session) enterReady(ctx context.Context, conv model.Conversation) {
	history, historyErr := s.backend.MessagesByConversation(ctx, conv.ID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.conversation = conv
	s.state = StateReady
	if historyErr != nil {
		s.lastErr = fmt.Errorf("load messages: %w", historyErr)
		log.Printf("[Chat] ❌ Failed to load history for conversation %s: %v", conv.ID, historyErr)
	} else {
		entries := make([]Entry, 0, len(history))
		for _, m := range history {
			entries = append(entries, Entry{Message: m})
		}
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		})
		s.messages = entries
	}
	previous := s.sub
	s.sub = nil
	s.notifyLocked()
	s.mu.Unlock()

	// Never leak a stale subscription across conversation switches.
	if previous != nil {
		previous.Close()
	}

	sub, subErr := s.backend.Subscribe(conv.ID)
	if subErr != nil {
		s.mu.Lock()
		if !s.closed {
			s.lastErr = fmt.Errorf("subscribe: %w", subErr)
			s.notifyLocked()
		}
		s.mu.Unlock()
		log.Printf("[Chat] ❌ Realtime subscription failed for conversation %s: %v", conv.ID, subErr)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Close()
		return
	}
	s.sub = sub
	s.mu.Unlock()

	go s.pump(sub)
}

// pump folds realtime insert events into the message list until the
// subscription closes.
func (s *Session) pump(sub Subscription) {
	for msg := range sub.Events() {
		s.handleRealtime(msg)
	}
}

func (s *Session) handleRealtime(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != StateReady || msg.ConversationID != s.conversation.ID {
		return
	}
	// The visitor's own messages only ever enter the list through the
	// optimistic path, never via realtime.
	if msg.SenderType == model.SenderVisitor {
		return
	}
	if s.containsLocked(msg.ID) {
		return
	}
	s.messages = append(s.messages, Entry{Message: msg})
	s.notifyLocked()
}

func (s *Session) containsLocked(id string) bool {
	for _, e := range s.messages {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (s *Session) removeLocked(id string) {
	kept := s.messages[:0]
	for _, e := range s.messages {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	s.messages = kept
}

func (s *Session) notifyLocked() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func welcomeText(name string) string {
	who := name
	if who == "" {
		who = "there"
	}
	return fmt.Sprintf("👋 Hi %s! Welcome to Estospaces.\n\nThank you for reaching out! How can we help you today?\n\nOur team will respond to your message shortly.", who)
}
