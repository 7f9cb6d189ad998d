package chat

import (
	"context"
	"errors"
	"fmt"

	"estospaces/internal/model"
)

// ErrBackendUnavailable is returned when no conversation backend is
// configured. Chat is disabled in that case, not broken.
var ErrBackendUnavailable = errors.New("chat backend is not configured")

// ErrorKind classifies backend failures so session logic never has to
// inspect driver-specific error codes.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindNotFound
	KindUniqueViolation
)

// BackendError wraps a raw backend error with its classification.
type BackendError struct {
	Kind ErrorKind
	Err  error
}

func (e *BackendError) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("backend: not found: %v", e.Err)
	case KindUniqueViolation:
		return fmt.Sprintf("backend: unique violation: %v", e.Err)
	default:
		return fmt.Sprintf("backend: %v", e.Err)
	}
}

func (e *BackendError) Unwrap() error { return e.Err }

// Classify returns the ErrorKind of err, or KindOther when err is not a
// BackendError.
func Classify(err error) ErrorKind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindOther
}

// StartedNotification carries the payload for the best-effort "new
// conversation" side channel (admin email, event bus).
type StartedNotification struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	ConversationID string `json:"conversationId"`
	VisitorID      string `json:"visitorId"`
}

// Subscription delivers message-insert events for one conversation.
// Close is idempotent and releases the subscription synchronously;
// Events is closed afterwards.
type Subscription interface {
	Events() <-chan model.Message
	Close()
}

// Backend is the conversation store and realtime channel the session
// runs against. Implementations must return BackendError with
// KindNotFound for missing rows and KindUniqueViolation for duplicate
// conversation inserts.
type Backend interface {
	ConversationByVisitor(ctx context.Context, visitorID string) (model.Conversation, error)
	CreateConversation(ctx context.Context, visitorID, name, email string) (model.Conversation, error)
	CreateMessage(ctx context.Context, conversationID string, sender model.SenderType, text string) (model.Message, error)
	MessagesByConversation(ctx context.Context, conversationID string) ([]model.Message, error)
	Subscribe(conversationID string) (Subscription, error)
	NotifyConversationStarted(ctx context.Context, n StartedNotification) error
}

// Unconfigured is the explicit "no backend" variant. Every operation
// fails with ErrBackendUnavailable.
type Unconfigured struct{}

func (Unconfigured) ConversationByVisitor(context.Context, string) (model.Conversation, error) {
	return model.Conversation{}, ErrBackendUnavailable
}

func (Unconfigured) CreateConversation(context.Context, string, string, string) (model.Conversation, error) {
	return model.Conversation{}, ErrBackendUnavailable
}

func (Unconfigured) CreateMessage(context.Context, string, model.SenderType, string) (model.Message, error) {
	return model.Message{}, ErrBackendUnavailable
}

func (Unconfigured) MessagesByConversation(context.Context, string) ([]model.Message, error) {
	return nil, ErrBackendUnavailable
}

func (Unconfigured) Subscribe(string) (Subscription, error) {
	return nil, ErrBackendUnavailable
}

func (Unconfigured) NotifyConversationStarted(context.Context, StartedNotification) error {
	return ErrBackendUnavailable
}
