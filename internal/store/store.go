package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-sql-driver/mysql"

	"estospaces/internal/chat"
	"estospaces/internal/events"
	"estospaces/internal/model"
	"estospaces/internal/notify"
	"estospaces/internal/realtime"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY, raised when an insert violates
// a unique key.
const mysqlDuplicateEntry = 1062

// Store implements chat.Backend on top of MySQL, publishing every
// message insert to the realtime hub. It also persists waitlist and
// newsletter submissions.
type Store struct {
	DB     *sql.DB
	Hub    *realtime.Hub
	Mailer *notify.Mailer
	Events events.Publisher
}

// New wires a Store from its dependencies.
func New(db *sql.DB, hub *realtime.Hub, mailer *notify.Mailer, publisher events.Publisher) *Store {
	return &Store{DB: db, Hub: hub, Mailer: mailer, Events: publisher}
}

// classify maps raw driver errors into the chat error taxonomy so the
// session never inspects MySQL error numbers.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &chat.BackendError{Kind: chat.KindNotFound, Err: err}
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return &chat.BackendError{Kind: chat.KindUniqueViolation, Err: err}
	}
	return &chat.BackendError{Kind: chat.KindOther, Err: err}
}

// ConversationByVisitor is the point lookup by visitor_id.
func (s *Store) ConversationByVisitor(ctx context.Context, visitorID string) (model.Conversation, error) {
	var conv model.Conversation
	var name, email sql.NullString
	err := s.DB.QueryRowContext(ctx,
		"SELECT id, visitor_id, visitor_name, visitor_email, created_at FROM conversations WHERE visitor_id = ?",
		visitorID,
	).Scan(&conv.ID, &conv.VisitorID, &name, &email, &conv.CreatedAt)
	if err != nil {
		return model.Conversation{}, classify(err)
	}
	conv.VisitorName = name.String
	conv.VisitorEmail = email.String
	return conv, nil
}

// CreateConversation inserts one conversation row. The UNIQUE key on
// visitor_id surfaces a racing duplicate as KindUniqueViolation.
func (s *Store) CreateConversation(ctx context.Context, visitorID, name, email string) (model.Conversation, error) {
	conv := model.Conversation{
		VisitorID:    visitorID,
		VisitorName:  name,
		VisitorEmail: email,
		CreatedAt:    time.Now(),
	}
	result, err := s.DB.ExecContext(ctx,
		"INSERT INTO conversations (visitor_id, visitor_name, visitor_email, created_at) VALUES (?, ?, ?, ?)",
		visitorID, nullable(name), nullable(email), conv.CreatedAt,
	)
	if err != nil {
		return model.Conversation{}, classify(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.Conversation{}, classify(err)
	}
	conv.ID = fmt.Sprintf("%d", id)
	log.Printf("[Store] ✅ Created conversation %s for visitor %s", conv.ID, visitorID)
	return conv, nil
}

// CreateMessage inserts one message row and publishes the insert event
// to the realtime hub.
func (s *Store) CreateMessage(ctx context.Context, conversationID string, sender model.SenderType, text string) (model.Message, error) {
	msg := model.Message{
		ConversationID: conversationID,
		SenderType:     sender,
		Message:        text,
		CreatedAt:      time.Now(),
	}
	result, err := s.DB.ExecContext(ctx,
		"INSERT INTO messages (conversation_id, sender_type, message, created_at) VALUES (?, ?, ?, ?)",
		conversationID, string(sender), text, msg.CreatedAt,
	)
	if err != nil {
		return model.Message{}, classify(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.Message{}, classify(err)
	}
	msg.ID = fmt.Sprintf("%d", id)

	if s.Hub != nil {
		s.Hub.Publish(msg)
	}
	return msg, nil
}

// MessagesByConversation returns the full history ordered by
// created_at ascending.
func (s *Store) MessagesByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT id, conversation_id, sender_type, message, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC",
		conversationID,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderType, &msg.Message, &msg.CreatedAt); err != nil {
			return nil, classify(err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return msgs, nil
}

// Subscribe registers for insert events on the conversation.
func (s *Store) Subscribe(conversationID string) (chat.Subscription, error) {
	return s.Hub.Subscribe(conversationID), nil
}

// NotifyConversationStarted emails the team and publishes the domain
// event. The caller treats any failure as best-effort.
func (s *Store) NotifyConversationStarted(ctx context.Context, n chat.StartedNotification) error {
	if s.Events != nil {
		if err := s.Events.Publish(ctx, events.KeyConversationStarted, n); err != nil {
			log.Printf("[Store] ⚠️  Failed to publish %s: %v", events.KeyConversationStarted, err)
		}
	}
	if s.Mailer == nil {
		return nil
	}
	return s.Mailer.SendChatNotification(ctx, n.Name, n.Email, n.ConversationID, n.VisitorID)
}

// CreateWaitlistEntry persists one "Reserve Your Spot" submission.
func (s *Store) CreateWaitlistEntry(ctx context.Context, entry model.WaitlistEntry) (model.WaitlistEntry, error) {
	entry.CreatedAt = time.Now()
	result, err := s.DB.ExecContext(ctx,
		"INSERT INTO waitlist_entries (user_type, name, email, phone, location, looking_for, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		entry.UserType, entry.Name, entry.Email, nullable(entry.Phone), entry.Location, entry.LookingFor, entry.CreatedAt,
	)
	if err != nil {
		return model.WaitlistEntry{}, classify(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.WaitlistEntry{}, classify(err)
	}
	entry.ID = fmt.Sprintf("%d", id)
	return entry, nil
}

// CreateNewsletterSignup persists one newsletter subscription.
func (s *Store) CreateNewsletterSignup(ctx context.Context, email, source string) (model.NewsletterSignup, error) {
	signup := model.NewsletterSignup{
		Email:     email,
		Source:    source,
		CreatedAt: time.Now(),
	}
	result, err := s.DB.ExecContext(ctx,
		"INSERT INTO newsletter_signups (email, source, created_at) VALUES (?, ?, ?)",
		email, source, signup.CreatedAt,
	)
	if err != nil {
		return model.NewsletterSignup{}, classify(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.NewsletterSignup{}, classify(err)
	}
	signup.ID = fmt.Sprintf("%d", id)
	return signup, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
